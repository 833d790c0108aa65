package tool

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// TelephonyOps is the minimal surface the built-in telephony tools need
// from a live call. It is satisfied by callsystem/ari.Call without the
// tool package importing callsystem directly, keeping the registry
// reusable across call-system implementations.
type TelephonyOps interface {
	BlindTransfer(ctx context.Context, destination string) error
	AttendedTransfer(ctx context.Context, destination string, ringTimeout, acceptTimeout time.Duration) (Result, error)
	CancelTransfer(ctx context.Context) error
	VoicemailDrop(ctx context.Context, mailbox string) error
	Hangup(ctx context.Context) error
	ExtensionStatus(ctx context.Context, extension string) (string, error)
}

// EmailSender is the minimal surface send_email_summary needs.
type EmailSender interface {
	SendSummary(ctx context.Context, to, subject, body string) error
}

// TranscriptRequester is the minimal surface request_transcript needs.
type TranscriptRequester interface {
	RequestTranscript(ctx context.Context, callID string) (string, error)
}

func stringArg(args map[string]any, name string) string {
	if v, ok := args[name].(string); ok {
		return v
	}
	return ""
}

// BuiltinDefinitions returns the tool definitions for the telephony
// built-ins: blind transfer, attended (warm) transfer, cancel transfer,
// voicemail drop, extension-status check, send email summary, request
// transcript. Hangup is intentionally excluded here — it is
// wrapped separately by HangupGuardrail since it needs the guardrail's
// reject path.
func BuiltinDefinitions(ops TelephonyOps, email EmailSender, transcripts TranscriptRequester) []Definition {
	return []Definition{
		{
			Name:        "transfer_call",
			Description: "Transfer the caller to another extension, either blind or attended (warm).",
			Category:    "telephony",
			Phase:       PhaseInCall,
			Timeout:     35 * time.Second,
			Parameters: map[string]ParamSchema{
				"destination": {Type: "string", Required: true},
				"mode":        {Type: "string"},
			},
			Execute: func(ctx context.Context, args map[string]any) (Result, error) {
				dest := stringArg(args, "destination")
				if dest == "" {
					return Result{Status: StatusError, Message: "destination is required"}, nil
				}
				mode := stringArg(args, "mode")
				if mode == "blind" {
					if err := ops.BlindTransfer(ctx, dest); err != nil {
						return Result{Status: StatusFailed, Message: err.Error()}, nil
					}
					return Result{Status: StatusSuccess, Message: "blind transfer completed"}, nil
				}
				return ops.AttendedTransfer(ctx, dest, 30*time.Second, 15*time.Second)
			},
		},
		{
			Name:        "cancel_transfer",
			Description: "Cancel an in-progress attended transfer and return to the caller.",
			Category:    "telephony",
			Phase:       PhaseInCall,
			Timeout:     5 * time.Second,
			Execute: func(ctx context.Context, args map[string]any) (Result, error) {
				if err := ops.CancelTransfer(ctx); err != nil {
					return Result{Status: StatusFailed, Message: err.Error()}, nil
				}
				return Result{Status: StatusSuccess, Message: "transfer cancelled"}, nil
			},
		},
		{
			Name:        "voicemail_drop",
			Description: "Leave the caller in a voicemail mailbox.",
			Category:    "telephony",
			Phase:       PhaseInCall,
			Timeout:     10 * time.Second,
			Parameters: map[string]ParamSchema{
				"mailbox": {Type: "string", Required: true},
			},
			Execute: func(ctx context.Context, args map[string]any) (Result, error) {
				mailbox := stringArg(args, "mailbox")
				if err := ops.VoicemailDrop(ctx, mailbox); err != nil {
					return Result{Status: StatusFailed, Message: err.Error()}, nil
				}
				return Result{Status: StatusSuccess, Message: "dropped to voicemail"}, nil
			},
		},
		{
			Name:        "extension_status",
			Description: "Check whether an extension is available, busy, or unreachable.",
			Category:    "telephony",
			Phase:       PhaseInCall,
			Timeout:     5 * time.Second,
			Parameters: map[string]ParamSchema{
				"extension": {Type: "string", Required: true},
			},
			Execute: func(ctx context.Context, args map[string]any) (Result, error) {
				ext := stringArg(args, "extension")
				status, err := ops.ExtensionStatus(ctx, ext)
				if err != nil {
					return Result{Status: StatusFailed, Message: err.Error()}, nil
				}
				return Result{Status: StatusSuccess, Message: status, Data: map[string]any{"extension": ext, "status": status}}, nil
			},
		},
		{
			Name:        "send_email_summary",
			Description: "Send an email summary of the call to a recipient.",
			Category:    "telephony",
			Phase:       PhasePostCall,
			Timeout:     10 * time.Second,
			Parameters: map[string]ParamSchema{
				"to":      {Type: "string", Required: true},
				"subject": {Type: "string"},
				"body":    {Type: "string"},
			},
			Execute: func(ctx context.Context, args map[string]any) (Result, error) {
				if email == nil {
					return Result{Status: StatusError, Message: "no email sender configured"}, nil
				}
				to := stringArg(args, "to")
				subject := stringArg(args, "subject")
				if subject == "" {
					subject = "Call summary"
				}
				body := stringArg(args, "body")
				if err := email.SendSummary(ctx, to, subject, body); err != nil {
					return Result{Status: StatusFailed, Message: err.Error()}, nil
				}
				return Result{Status: StatusSuccess, Message: "email sent"}, nil
			},
		},
		{
			Name:        "request_transcript",
			Description: "Request the full call transcript.",
			Category:    "telephony",
			Phase:       PhaseInCall,
			Timeout:     5 * time.Second,
			Parameters: map[string]ParamSchema{
				"call_id": {Type: "string", Required: true},
			},
			Execute: func(ctx context.Context, args map[string]any) (Result, error) {
				if transcripts == nil {
					return Result{Status: StatusError, Message: "transcript retrieval not configured"}, nil
				}
				callID := stringArg(args, "call_id")
				text, err := transcripts.RequestTranscript(ctx, callID)
				if err != nil {
					return Result{Status: StatusFailed, Message: err.Error()}, nil
				}
				return Result{Status: StatusSuccess, Message: "transcript retrieved", Data: map[string]any{"transcript": text}}, nil
			},
		},
	}
}

// HangupPolicy controls how aggressively the hangup guardrail defends
// against premature termination.
type HangupPolicy string

const (
	PolicyAuto     HangupPolicy = "auto"
	PolicyRelaxed  HangupPolicy = "relaxed"
	PolicyNormal   HangupPolicy = "normal"
	PolicyStrict   HangupPolicy = "strict"
)

// DefaultEndCallMarkers are the default configurable end-call phrase
// markers consulted by the hangup guardrail.
var DefaultEndCallMarkers = []string{
	"goodbye", "good bye", "bye", "nothing else", "that's all", "that is all", "hang up",
}

// HangupGuardrail wraps the hangup_call tool: under normal/strict, reject
// unless the most recent caller utterance (or a just-emitted assistant
// farewell) matches a configured end-call marker.
type HangupGuardrail struct {
	Policy        HangupPolicy
	GlobalDefault HangupPolicy
	Markers       []string
	ops           TelephonyOps
}

// NewHangupGuardrail constructs a guardrail. An empty policy or "auto"
// defers to globalDefault.
func NewHangupGuardrail(ops TelephonyOps, policy, globalDefault HangupPolicy, markers []string) *HangupGuardrail {
	if len(markers) == 0 {
		markers = DefaultEndCallMarkers
	}
	return &HangupGuardrail{Policy: policy, GlobalDefault: globalDefault, Markers: markers, ops: ops}
}

func (g *HangupGuardrail) effectivePolicy() HangupPolicy {
	if g.Policy == "" || g.Policy == PolicyAuto {
		if g.GlobalDefault == "" {
			return PolicyNormal
		}
		return g.GlobalDefault
	}
	return g.Policy
}

func (g *HangupGuardrail) matchesMarker(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range g.Markers {
		if m != "" && strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// Definition returns the hangup_call tool wired through this guardrail.
func (g *HangupGuardrail) Definition() Definition {
	return Definition{
		Name:        "hangup_call",
		Description: "End the call.",
		Category:    "telephony",
		Phase:       PhaseInCall,
		Timeout:     5 * time.Second,
		Parameters: map[string]ParamSchema{
			"last_caller_utterance":     {Type: "string"},
			"assistant_just_farewelled": {Type: "boolean"},
		},
		Execute: func(ctx context.Context, args map[string]any) (Result, error) {
			policy := g.effectivePolicy()
			if policy != PolicyRelaxed {
				lastUtterance := stringArg(args, "last_caller_utterance")
				farewelled, _ := args["assistant_just_farewelled"].(bool)
				if !g.matchesMarker(lastUtterance) && !farewelled {
					return Result{
						Status:  StatusError,
						Message: "hangup rejected: no end-call intent detected in the caller's last utterance",
					}, fmt.Errorf("tool: guardrail rejected hangup_call")
				}
			}
			if err := g.ops.Hangup(ctx); err != nil {
				return Result{Status: StatusFailed, Message: err.Error()}, nil
			}
			return Result{Status: StatusSuccess, Message: "call ended"}, nil
		},
	}
}
