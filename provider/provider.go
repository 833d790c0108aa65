// Package provider defines the uniform capability/event surface shared by
// all three provider shapes: modular pipelines, full-agent duplex services,
// and the local multi-capability server.
package provider

import (
	"context"

	"github.com/agentplexus/omnivoice-core/audio"
)

// Capabilities describes what a provider supports, used by the audio
// profile negotiator (package profile) and by the pipeline orchestrator to
// decide tool-calling policy.
type Capabilities struct {
	IngressEncodings []string
	IngressRatesHz   []int
	EgressEncodings  []string
	EgressRatesHz    []int

	PreferredChunkMs int

	// FullAgent is true for provider shapes (b)/(c): STT+LLM+TTS served over
	// one duplex connection rather than composed by the Pipeline
	// Orchestrator.
	FullAgent bool

	// NativeVAD is true when the provider supplies its own vad_score;
	// otherwise the coordinator's local VAD is used.
	NativeVAD bool

	// ToolCallLevel is the provider's native tool-calling support:
	// "strict" (protocol-native only), "compatible" (falls back to parsing
	// tool calls from free-form text), or "off".
	ToolCallLevel string

	// BargeInThreshold and OnsetGuardMs are exposed per-provider rather
	// than hard-coded, since VAD sensitivity varies by provider shape.
	BargeInThreshold float64
	OnsetGuardMs     int
}

// EventKind tags the payload carried by an Event.
type EventKind string

const (
	KindPartialTranscript  EventKind = "partial_transcript"
	KindFinalTranscript    EventKind = "final_transcript"
	KindAssistantText      EventKind = "assistant_text"
	KindAssistantAudio     EventKind = "assistant_audio"
	KindAssistantAudioDone EventKind = "assistant_audio_done"
	KindToolCall           EventKind = "tool_call"
	KindError              EventKind = "error"
)

// Event is the common event emitted by every provider shape.
type Event struct {
	Kind EventKind

	// Transcript text, for KindPartialTranscript/KindFinalTranscript.
	Transcript string

	// Text, for KindAssistantText.
	Text string

	// Audio payload, for KindAssistantAudio.
	Audio    []byte
	Encoding string
	RateHz   int

	// Tool call, for KindToolCall.
	ToolName string
	ToolArgs map[string]any
	ToolID   string

	// Error details, for KindError.
	ErrKind     string
	ErrDetail   string
	ErrRetryable bool
}

// Handle is an open provider session for one call.
type Handle interface {
	// PushAudio sends one ingress frame (PCM16 at the profile's internal
	// rate) to the provider.
	PushAudio(frame audio.Frame) error

	// PushToolResult reports a tool invocation's result back to the
	// provider so the LLM can continue.
	PushToolResult(invocationID string, payload any) error

	// Events returns the provider's event stream for this call.
	Events() <-chan Event

	// Close ends the session. reason is surfaced to the provider if its
	// wire protocol supports a close reason.
	Close(reason string) error
}

// ToolCatalogEntry is the minimal shape the provider needs to advertise
// tools to the LLM (name/description/schema); see package tool for the
// full Definition.
type ToolCatalogEntry struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Provider is the uniform surface for all three provider shapes.
type Provider interface {
	// Name identifies the provider ("modular:deepgram+anthropic+elevenlabs",
	// "openai-realtime", "local", ...).
	Name() string

	Capabilities() Capabilities

	// Open starts a session for one call. systemPrompt seeds the
	// conversation; toolCatalog is the allowlisted tools for this pipeline.
	Open(ctx context.Context, callID, systemPrompt string, toolCatalog []ToolCatalogEntry) (Handle, error)
}
