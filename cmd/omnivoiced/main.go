// Command omnivoiced is the wiring entrypoint: it loads a validated
// config.Document, constructs the Asterisk ARI call system, and drives
// each accepted call through the Pipeline Orchestrator and Conversation
// Coordinator.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/agentplexus/omnivoice-core/callsystem"
	"github.com/agentplexus/omnivoice-core/callsystem/ari"
	"github.com/agentplexus/omnivoice-core/config"
	"github.com/agentplexus/omnivoice-core/coordinator"
	"github.com/agentplexus/omnivoice-core/health"
	"github.com/agentplexus/omnivoice-core/llm"
	"github.com/agentplexus/omnivoice-core/pipeline"
	"github.com/agentplexus/omnivoice-core/session"
	"github.com/agentplexus/omnivoice-core/stt"
	"github.com/agentplexus/omnivoice-core/tool"
	"github.com/agentplexus/omnivoice-core/transport"
	"github.com/agentplexus/omnivoice-core/transport/audiosocket"
	"github.com/agentplexus/omnivoice-core/transport/rtp"
	"github.com/agentplexus/omnivoice-core/tts"
)

// process exit codes.
const (
	exitOK               = 0
	exitConfigInvalid    = 64
	exitTelephonyDown    = 69
	exitInvariantFailure = 70
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	doc, err := loadDocument()
	if err != nil {
		log.Error().Err(err).Msg("omnivoiced: invalid configuration")
		os.Exit(exitConfigInvalid)
	}

	app, err := newApp(doc)
	if err != nil {
		log.Error().Err(err).Msg("omnivoiced: startup failed")
		os.Exit(exitConfigInvalid)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Error().Err(err).Msg("omnivoiced: fatal")
		os.Exit(exitTelephonyDown)
	}
	os.Exit(exitOK)
}

// loadDocument builds the in-memory config.Document from environment
// variables. Reading a YAML file from disk is out of scope here; a real
// deployment feeds this from its own loader and calls config.Validate
// before constructing app.
func loadDocument() (config.Document, error) {
	doc := config.Document{
		Telephony: config.TelephonySpec{
			Transport:     envOr("OMNIVOICE_TRANSPORT", "rtp"),
			AdvertiseHost: envOr("OMNIVOICE_ADVERTISE_HOST", "127.0.0.1"),
			BaseURL:       envOr("OMNIVOICE_ARI_URL", "http://127.0.0.1:8088/ari"),
			Username:      envOr("OMNIVOICE_ARI_USER", "omnivoice"),
			Password:      os.Getenv("OMNIVOICE_ARI_PASSWORD"),
			AppName:       envOr("OMNIVOICE_ARI_APP", "omnivoice"),
			RTPPortMin:    10000,
			RTPPortMax:    10999,
		},
		MaxActiveCalls: 200,
	}
	if err := config.Validate(doc); err != nil {
		return config.Document{}, err
	}
	return doc, nil
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// app holds the process-wide singletons: the call system, session store,
// and health server. The tool registry is built per call in
// handleIncomingCall since the telephony built-ins close over the call
// they operate on; httpToolDefs holds the call-independent HTTP tools
// every call's registry is seeded with.
type app struct {
	doc          config.Document
	system       *ari.System
	store        *session.Store
	httpToolDefs []tool.Definition
	tr           transport.Transport
	health       *health.Server
	sttClient    *stt.Client
	llmClient    *llm.Client
	ttsClient    *tts.Client
}

func newApp(doc config.Document) (*app, error) {
	store := session.NewStore()

	var tr transport.Transport
	switch doc.Telephony.Transport {
	case "audiosocket":
		tr = audiosocket.New()
	default:
		tr = rtp.New(doc.Telephony.AdvertiseHost, doc.Telephony.AdvertiseHost, doc.Telephony.RTPPortMin, doc.Telephony.RTPPortMax)
	}

	system := ari.New()
	if err := system.Configure(callsystem.CallSystemConfig{
		BaseURL:  doc.Telephony.BaseURL,
		Username: doc.Telephony.Username,
		Password: doc.Telephony.Password,
		AppName:  doc.Telephony.AppName,
	}); err != nil {
		return nil, fmt.Errorf("omnivoiced: configure call system: %w", err)
	}

	healthSrv := health.New(health.Config{
		Calls:     store,
		MaxActive: int64(doc.MaxActiveCalls),
		Reload:    func() error { return nil },
	})

	a := &app{
		doc:          doc,
		system:       system,
		store:        store,
		httpToolDefs: httpToolDefinitions(doc.Tools),
		tr:           tr,
		health:       healthSrv,
	}

	system.OnIncomingCall(a.handleIncomingCall)
	return a, nil
}

// httpToolDefinitions compiles the generic HTTP tool entries of doc.Tools
// into Definitions. Builtin-kind entries are skipped here: those resolve to
// the call-bound telephony tools built fresh per call in buildCallTools,
// since a built-in's BuiltinName names a capability (transfer_call,
// voicemail_drop, ...) rather than a standalone definition to compile.
func httpToolDefinitions(specs []config.ToolSpec) []tool.Definition {
	var defs []tool.Definition
	for _, t := range specs {
		if t.Kind != config.ToolHTTP {
			continue
		}
		defs = append(defs, tool.HTTPDefinition(tool.HTTPToolSpec{
			Name:    t.Name,
			Method:  t.Method,
			URL:     t.URL,
			Headers: t.Headers,
			Body:    t.Body,
			Phase:   tool.Phase(t.Phase),
		}))
	}
	return defs
}

// buildCallTools constructs a fresh registry and executor scoped to one
// call: the telephony built-ins and hangup guardrail close over ariCall
// itself, so they cannot be shared across concurrent calls the way the
// call-independent HTTP tools can. send_email_summary and
// request_transcript are registered without a backing EmailSender/
// TranscriptRequester wired in this entrypoint; BuiltinDefinitions already
// reports StatusError for those rather than invoking a nil dependency, so
// this is a safe, explicit "not configured" outcome rather than a panic.
func (a *app) buildCallTools(ariCall *ari.Call, policy tool.HangupPolicy) (*tool.Registry, *tool.Executor) {
	registry := tool.NewRegistry()
	defs := append([]tool.Definition{}, a.httpToolDefs...)
	defs = append(defs, tool.BuiltinDefinitions(ariCall, nil, nil)...)
	defs = append(defs, tool.NewHangupGuardrail(ariCall, policy, tool.PolicyNormal, nil).Definition())
	registry.Load(defs)
	return registry, tool.NewExecutor(registry)
}

// handleIncomingCall is the callsystem.CallHandler driving one call's
// entire lifecycle: answer, negotiate transport, run the orchestrator
// until the call ends.
func (a *app) handleIncomingCall(ctx context.Context, call callsystem.Call) error {
	ariCall, ok := call.(*ari.Call)
	if !ok {
		return fmt.Errorf("omnivoiced: unexpected call implementation %T", call)
	}

	if !a.health.Admit() {
		return ariCall.Hangup(ctx)
	}

	if err := ariCall.Answer(ctx); err != nil {
		return fmt.Errorf("omnivoiced: answer: %w", err)
	}

	cfg := transport.Config{SampleRate: 8000, Encoding: "ulaw", ChunkDurationMs: 20}
	if err := ariCall.NegotiateTransport(ctx, a.tr, cfg, a.doc.Telephony.AdvertiseHost); err != nil {
		return fmt.Errorf("omnivoiced: negotiate transport: %w", err)
	}

	sess := session.NewCall(ctx, ariCall.ID())
	a.store.Put(sess)
	defer a.store.Remove(sess.ID)
	defer sess.Terminate()

	_, executor := a.buildCallTools(ariCall, tool.PolicyAuto)

	conn := ariCall.Transport()
	var orch *pipeline.Orchestrator
	coord := coordinator.New(coordinator.Config{
		Tail:             200 * time.Millisecond,
		BargeInThreshold: 0.5,
		OnsetGuard:       350 * time.Millisecond,
		Backend:          coordinator.BackendGeneric,
	}, conn, nil, coordinator.Hooks{
		OnGateChange: func(g coordinator.Gate) { sess.SetGate(session.GateState(g)) },
		OnBargeIn: func() {
			if orch != nil {
				orch.HandleBargeIn()
			}
		},
	})

	orch = pipeline.New(pipeline.Config{
		Call:        sess,
		Egress:      coord,
		STT:         a.sttClient,
		LLM:         a.llmClient,
		TTS:         a.ttsClient,
		Executor:    executor,
		ToolMode:    llm.ToolCallCompatible,
		SystemPrompt: "You are a helpful phone assistant.",
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.pumpIngress(gctx, conn, orch, coord) })
	g.Go(func() error { return orch.Run(gctx) })
	return g.Wait()
}

// pumpIngress reads raw ingress chunks off the transport connection and
// feeds them into the orchestrator/coordinator, terminating when the
// connection closes or the call context is cancelled.
func (a *app) pumpIngress(ctx context.Context, conn transport.Connection, orch *pipeline.Orchestrator, coord *coordinator.Coordinator) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-conn.RecvIngress():
			if !ok {
				return nil
			}
			pcm16 := decodePCM16(chunk)
			orch.PushIngress(pcm16, chunk)
		case ev, ok := <-conn.Events():
			if !ok {
				return nil
			}
			if ev.Type == transport.EventClosed {
				return nil
			}
		}
	}
}

func decodePCM16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8)
	}
	return out
}

// Run starts the ARI event-stream connection and the HTTP health/metrics
// server, blocking until ctx is cancelled.
func (a *app) Run(ctx context.Context) error {
	if err := a.system.Connect(ctx); err != nil {
		return fmt.Errorf("omnivoiced: ari connect: %w", err)
	}
	defer a.system.Close()

	srv := &http.Server{Addr: ":9090", Handler: a.health.Handler()}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	return g.Wait()
}
