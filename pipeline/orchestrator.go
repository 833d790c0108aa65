// Package pipeline implements the per-call turn state machine that drives
// speech-to-text, language-model, and text-to-speech traffic through a
// single goroutine reading off typed channels, coordinating with the
// Conversation Coordinator and Tool Executor. It composes the modular
// pipeline shape: three independently swappable adapters behind
// stt.Client/llm.Client/tts.Client, rather than a single duplex provider
// connection.
package pipeline

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/agentplexus/omnivoice-core/coordinator"
	"github.com/agentplexus/omnivoice-core/llm"
	"github.com/agentplexus/omnivoice-core/session"
	"github.com/agentplexus/omnivoice-core/stt"
	"github.com/agentplexus/omnivoice-core/tool"
	"github.com/agentplexus/omnivoice-core/tts"
)

// State is one state of the turn state machine.
type State string

const (
	StateIdle                State = "idle"
	StateListening           State = "listening"
	StateTranscriptFinalized State = "transcript_finalized"
	StateThinking            State = "thinking"
	StateToolDispatch        State = "tool_dispatch"
	StateSpeaking            State = "speaking"
)

// EgressWriter is the coordinator's single-writer egress surface, kept as a
// narrow interface so the orchestrator doesn't depend on package
// coordinator's concrete type (coordinator already depends on transport;
// keeping this one-directional avoids a cycle and lets tests inject a stub).
type EgressWriter interface {
	SendAssistantAudio(ctx context.Context, chunk []byte, encoding string, rateHz int) error
	AssistantAudioDone(ctx context.Context)
	EvaluateIngress(pcm16 []int16)
	Gate() coordinator.Gate
}

// Config supplies the wiring an Orchestrator needs beyond the call itself.
type Config struct {
	Call             *session.Call
	Egress           EgressWriter
	STT              *stt.Client
	STTConfig        stt.TranscriptionConfig
	LLM              *llm.Client
	Model            string
	TTS              *tts.Client
	TTSConfig        tts.SynthesisConfig
	Executor         *tool.Executor
	ToolCatalog      []llm.ToolSpec
	ToolMode         llm.ToolCallPolicy
	SystemPrompt     string
	MaxHistory       int
	MaxReinvocations int
}

// Orchestrator owns the turn loop for exactly one call. It is not safe for
// concurrent use from more than the one goroutine Run starts.
type Orchestrator struct {
	call      *session.Call
	egress    EgressWriter
	sttClient *stt.Client
	sttConfig stt.TranscriptionConfig
	llmClient *llm.Client
	model     string
	ttsClient *tts.Client
	ttsConfig tts.SynthesisConfig
	executor  *tool.Executor

	toolCatalog      []llm.ToolSpec
	toolMode         llm.ToolCallPolicy
	systemPrompt     string
	maxHistory       int
	maxReinvocations int

	state   State
	done    chan struct{}
	ingMu   sync.RWMutex
	ingress io.WriteCloser
}

// New builds an Orchestrator from cfg.
func New(cfg Config) *Orchestrator {
	maxHistory := cfg.MaxHistory
	if maxHistory <= 0 {
		maxHistory = 40
	}
	maxReinvocations := cfg.MaxReinvocations
	if maxReinvocations <= 0 {
		maxReinvocations = 3
	}
	return &Orchestrator{
		call:             cfg.Call,
		egress:           cfg.Egress,
		sttClient:        cfg.STT,
		sttConfig:        cfg.STTConfig,
		llmClient:        cfg.LLM,
		model:            cfg.Model,
		ttsClient:        cfg.TTS,
		ttsConfig:        cfg.TTSConfig,
		executor:         cfg.Executor,
		toolCatalog:      cfg.ToolCatalog,
		toolMode:         cfg.ToolMode,
		systemPrompt:     cfg.SystemPrompt,
		maxHistory:       maxHistory,
		maxReinvocations: maxReinvocations,
		state:            StateIdle,
		done:             make(chan struct{}),
	}
}

// setState transitions the turn state machine, logging every transition at
// debug level so the state machine is observable, not just internally
// consistent.
func (o *Orchestrator) setState(s State) {
	if o.state == s {
		return
	}
	log.Debug().Str("call_id", o.call.ID).Str("from", string(o.state)).Str("to", string(s)).Msg("pipeline: state transition")
	o.state = s
}

// State returns the orchestrator's current turn state.
func (o *Orchestrator) State() State {
	return o.state
}

// Run opens the streaming STT session and drives the turn loop until ctx is
// cancelled or the call terminates. It is intended to run as the single
// goroutine-per-call.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer close(o.done)
	o.setState(StateListening)

	if o.systemPrompt != "" && len(o.call.History()) == 0 {
		o.call.AppendHistory(llm.Message{Role: llm.RoleSystem, Content: o.systemPrompt})
	}

	audioIn, events, err := o.sttClient.TranscribeStream(ctx, o.sttConfig)
	if err != nil {
		return err
	}
	o.ingMu.Lock()
	o.ingress = audioIn
	o.ingMu.Unlock()
	defer audioIn.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-o.call.Context().Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			o.handleSTTEvent(ctx, ev)
		}
	}
}

// PushIngress forwards one ingress PCM16 chunk to the open STT stream,
// after the coordinator evaluates it for barge-in and the single-writer
// gate. pcmBytes must already be encoded to the STT adapter's configured
// encoding/rate. Safe to call from the transport read loop concurrently
// with Run.
func (o *Orchestrator) PushIngress(pcm16 []int16, pcmBytes []byte) {
	o.egress.EvaluateIngress(pcm16)
	if o.egress.Gate() == coordinator.GateClosed {
		// Gate closed (agent speaking, no barge-in yet): ingress is not
		// forwarded to STT, per the single-writer/gate invariant.
		return
	}
	o.ingMu.RLock()
	w := o.ingress
	o.ingMu.RUnlock()
	if w == nil {
		return
	}
	if _, err := w.Write(pcmBytes); err != nil {
		log.Warn().Str("call_id", o.call.ID).Err(err).Msg("pipeline: stt write failed")
	}
}

func (o *Orchestrator) handleSTTEvent(ctx context.Context, ev stt.StreamEvent) {
	switch ev.Type {
	case stt.EventTranscript:
		if !ev.IsFinal {
			o.setState(StateListening)
			return
		}
		if ev.Transcript == "" {
			return
		}
		o.setState(StateTranscriptFinalized)
		o.call.AppendHistory(llm.Message{Role: llm.RoleUser, Content: ev.Transcript})
		o.runTurn(ctx)

	case stt.EventError:
		if ev.Error != nil {
			log.Warn().Str("call_id", o.call.ID).Err(ev.Error).Msg("pipeline: stt stream error")
		}
	}
}

// runTurn executes one Thinking -> {ToolDispatch -> Thinking}* -> Speaking
// -> Idle cycle, honoring MaxReinvocations as the bound on tool-call
// round-trips within a single turn.
func (o *Orchestrator) runTurn(ctx context.Context) {
	o.setState(StateThinking)
	turn := o.call.NextTurn()

	history := o.call.History()
	if o.maxHistory > 0 {
		history = llm.TrimHistory(history, o.maxHistory)
	}

	req := llm.Request{
		Model:            o.model,
		History:          history,
		Tools:            o.toolCatalog,
		ToolMode:         o.toolMode,
		MaxReinvocations: o.maxReinvocations,
	}

	reinvocations := 0
	for {
		resp, err := o.llmClient.Complete(ctx, req)
		if err != nil {
			log.Warn().Str("call_id", o.call.ID).Err(err).Msg("pipeline: llm completion failed")
			o.setState(StateIdle)
			return
		}

		if len(resp.ToolCalls) == 0 {
			if resp.Text != "" {
				o.call.AppendHistory(llm.Message{Role: llm.RoleAssistant, Content: resp.Text})
				o.speak(ctx, resp.Text)
			}
			o.setState(StateIdle)
			return
		}

		if reinvocations >= o.maxReinvocations {
			log.Warn().Str("call_id", o.call.ID).Int64("turn", turn).Msg("pipeline: max tool reinvocations reached")
			o.setState(StateIdle)
			return
		}
		reinvocations++

		o.setState(StateToolDispatch)
		o.call.AppendHistory(llm.Message{Role: llm.RoleAssistant, Content: resp.Text, ToolCalls: resp.ToolCalls})
		for _, tc := range resp.ToolCalls {
			inv := o.executor.Execute(ctx, turn, tc.Name, tc.Arguments)
			o.call.AppendHistory(llm.Message{
				Role:       llm.RoleTool,
				Content:    inv.Result.Message,
				ToolCallID: tc.ID,
			})
		}
		o.setState(StateThinking)
		req.History = o.call.History()
	}
}

// speak synthesizes text via TTS and relays the resulting audio chunks
// through the coordinator, which owns the single egress writer.
func (o *Orchestrator) speak(ctx context.Context, text string) {
	o.setState(StateSpeaking)

	p, err := o.call.Playbacks.Allocate(0)
	if err != nil {
		log.Warn().Str("call_id", o.call.ID).Err(err).Msg("pipeline: playback allocation failed")
		return
	}
	if err := o.call.Playbacks.MarkStarted(p); err != nil {
		log.Warn().Str("call_id", o.call.ID).Err(err).Msg("pipeline: single-active-playback invariant violated")
		return
	}

	playCtx := p.Context()
	stream, err := o.ttsClient.SynthesizeStream(playCtx, text, o.ttsConfig)
	if err != nil {
		log.Warn().Str("call_id", o.call.ID).Err(err).Msg("pipeline: tts stream open failed")
		o.call.Playbacks.Cancel(p)
		return
	}

	encoding := o.ttsConfig.OutputFormat
	rate := o.ttsConfig.SampleRate

	for {
		select {
		case <-playCtx.Done():
			return
		case chunk, ok := <-stream:
			if !ok {
				o.egress.AssistantAudioDone(ctx)
				o.call.Playbacks.Complete(p)
				return
			}
			if chunk.Error != nil {
				log.Warn().Str("call_id", o.call.ID).Err(chunk.Error).Msg("pipeline: tts stream error")
				o.egress.AssistantAudioDone(ctx)
				o.call.Playbacks.Cancel(p)
				return
			}
			if len(chunk.Audio) > 0 {
				if err := o.egress.SendAssistantAudio(playCtx, chunk.Audio, encoding, rate); err != nil {
					log.Warn().Str("call_id", o.call.ID).Err(err).Msg("pipeline: egress write failed")
					o.call.Playbacks.Cancel(p)
					return
				}
				p.AddBytes(len(chunk.Audio))
			}
			if chunk.IsFinal {
				o.egress.AssistantAudioDone(ctx)
				o.call.Playbacks.Complete(p)
				return
			}
		}
	}
}

// HandleBargeIn is the coordinator's OnBargeIn hook: cancel the active
// playback and return the turn loop to Listening.
func (o *Orchestrator) HandleBargeIn() {
	if p := o.call.Playbacks.Active(); p != nil {
		o.call.Playbacks.Cancel(p)
	}
	o.setState(StateListening)
}

// Close only checks, without blocking, whether Run has already exited; it
// does not signal or stop Run. Run exits when ctx or the call context ends
// or the STT event stream closes.
func (o *Orchestrator) Close() {
	select {
	case <-o.done:
	default:
	}
}
