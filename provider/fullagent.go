package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog/log"

	"github.com/agentplexus/omnivoice-core/audio"
)

// wireEvent is the JSON envelope a full-agent/local duplex backend is
// expected to speak: one event type tag plus a payload shaped like Event.
// Concrete backends (OpenAI Realtime-style, a local Silero/llama.cpp
// server) differ in field names on the wire; a thin per-backend translator
// in front of this type is expected — FullAgentProvider itself only needs
// the common envelope shape, grounded on the websocket event-stream
// pattern used by team-hashing-lokutor-orchestrator and
// nupi-ai-plugin-vad-local-silero.
type wireEvent struct {
	Type         string         `json:"type"`
	Transcript   string         `json:"transcript,omitempty"`
	Text         string         `json:"text,omitempty"`
	Audio        []byte         `json:"audio,omitempty"`
	Encoding     string         `json:"encoding,omitempty"`
	RateHz       int            `json:"rate_hz,omitempty"`
	ToolName     string         `json:"tool_name,omitempty"`
	ToolArgs     map[string]any `json:"tool_args,omitempty"`
	ToolID       string         `json:"tool_id,omitempty"`
	ErrKind      string         `json:"err_kind,omitempty"`
	ErrDetail    string         `json:"err_detail,omitempty"`
	ErrRetryable bool           `json:"err_retryable,omitempty"`
}

func (w wireEvent) toEvent() Event {
	var kind EventKind
	switch w.Type {
	case "partial_transcript":
		kind = KindPartialTranscript
	case "final_transcript":
		kind = KindFinalTranscript
	case "assistant_text":
		kind = KindAssistantText
	case "assistant_audio":
		kind = KindAssistantAudio
	case "assistant_audio_done":
		kind = KindAssistantAudioDone
	case "tool_call":
		kind = KindToolCall
	default:
		kind = KindError
	}
	return Event{
		Kind: kind, Transcript: w.Transcript, Text: w.Text,
		Audio: w.Audio, Encoding: w.Encoding, RateHz: w.RateHz,
		ToolName: w.ToolName, ToolArgs: w.ToolArgs, ToolID: w.ToolID,
		ErrKind: w.ErrKind, ErrDetail: w.ErrDetail, ErrRetryable: w.ErrRetryable,
	}
}

// FullAgentProvider implements the full-agent provider shape: a single
// bidirectional websocket connection through which ingress audio flows out
// and transcripts/assistant audio/tool calls flow back, served by a
// vendor's realtime voice API.
type FullAgentProvider struct {
	name string
	url  string
	caps Capabilities
}

// NewFullAgentProvider builds a FullAgentProvider dialing url (the vendor's
// realtime websocket endpoint) per call.
func NewFullAgentProvider(name, url string, caps Capabilities) *FullAgentProvider {
	caps.FullAgent = true
	return &FullAgentProvider{name: name, url: url, caps: caps}
}

func (f *FullAgentProvider) Name() string              { return f.name }
func (f *FullAgentProvider) Capabilities() Capabilities { return f.caps }

// Open dials the realtime endpoint and starts the read pump.
func (f *FullAgentProvider) Open(ctx context.Context, callID, systemPrompt string, toolCatalog []ToolCatalogEntry) (Handle, error) {
	conn, _, err := websocket.Dial(ctx, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("provider: %s: dial: %w", f.name, err)
	}

	h := &duplexHandle{
		name:   f.name,
		conn:   conn,
		events: make(chan Event, 32),
		done:   make(chan struct{}),
	}

	if err := wsjson.Write(ctx, conn, map[string]any{
		"type":          "session_start",
		"call_id":       callID,
		"system_prompt": systemPrompt,
		"tools":         toolCatalog,
	}); err != nil {
		conn.Close(websocket.StatusInternalError, "session_start failed")
		return nil, fmt.Errorf("provider: %s: session_start: %w", f.name, err)
	}

	go h.readPump(ctx)
	return h, nil
}

// duplexHandle is the shared Handle implementation for both the full-agent
// and local provider shapes: both are a single websocket connection
// speaking the same wireEvent envelope, differing only in what process is
// listening on the other end.
type duplexHandle struct {
	name string
	conn *websocket.Conn

	mu     sync.Mutex
	events chan Event
	done   chan struct{}
	closed bool
}

func (h *duplexHandle) PushAudio(frame audio.Frame) error {
	return wsjson.Write(context.Background(), h.conn, map[string]any{
		"type":        "ingress_audio",
		"samples":     frame.Samples,
		"duration_ms": frame.DurationMs,
		"seq":         frame.Seq,
	})
}

func (h *duplexHandle) PushToolResult(invocationID string, payload any) error {
	return wsjson.Write(context.Background(), h.conn, map[string]any{
		"type":          "tool_result",
		"invocation_id": invocationID,
		"payload":       payload,
	})
}

func (h *duplexHandle) Events() <-chan Event { return h.events }

func (h *duplexHandle) Close(reason string) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()
	close(h.done)
	return h.conn.Close(websocket.StatusNormalClosure, reason)
}

func (h *duplexHandle) readPump(ctx context.Context) {
	defer close(h.events)
	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, h.conn, &raw); err != nil {
			select {
			case <-h.done:
			default:
				h.events <- Event{Kind: KindError, ErrKind: "transport_unavailable", ErrDetail: err.Error()}
			}
			return
		}
		var w wireEvent
		if err := json.Unmarshal(raw, &w); err != nil {
			log.Warn().Str("provider", h.name).Err(err).Msg("provider: malformed duplex event")
			continue
		}
		select {
		case h.events <- w.toEvent():
		case <-h.done:
			return
		}
	}
}
