package provider

import (
	"context"
	"fmt"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// LocalProvider implements the local multi-capability server shape: a
// self-hosted process exposing STT+LLM+TTS (or a subset) behind one
// websocket, such as a Silero VAD + local LLM + local TTS stack. It
// speaks the same wireEvent envelope as FullAgentProvider; the two differ
// only in capability advertisement (a local server often lacks NativeVAD or
// has a restricted ToolCallLevel).
type LocalProvider struct {
	name string
	url  string
	caps Capabilities
}

// NewLocalProvider builds a LocalProvider dialing url, a loopback or
// private-network websocket endpoint for the local server process.
func NewLocalProvider(name, url string, caps Capabilities) *LocalProvider {
	caps.FullAgent = true
	return &LocalProvider{name: name, url: url, caps: caps}
}

func (l *LocalProvider) Name() string              { return l.name }
func (l *LocalProvider) Capabilities() Capabilities { return l.caps }

// Open dials the local server's websocket endpoint.
func (l *LocalProvider) Open(ctx context.Context, callID, systemPrompt string, toolCatalog []ToolCatalogEntry) (Handle, error) {
	conn, _, err := websocket.Dial(ctx, l.url, nil)
	if err != nil {
		return nil, fmt.Errorf("provider: %s: dial: %w", l.name, err)
	}

	h := &duplexHandle{
		name:   l.name,
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
		return nil, fmt.Errorf("provider: %s: session_start: %w", l.name, err)
	}

	go h.readPump(ctx)
	return h, nil
}
