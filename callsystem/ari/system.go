package ari

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/agentplexus/omnivoice-core/callsystem"
)

// System implements callsystem.CallSystem against one Asterisk Stasis
// application: it owns the ARI client's event stream and dispatches
// StasisStart/StasisEnd/ChannelHangupRequest into the Call Lifecycle
// Controller for each channel. ChannelDtmfReceived is not acted on here.
type System struct {
	client *Client

	mu      sync.RWMutex
	calls   map[string]*Call
	handler callsystem.CallHandler

	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a System. Configure must be called before Connect.
func New() *System {
	return &System{calls: make(map[string]*Call)}
}

func (s *System) Name() string { return "asterisk-ari" }

// Configure points System at an ARI instance and Stasis application.
func (s *System) Configure(cfg callsystem.CallSystemConfig) error {
	s.client = NewClient(cfg.BaseURL, cfg.Username, cfg.Password, cfg.AppName)
	return nil
}

// OnIncomingCall registers the handler invoked on StasisStart.
func (s *System) OnIncomingCall(handler callsystem.CallHandler) {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()
}

// Connect dials the ARI event stream and starts the dispatch loop. Call
// after Configure and OnIncomingCall.
func (s *System) Connect(ctx context.Context) error {
	if err := s.client.Connect(ctx); err != nil {
		return err
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	go s.dispatchLoop()
	return nil
}

func (s *System) dispatchLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-s.client.Events():
			if !ok {
				return
			}
			s.handleEvent(ev)
		}
	}
}

func (s *System) handleEvent(ev Event) {
	switch ev.Type {
	case EventStasisStart:
		s.handleStasisStart(ev)
	case EventStasisEnd:
		s.handleStasisEnd(ev)
	case EventChannelHangupRequest:
		s.handleHangupRequest(ev)
	case EventChannelDtmfReceived:
		// DTMF is surfaced to the caller via the transport.Connection's
		// Events() channel, not here; the controller does not itself act
		// on digits.
	default:
	}
}

func (s *System) handleStasisStart(ev Event) {
	if ev.Channel == nil {
		return
	}
	call := newCall(s.ctx, s.client, ev.Channel)

	s.mu.Lock()
	s.calls[call.id] = call
	handler := s.handler
	s.mu.Unlock()

	if handler == nil {
		log.Warn().Str("call_id", call.id).Msg("ari: no incoming-call handler registered, hanging up")
		_ = call.Hangup(s.ctx)
		return
	}

	go func() {
		if err := handler(call.ctx, call); err != nil {
			log.Error().Str("call_id", call.id).Err(err).Msg("ari: incoming call handler failed")
			_ = call.Hangup(s.ctx)
		}
	}()
}

func (s *System) handleStasisEnd(ev Event) {
	if ev.Channel == nil {
		return
	}
	s.mu.Lock()
	call, ok := s.calls[ev.Channel.ID]
	delete(s.calls, ev.Channel.ID)
	s.mu.Unlock()
	if !ok {
		return
	}
	call.setState(StateDraining)
	_ = call.Close()
}

func (s *System) handleHangupRequest(ev Event) {
	if ev.Channel == nil {
		return
	}
	s.mu.RLock()
	call, ok := s.calls[ev.Channel.ID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	_ = call.Close()
}

// GetCall looks up a tracked call by id.
func (s *System) GetCall(ctx context.Context, callID string) (callsystem.Call, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.calls[callID]
	return c, ok
}

// ListCalls returns every currently tracked call.
func (s *System) ListCalls(ctx context.Context) []callsystem.Call {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]callsystem.Call, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, c)
	}
	return out
}

// Close tears down the event stream and cancels the dispatch loop.
func (s *System) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.client.Close()
}
