package ari

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentplexus/omnivoice-core/callsystem"
	"github.com/agentplexus/omnivoice-core/transport"
)

// LifecycleState is one state of the call lifecycle controller's state
// machine: Inbound -> Answered -> TransportNegotiated -> GreetingSpeaking
// -> Conversing -> {Transferring|Hanging|Draining} -> Closed.
type LifecycleState string

const (
	StateInbound             LifecycleState = "inbound"
	StateAnswered            LifecycleState = "answered"
	StateTransportNegotiated LifecycleState = "transport_negotiated"
	StateGreetingSpeaking    LifecycleState = "greeting_speaking"
	StateConversing          LifecycleState = "conversing"
	StateTransferring        LifecycleState = "transferring"
	StateHanging             LifecycleState = "hanging"
	StateDraining            LifecycleState = "draining"
	StateClosed              LifecycleState = "closed"
)

// Call implements callsystem.Call and tool.TelephonyOps on top of one
// Asterisk channel under Stasis control. It owns the lifecycle state
// machine, the negotiated media transport, and the attended-transfer
// sub-state machine.
type Call struct {
	client *Client

	id           string
	direction    callsystem.CallDirection
	callerNumber string
	calleeNumber string
	startTime    time.Time

	mu      sync.RWMutex
	state   LifecycleState
	status  callsystem.CallStatus
	conn    transport.Connection
	xfer    *transferState
	endedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// newCall constructs a Call from a StasisStart event's channel.
func newCall(parent context.Context, client *Client, ch *Channel) *Call {
	ctx, cancel := context.WithCancel(parent)
	return &Call{
		client:       client,
		id:           ch.ID,
		direction:    callsystem.Inbound,
		callerNumber: ch.Caller.Number,
		calleeNumber: ch.Dialplan.Exten,
		startTime:    time.Now(),
		state:        StateInbound,
		status:       callsystem.StatusRinging,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (c *Call) setState(s LifecycleState) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	log.Debug().Str("call_id", c.id).Str("from", string(prev)).Str("to", string(s)).Msg("ari: lifecycle transition")
}

// LifecycleState returns the current controller state.
func (c *Call) LifecycleState() LifecycleState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Call) ID() string                        { return c.id }
func (c *Call) Direction() callsystem.CallDirection { return c.direction }
func (c *Call) From() string                        { return c.callerNumber }
func (c *Call) To() string                          { return c.calleeNumber }
func (c *Call) StartTime() time.Time                { return c.startTime }

func (c *Call) Status() callsystem.CallStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Call) Duration() time.Duration {
	c.mu.RLock()
	end := c.endedAt
	c.mu.RUnlock()
	if end.IsZero() {
		return time.Since(c.startTime)
	}
	return end.Sub(c.startTime)
}

// Context returns the call's root cancellation context, cancelled once the
// controller reaches Closed.
func (c *Call) Context() context.Context { return c.ctx }

// Answer answers the inbound channel and advances Inbound -> Answered.
func (c *Call) Answer(ctx context.Context) error {
	if err := c.client.Answer(ctx, c.id); err != nil {
		return fmt.Errorf("ari: answer %s: %w", c.id, err)
	}
	c.mu.Lock()
	c.status = callsystem.StatusAnswered
	c.mu.Unlock()
	c.setState(StateAnswered)
	return nil
}

// NegotiateTransport opens the ExternalMedia/AudioSocket leg for this call
// via tr and advances Answered -> TransportNegotiated. For the rtp transport
// it creates an ExternalMedia channel and a mixing bridge holding both the
// caller channel and the ExternalMedia channel; transfers use that bridge.
// For audiosocket no bridge is created.
func (c *Call) NegotiateTransport(ctx context.Context, tr transport.Transport, cfg transport.Config, externalHost string) error {
	conn, err := tr.Open(ctx, c.id, cfg)
	if err != nil {
		return fmt.Errorf("ari: negotiate transport for %s: %w", c.id, err)
	}

	if tr.Name() == "rtp" {
		emID, err := c.client.ExternalMedia(ctx, externalHost, cfg.Encoding)
		if err != nil {
			conn.Close()
			return fmt.Errorf("ari: external media for %s: %w", c.id, err)
		}
		bridgeID, err := c.client.CreateBridge(ctx, "mixing")
		if err != nil {
			conn.Close()
			return fmt.Errorf("ari: create bridge for %s: %w", c.id, err)
		}
		if err := c.client.AddChannelToBridge(ctx, bridgeID, c.id); err != nil {
			conn.Close()
			return fmt.Errorf("ari: bridge caller leg for %s: %w", c.id, err)
		}
		if err := c.client.AddChannelToBridge(ctx, bridgeID, emID); err != nil {
			conn.Close()
			return fmt.Errorf("ari: bridge external media leg for %s: %w", c.id, err)
		}
		c.mu.Lock()
		c.xfer = &transferState{bridgeID: bridgeID}
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(StateTransportNegotiated)
	return nil
}

// Transport returns the negotiated media connection, or nil before
// NegotiateTransport has run.
func (c *Call) Transport() transport.Connection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// BeginGreeting marks the controller TransportNegotiated -> GreetingSpeaking,
// called by the orchestrator before it speaks the opening prompt.
func (c *Call) BeginGreeting() { c.setState(StateGreetingSpeaking) }

// BeginConversing marks the controller GreetingSpeaking ->
// Conversing, called once the greeting (or a turn) finishes.
func (c *Call) BeginConversing() { c.setState(StateConversing) }

// Hangup tears down the channel and advances the controller to Closed.
// Implements tool.TelephonyOps and callsystem.Call.
func (c *Call) Hangup(ctx context.Context) error {
	c.setState(StateHanging)
	if err := c.client.Hangup(ctx, c.id, "normal"); err != nil {
		log.Warn().Str("call_id", c.id).Err(err).Msg("ari: hangup request failed")
	}
	return c.Close()
}

// Close finalizes the call (Draining -> Closed): cancels the root context
// and closes the negotiated transport. Idempotent.
func (c *Call) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	c.status = callsystem.StatusEnded
	c.endedAt = time.Now()
	conn := c.conn
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// VoicemailDrop plays a pre-recorded voicemail greeting then hangs up,
// implementing tool.TelephonyOps.
func (c *Call) VoicemailDrop(ctx context.Context, mailbox string) error {
	media := "sound:vm-goodbye"
	if mailbox != "" {
		media = "sound:" + mailbox
	}
	if _, err := c.client.Play(ctx, c.id, media); err != nil {
		return fmt.Errorf("ari: voicemail drop %s: %w", c.id, err)
	}
	return nil
}

// ExtensionStatus reports a device's state via the ARI device-state
// endpoint, implementing tool.TelephonyOps.
func (c *Call) ExtensionStatus(ctx context.Context, extension string) (string, error) {
	state, err := c.client.DeviceState(ctx, "PJSIP/"+extension)
	if err != nil {
		return "", fmt.Errorf("ari: extension status %s: %w", extension, err)
	}
	return state, nil
}
