// Package callsystem defines the telephony call-control surface; concrete
// switch integrations (package callsystem/ari for Asterisk ARI) implement
// it.
package callsystem

import (
	"context"
	"time"

	"github.com/agentplexus/omnivoice-core/transport"
)

// CallDirection indicates inbound or outbound call.
type CallDirection string

const (
	Inbound  CallDirection = "inbound"
	Outbound CallDirection = "outbound"
)

// CallStatus represents the call state, a coarser view of the call
// lifecycle controller's full state machine for callers that only need to
// know ringing/answered/ended.
type CallStatus string

const (
	StatusRinging  CallStatus = "ringing"
	StatusAnswered CallStatus = "answered"
	StatusEnded    CallStatus = "ended"
	StatusFailed   CallStatus = "failed"
	StatusBusy     CallStatus = "busy"
	StatusNoAnswer CallStatus = "no_answer"
)

// Call represents one telephony call under lifecycle control.
type Call interface {
	ID() string
	Direction() CallDirection
	Status() CallStatus
	From() string
	To() string
	StartTime() time.Time
	Duration() time.Duration

	// Answer answers an inbound call.
	Answer(ctx context.Context) error

	// Hangup ends the call.
	Hangup(ctx context.Context) error

	// Transport returns the underlying transport connection (the
	// ExternalMedia/AudioSocket leg negotiated for this call).
	Transport() transport.Connection
}

// CallHandler is invoked when a new call arrives (a Stasis-start event).
type CallHandler func(ctx context.Context, call Call) error

// CallSystemConfig configures a call system integration.
type CallSystemConfig struct {
	// BaseURL is the ARI base HTTP URL (e.g. "http://127.0.0.1:8088/ari").
	BaseURL string

	// Username/Password authenticate against the ARI REST and WebSocket
	// endpoints.
	Username string
	Password string

	// AppName is the Stasis application name this process registers under.
	AppName string
}

// CallSystem defines the call-control surface a concrete switch
// integration implements.
type CallSystem interface {
	Name() string
	Configure(config CallSystemConfig) error
	OnIncomingCall(handler CallHandler)
	GetCall(ctx context.Context, callID string) (Call, bool)
	ListCalls(ctx context.Context) []Call
	Close() error
}
