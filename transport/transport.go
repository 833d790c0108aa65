// Package transport provides the duplex audio path between the switch and
// the call lifecycle controller: RTP (ExternalMedia) or framed-TCP
// (AudioSocket). Neither implementation resamples; both forward raw bytes
// at the negotiated audio profile.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by Transport.Open after the Transport is closed.
var ErrClosed = errors.New("transport: closed")

// Config is the negotiated profile a transport must honor.
type Config struct {
	// SampleRate is the audio sample rate in Hz of audio crossing this transport.
	SampleRate int

	// Encoding is the wire encoding ("pcm16", "ulaw", "alaw").
	Encoding string

	// ChunkDurationMs is the pacing unit; implementations must not coalesce
	// egress writes below this duration.
	ChunkDurationMs int
}

// Connection is a single call's open duplex audio path.
type Connection interface {
	// ID returns the call id this connection was opened for.
	ID() string

	// SendEgress writes one chunk of agent audio, encoded per Config.
	// The coordinator is the only permitted caller, to preserve egress
	// ordering; callers must not interleave calls to SendEgress.
	SendEgress(ctx context.Context, chunk []byte) error

	// RecvIngress returns the channel of raw ingress audio chunks, encoded
	// per Config, in order: arrival order for audiosocket, sequence-number
	// order after the reorder window for rtp.
	RecvIngress() <-chan []byte

	// Events returns the channel of transport lifecycle events.
	Events() <-chan Event

	// Close tears down the connection. Idempotent.
	Close() error
}

// Event represents a transport event.
type Event struct {
	// Type is the event type.
	Type EventType

	// Digit carries the DTMF digit for EventDTMF.
	Digit string

	// Err carries the error for EventError.
	Err error
}

// EventType identifies the type of transport event.
type EventType string

const (
	// EventClosed indicates the peer (switch) disconnected.
	EventClosed EventType = "closed"

	// EventDTMF indicates an inline DTMF digit was received (AudioSocket).
	EventDTMF EventType = "dtmf"

	// EventError indicates a transport-level error.
	EventError EventType = "error"
)

// Transport opens Connections for calls. Implementations: transport/rtp
// (ExternalMedia) and transport/audiosocket (framed TCP).
type Transport interface {
	// Name identifies the transport ("rtp", "audiosocket").
	Name() string

	// Open binds/accepts the transport for one call and returns its
	// Connection: audiosocket once the peer's connection has arrived, rtp
	// as soon as its socket is bound. Must respect ctx's deadline
	// (spec: transport open <= 3s).
	Open(ctx context.Context, callID string, cfg Config) (Connection, error)

	// Close shuts down the transport (stops accepting/binding new calls).
	Close() error
}
