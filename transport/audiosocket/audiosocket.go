// Package audiosocket implements the AudioSocket framed-TCP transport: one
// connection per call, frames are [type:u8][length:u16-be][payload].
package audiosocket

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/agentplexus/omnivoice-core/transport"
)

// Frame types, per the AudioSocket wire protocol.
const (
	TypeHangup byte = 0x00
	TypeID     byte = 0x01
	TypeAudio  byte = 0x10
	TypeDTMF   byte = 0x03
	TypeError  byte = 0xff
)

const maxFrameLen = 1 << 16

// Transport accepts one AudioSocket TCP connection per call.
type Transport struct {
	ln net.Listener

	mu      sync.Mutex
	pending map[string]chan net.Conn
	closed  bool
}

// Listen starts accepting AudioSocket connections on addr. The switch
// dials in per call, sending a TypeID frame naming the call; Open then
// blocks until that call's connection arrives.
func Listen(addr string) (*Transport, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("audiosocket: listen %s: %w", addr, err)
	}
	t := &Transport{ln: ln, pending: make(map[string]chan net.Conn)}
	go t.acceptLoop()
	return t, nil
}

func (t *Transport) Name() string { return "audiosocket" }

func (t *Transport) acceptLoop() {
	for {
		conn, err := t.ln.Accept()
		if err != nil {
			return
		}
		go t.identify(conn)
	}
}

// identify reads the first frame; it must be a TypeID frame naming the call
// this socket belongs to, matching what the switch was configured to send.
func (t *Transport) identify(conn net.Conn) {
	typ, payload, err := readFrame(conn)
	if err != nil || typ != TypeID {
		conn.Close()
		return
	}
	callID := string(payload)

	t.mu.Lock()
	ch, ok := t.pending[callID]
	t.mu.Unlock()
	if !ok {
		conn.Close()
		return
	}
	select {
	case ch <- conn:
	default:
		conn.Close()
	}
}

// Open waits (up to ctx's deadline) for the call's AudioSocket connection
// to arrive.
func (t *Transport) Open(ctx context.Context, callID string, cfg transport.Config) (transport.Connection, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, transport.ErrClosed
	}
	ch := make(chan net.Conn, 1)
	t.pending[callID] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, callID)
		t.mu.Unlock()
	}()

	select {
	case conn := <-ch:
		c := &Connection{
			callID:  callID,
			conn:    conn,
			cfg:     cfg,
			ingress: make(chan []byte, 64),
			events:  make(chan transport.Event, 8),
			closeCh: make(chan struct{}),
		}
		go c.readLoop()
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return t.ln.Close()
}

// Connection is one call's AudioSocket TCP connection.
type Connection struct {
	callID string
	conn   net.Conn
	cfg    transport.Config

	writeMu sync.Mutex

	ingress chan []byte
	events  chan transport.Event
	closeCh chan struct{}
	once    sync.Once
}

func (c *Connection) ID() string                     { return c.callID }
func (c *Connection) RecvIngress() <-chan []byte     { return c.ingress }
func (c *Connection) Events() <-chan transport.Event { return c.events }

func (c *Connection) readLoop() {
	for {
		typ, payload, err := readFrame(c.conn)
		if err != nil {
			select {
			case <-c.closeCh:
			default:
				if err != io.EOF {
					c.emit(transport.Event{Type: transport.EventError, Err: err})
				}
			}
			c.emit(transport.Event{Type: transport.EventClosed})
			return
		}
		switch typ {
		case TypeAudio:
			frame := make([]byte, len(payload))
			copy(frame, payload)
			select {
			case c.ingress <- frame:
			default:
				log.Warn().Str("call_id", c.callID).Msg("audiosocket ingress channel full, dropping frame")
			}
		case TypeDTMF:
			c.emit(transport.Event{Type: transport.EventDTMF, Digit: string(payload)})
		case TypeHangup:
			c.emit(transport.Event{Type: transport.EventClosed})
			return
		case TypeError:
			c.emit(transport.Event{Type: transport.EventError, Err: fmt.Errorf("audiosocket: peer reported error")})
		}
	}
}

// SendEgress writes one chunk as a single TypeAudio frame. The switch-side
// protocol requires per-chunk delivery ordering and forbids coalescing
// below the profile's chunk duration, so callers (the coordinator) must
// already have paced chunks to cfg.ChunkDurationMs before calling this.
func (c *Connection) SendEgress(ctx context.Context, chunk []byte) error {
	if len(chunk) > maxFrameLen {
		return fmt.Errorf("audiosocket: frame too large: %d bytes", len(chunk))
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeFrame(c.conn, TypeAudio, chunk)
}

func (c *Connection) emit(ev transport.Event) {
	select {
	case c.events <- ev:
	default:
	}
}

func (c *Connection) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

func readFrame(r io.Reader) (byte, []byte, error) {
	hdr := make([]byte, 3)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return 0, nil, err
	}
	typ := hdr[0]
	length := binary.BigEndian.Uint16(hdr[1:3])
	if length == 0 {
		return typ, nil, nil
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return typ, payload, nil
}

func writeFrame(w io.Writer, typ byte, payload []byte) error {
	hdr := make([]byte, 3+len(payload))
	hdr[0] = typ
	binary.BigEndian.PutUint16(hdr[1:3], uint16(len(payload)))
	copy(hdr[3:], payload)
	_, err := w.Write(hdr)
	return err
}
