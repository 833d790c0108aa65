// Package rtp implements the ExternalMedia audio transport: a UDP socket
// pair advertised to the switch, carrying RTP with a small reorder window
// and monotonic sequence/timestamp.
package rtp

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/pion/rtp"
	"github.com/rs/zerolog/log"

	"github.com/agentplexus/omnivoice-core/transport"
)

// reorderWindow bounds how many out-of-order packets we hold before
// flushing: reorders within a small window (<=5 packets) are recovered.
// Beyond that the stream skips ahead to the lowest buffered sequence
// number, and the skipped packets are dropped as late if they arrive.
const reorderWindow = 5

// payloadType maps an encoding to its RTP payload type, per the telephony
// static payload type assignments used for ExternalMedia channels.
func payloadType(encoding string) uint8 {
	switch encoding {
	case "ulaw":
		return 0
	case "alaw":
		return 8
	default: // slin / pcm16
		return 11
	}
}

// Transport binds UDP socket pairs for ExternalMedia calls. The bind host
// may differ from the advertised host (NAT); AdvertiseHost is what gets
// handed to the switch when creating the media channel.
type Transport struct {
	BindHost      string
	AdvertiseHost string
	PortMin       int
	PortMax       int

	mu        sync.Mutex
	nextPort  int
	closed    bool
}

// New creates an RTP transport. portMin/portMax bound the UDP port range
// used for ExternalMedia socket pairs.
func New(bindHost, advertiseHost string, portMin, portMax int) *Transport {
	return &Transport{
		BindHost:      bindHost,
		AdvertiseHost: advertiseHost,
		PortMin:       portMin,
		PortMax:       portMax,
		nextPort:      portMin,
	}
}

func (t *Transport) Name() string { return "rtp" }

// AdvertisedAddr returns the host:port to hand the switch when creating the
// ExternalMedia channel for callID. Open must be called first.
func (c *Connection) AdvertisedAddr() string {
	return fmt.Sprintf("%s:%d", c.advertiseHost, c.localPort)
}

// Open binds a UDP socket for callID and returns without waiting for the
// peer. The remote addr is taken from each RTP packet received (ExternalMedia
// does not pre-negotiate it), so SendEgress fails until the first arrives.
func (t *Transport) Open(ctx context.Context, callID string, cfg transport.Config) (transport.Connection, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, transport.ErrClosed
	}
	port := t.allocPort()
	t.mu.Unlock()

	laddr := &net.UDPAddr{IP: net.ParseIP(t.BindHost), Port: port}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("rtp: bind %s: %w", laddr, err)
	}

	c := &Connection{
		callID:        callID,
		conn:          conn,
		advertiseHost: t.AdvertiseHost,
		localPort:     port,
		cfg:           cfg,
		ingress:       make(chan []byte, 64),
		events:        make(chan transport.Event, 8),
		closeCh:       make(chan struct{}),
		pt:            payloadType(cfg.Encoding),
		reorder:       make(map[uint16]*rtp.Packet),
	}
	go c.readLoop()
	return c, nil
}

func (t *Transport) allocPort() int {
	p := t.nextPort
	t.nextPort += 2 // leave room for a parallel RTCP port, as ExternalMedia does
	if t.nextPort > t.PortMax {
		t.nextPort = t.PortMin
	}
	return p
}

func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

// Connection is one call's RTP socket pair.
type Connection struct {
	callID        string
	conn          *net.UDPConn
	advertiseHost string
	localPort     int
	cfg           transport.Config

	remoteMu sync.RWMutex
	remote   *net.UDPAddr

	seqMu    sync.Mutex
	sendSeq  uint16
	sendTS   uint32
	ssrc     uint32

	recvMu    sync.Mutex
	expectSeq uint16
	haveFirst bool
	reorder   map[uint16]*rtp.Packet
	pt        uint8

	ingress chan []byte
	events  chan transport.Event
	closeCh chan struct{}
	closeOnce sync.Once
}

func (c *Connection) ID() string                         { return c.callID }
func (c *Connection) RecvIngress() <-chan []byte         { return c.ingress }
func (c *Connection) Events() <-chan transport.Event     { return c.events }

func (c *Connection) readLoop() {
	buf := make([]byte, 1500)
	for {
		n, raddr, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-c.closeCh:
			default:
				c.emitErr(err)
			}
			c.emitClosed()
			return
		}
		c.remoteMu.Lock()
		c.remote = raddr
		c.remoteMu.Unlock()

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}
		c.handlePacket(pkt)
	}
}

// handlePacket applies the reorder window: packets arriving out of sequence
// are buffered until the gap fills or the window is exceeded, at which
// point the window flushes in order. Packets older than the window are
// dropped (late packets never delay freshly arriving audio).
func (c *Connection) handlePacket(pkt *rtp.Packet) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	if !c.haveFirst {
		c.expectSeq = pkt.SequenceNumber
		c.haveFirst = true
	}

	if seqBefore(pkt.SequenceNumber, c.expectSeq) {
		// Late packet, older than what we've already delivered or are
		// about to deliver; drop.
		return
	}

	c.reorder[pkt.SequenceNumber] = pkt

	// Deliver everything contiguous starting at expectSeq.
	for {
		p, ok := c.reorder[c.expectSeq]
		if !ok {
			break
		}
		delete(c.reorder, c.expectSeq)
		c.deliver(p)
		c.expectSeq++
	}

	// If the window has grown beyond tolerance, force-advance past the
	// gap so the stream doesn't stall on one lost packet forever.
	if len(c.reorder) > reorderWindow {
		c.forceAdvance()
	}
}

func (c *Connection) forceAdvance() {
	// Find the lowest buffered sequence number still pending and jump to it.
	var lowest uint16
	found := false
	for seq := range c.reorder {
		if !found || seqBefore(seq, lowest) {
			lowest = seq
			found = true
		}
	}
	if !found {
		return
	}
	c.expectSeq = lowest
	for {
		p, ok := c.reorder[c.expectSeq]
		if !ok {
			break
		}
		delete(c.reorder, c.expectSeq)
		c.deliver(p)
		c.expectSeq++
	}
}

func (c *Connection) deliver(p *rtp.Packet) {
	payload := make([]byte, len(p.Payload))
	copy(payload, p.Payload)
	select {
	case c.ingress <- payload:
	default:
		log.Warn().Str("call_id", c.callID).Msg("rtp ingress channel full, dropping frame")
	}
}

// seqBefore reports whether a is strictly before b in RTP sequence-number
// space, accounting for 16-bit wraparound.
func seqBefore(a, b uint16) bool {
	return int16(a-b) < 0
}

func (c *Connection) SendEgress(ctx context.Context, chunk []byte) error {
	c.remoteMu.RLock()
	raddr := c.remote
	c.remoteMu.RUnlock()
	if raddr == nil {
		return fmt.Errorf("rtp: no remote peer yet for call %s", c.callID)
	}

	c.seqMu.Lock()
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    c.pt,
			SequenceNumber: c.sendSeq,
			Timestamp:      c.sendTS,
			SSRC:           c.ssrc,
		},
		Payload: chunk,
	}
	c.sendSeq++
	c.sendTS += uint32(samplesForEncoding(len(chunk), c.cfg.Encoding))
	c.seqMu.Unlock()

	data, err := pkt.Marshal()
	if err != nil {
		return fmt.Errorf("rtp: marshal: %w", err)
	}
	_, err = c.conn.WriteToUDP(data, raddr)
	return err
}

func samplesForEncoding(byteLen int, encoding string) int {
	if encoding == "pcm16" {
		return byteLen / 2
	}
	return byteLen // 1 byte/sample for ulaw/alaw
}

func (c *Connection) emitErr(err error) {
	select {
	case c.events <- transport.Event{Type: transport.EventError, Err: err}:
	default:
	}
}

func (c *Connection) emitClosed() {
	select {
	case c.events <- transport.Event{Type: transport.EventClosed}:
	default:
	}
}

func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}
