// Package coordinator implements single-speaker enforcement, self-echo
// prevention, and barge-in scheduling. The Coordinator is the single writer
// of egress frames to the transport and the single authority for gate
// open/close transitions.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/agentplexus/omnivoice-core/transport"
)

// Gate mirrors session.GateState locally to avoid an import cycle; the
// caller is responsible for mirroring transitions onto the session via
// OnGateChange.
type Gate string

const (
	GateOpen   Gate = "open"
	GateClosed Gate = "closed"
)

// Backend identifies which self-echo rearm behavior applies after a tail
// wait: Whisper-family backends need a synthetic segment-close re-arm,
// others just reopen the gate.
type Backend string

const (
	BackendGeneric Backend = "generic"
	BackendWhisper Backend = "whisper"
)

// VADScorer supplies the continuous vad_score estimate. The default is a
// local aggressive energy-based VAD; a provider with native VAD can
// instead be adapted to this interface. Barge-in threshold tuning is
// provider-specific and never hard-coded.
type VADScorer interface {
	// Score returns a 0..1 voice-activity estimate for one ingress chunk.
	Score(pcm16 []int16) float64
}

// Config tunes the coordinator's gate and barge-in timing.
type Config struct {
	// Tail is how long to wait after AssistantAudioDone before the later
	// of (playback_deadline, Tail) opens the gate (typically 150-250ms).
	Tail time.Duration

	// BargeInThreshold is the vad_score crossing point that triggers
	// barge-in while agent_speaking is true.
	BargeInThreshold float64

	// OnsetGuard disables barge-in for this long after agent speech
	// begins, to avoid self-triggering on TTS onset (typically 300-500ms).
	OnsetGuard time.Duration

	Backend Backend
}

// Hooks are the coordinator's callbacks into the rest of the call's
// machinery; kept as function fields (rather than interfaces) so tests can
// inject minimal stand-ins without a mock framework.
type Hooks struct {
	// OnGateChange mirrors gate transitions onto session state / metrics.
	OnGateChange func(Gate)

	// OnBargeIn fires when barge-in is detected: current playback must be
	// cancelled, the transport's egress queue force-drained, and the
	// pipeline transitioned to Listening.
	OnBargeIn func()

	// OnSegmentRearm fires for Whisper-family backends after the tail,
	// before the gate reopens, to inject a synthetic segment-close.
	OnSegmentRearm func()
}

// Coordinator implements the single-writer egress path and gate authority
// for one call.
type Coordinator struct {
	cfg   Config
	vad   VADScorer
	hooks Hooks
	conn  transport.Connection

	mu              sync.Mutex
	gate            Gate
	agentSpeaking   bool
	playbackDeadline time.Time
	speechStartedAt time.Time
	tailTimer       *time.Timer
}

// New creates a Coordinator writing egress to conn and scoring ingress VAD
// with vad (nil selects a local energy-based default via NewEnergyVAD).
func New(cfg Config, conn transport.Connection, vad VADScorer, hooks Hooks) *Coordinator {
	if vad == nil {
		vad = NewEnergyVAD(cfg.BargeInThreshold)
	}
	return &Coordinator{
		cfg:   cfg,
		vad:   vad,
		hooks: hooks,
		conn:  conn,
		gate:  GateClosed,
	}
}

// Gate returns the current ingress gate state.
func (c *Coordinator) Gate() Gate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gate
}

// setGate sets the ingress gate to g and fires the OnGateChange hook when
// the gate state actually changes.
func (c *Coordinator) setGate(g Gate) {
	c.mu.Lock()
	changed := c.gate != g
	c.gate = g
	c.mu.Unlock()
	if changed && c.hooks.OnGateChange != nil {
		c.hooks.OnGateChange(g)
	}
}

// estimateDuration computes playback duration from byte count, encoding,
// and sample rate.
func estimateDuration(byteLen int, encoding string, rateHz int) time.Duration {
	if rateHz <= 0 {
		return 0
	}
	bytesPerSample := 1
	if encoding == "pcm16" {
		bytesPerSample = 2
	}
	samples := byteLen / bytesPerSample
	seconds := float64(samples) / float64(rateHz)
	return time.Duration(seconds * float64(time.Second))
}

// SendAssistantAudio writes one chunk of agent audio to the transport,
// closing the gate and extending playback_deadline. ctx should be the
// active playback's cancelable context so cancellation (barge-in, session
// end) unblocks the write promptly.
func (c *Coordinator) SendAssistantAudio(ctx context.Context, chunk []byte, encoding string, rateHz int) error {
	c.mu.Lock()
	now := time.Now()
	if !c.agentSpeaking {
		c.agentSpeaking = true
		c.speechStartedAt = now
	}
	dur := estimateDuration(len(chunk), encoding, rateHz)
	deadline := now.Add(dur)
	if deadline.After(c.playbackDeadline) {
		c.playbackDeadline = deadline
	} else {
		// Keep extending relative to the running deadline so back-to-back
		// chunks accumulate duration instead of each resetting the clock.
		c.playbackDeadline = c.playbackDeadline.Add(dur)
	}
	c.mu.Unlock()

	c.setGate(GateClosed)
	return c.conn.SendEgress(ctx, chunk)
}

// AssistantAudioDone does not immediately reopen the gate. It waits for the
// later of playback_deadline or the configured tail, optionally re-arms the
// segment boundary for Whisper-family backends, then opens the gate. If no
// audio was ever sent for the turn (an empty turn) the gate reopens
// immediately.
func (c *Coordinator) AssistantAudioDone(ctx context.Context) {
	c.mu.Lock()
	wasSpeaking := c.agentSpeaking
	deadline := c.playbackDeadline
	c.agentSpeaking = false
	c.mu.Unlock()

	if !wasSpeaking {
		c.setGate(GateOpen)
		return
	}

	waitUntil := deadline
	tailDeadline := time.Now().Add(c.cfg.Tail)
	if tailDeadline.After(waitUntil) {
		waitUntil = tailDeadline
	}

	delay := time.Until(waitUntil)
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}

	if c.cfg.Backend == BackendWhisper && c.hooks.OnSegmentRearm != nil {
		c.hooks.OnSegmentRearm()
	}
	c.setGate(GateOpen)
}

// EvaluateIngress scores one ingress chunk for barge-in (rule 4). It
// should be called for every ingress chunk, gated or not, so barge-in can
// be detected even while the gate is closed during agent speech.
func (c *Coordinator) EvaluateIngress(pcm16 []int16) {
	c.mu.Lock()
	speaking := c.agentSpeaking
	onsetOK := time.Since(c.speechStartedAt) >= c.cfg.OnsetGuard
	c.mu.Unlock()

	if !speaking || !onsetOK {
		return
	}

	score := c.vad.Score(pcm16)
	if score < c.cfg.BargeInThreshold {
		return
	}

	c.mu.Lock()
	c.agentSpeaking = false
	c.playbackDeadline = time.Time{}
	c.mu.Unlock()

	c.setGate(GateOpen)
	if c.hooks.OnBargeIn != nil {
		c.hooks.OnBargeIn()
	}
}

// AgentSpeaking reports whether a playback is currently considered active.
func (c *Coordinator) AgentSpeaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agentSpeaking
}
