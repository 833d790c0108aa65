package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentplexus/omnivoice-core/transport"
)

type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
}

func (f *fakeConn) ID() string { return "fake" }

func (f *fakeConn) SendEgress(ctx context.Context, chunk []byte) error {
	f.mu.Lock()
	f.frames = append(f.frames, append([]byte(nil), chunk...))
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) RecvIngress() <-chan []byte  { return nil }
func (f *fakeConn) Events() <-chan transport.Event { return nil }
func (f *fakeConn) Close() error                { return nil }

func (f *fakeConn) sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.frames))
	copy(out, f.frames)
	return out
}

type fixedVAD struct{ score float64 }

func (v fixedVAD) Score(_ []int16) float64 { return v.score }

func TestCoordinator_SendAssistantAudioClosesGate(t *testing.T) {
	conn := &fakeConn{}
	c := New(Config{Tail: 10 * time.Millisecond, BargeInThreshold: 0.5, OnsetGuard: 0}, conn, fixedVAD{}, Hooks{})

	err := c.SendAssistantAudio(context.Background(), make([]byte, 320), "pcm16", 8000)
	require.NoError(t, err)
	assert.Equal(t, GateClosed, c.Gate())
	assert.Len(t, conn.sent(), 1)
}

func TestCoordinator_AssistantAudioDoneReopensGateAfterTail(t *testing.T) {
	conn := &fakeConn{}
	c := New(Config{Tail: 20 * time.Millisecond, BargeInThreshold: 0.5, OnsetGuard: 0}, conn, fixedVAD{}, Hooks{})

	require.NoError(t, c.SendAssistantAudio(context.Background(), make([]byte, 160), "pcm16", 8000))
	c.AssistantAudioDone(context.Background())
	assert.Equal(t, GateOpen, c.Gate())
}

func TestCoordinator_EmptyTurnReopensGateImmediately(t *testing.T) {
	conn := &fakeConn{}
	c := New(Config{Tail: time.Second, BargeInThreshold: 0.5, OnsetGuard: 0}, conn, fixedVAD{}, Hooks{})

	start := time.Now()
	c.AssistantAudioDone(context.Background())
	assert.Less(t, time.Since(start), 50*time.Millisecond, "an AssistantAudioDone with no prior audio must not wait out the tail")
	assert.Equal(t, GateOpen, c.Gate())
}

func TestCoordinator_BargeInFiresDuringPlayback(t *testing.T) {
	conn := &fakeConn{}
	var bargedIn bool
	c := New(Config{Tail: time.Second, BargeInThreshold: 0.3, OnsetGuard: 0}, conn, fixedVAD{score: 0.9}, Hooks{
		OnBargeIn: func() { bargedIn = true },
	})

	require.NoError(t, c.SendAssistantAudio(context.Background(), make([]byte, 3200), "pcm16", 8000))
	c.EvaluateIngress(make([]int16, 160))

	assert.True(t, bargedIn)
	assert.Equal(t, GateOpen, c.Gate())
	assert.False(t, c.AgentSpeaking())
}

func TestCoordinator_OnsetGuardSuppressesEarlyBargeIn(t *testing.T) {
	conn := &fakeConn{}
	var bargedIn bool
	c := New(Config{Tail: time.Second, BargeInThreshold: 0.3, OnsetGuard: time.Hour}, conn, fixedVAD{score: 0.9}, Hooks{
		OnBargeIn: func() { bargedIn = true },
	})

	require.NoError(t, c.SendAssistantAudio(context.Background(), make([]byte, 320), "pcm16", 8000))
	c.EvaluateIngress(make([]int16, 160))

	assert.False(t, bargedIn, "barge-in during the onset guard window must be suppressed")
}

func TestCoordinator_GateChangeHookFires(t *testing.T) {
	conn := &fakeConn{}
	var transitions []Gate
	c := New(Config{Tail: 0, BargeInThreshold: 0.5, OnsetGuard: 0}, conn, fixedVAD{}, Hooks{
		OnGateChange: func(g Gate) { transitions = append(transitions, g) },
	})

	// The coordinator starts with the gate already closed, so only the
	// reopening transition fires the hook.
	require.NoError(t, c.SendAssistantAudio(context.Background(), make([]byte, 160), "pcm16", 8000))
	c.AssistantAudioDone(context.Background())

	require.Len(t, transitions, 1)
	assert.Equal(t, GateOpen, transitions[0])
}
