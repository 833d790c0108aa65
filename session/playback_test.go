package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentplexus/omnivoice-core/llm"
)

func TestPlaybackManager_SingleActiveInvariant(t *testing.T) {
	m := NewPlaybackManager(context.Background())

	p1, err := m.Allocate(time.Second)
	require.NoError(t, err)
	require.NoError(t, m.MarkStarted(p1))

	p2, err := m.Allocate(time.Second)
	require.NoError(t, err)
	err = m.MarkStarted(p2)
	require.Error(t, err, "a second playback must not be allowed to start while one is active")

	assert.Same(t, p1, m.Active())
}

func TestPlaybackManager_CompleteClearsActive(t *testing.T) {
	m := NewPlaybackManager(context.Background())
	p, err := m.Allocate(0)
	require.NoError(t, err)
	require.NoError(t, m.MarkStarted(p))

	m.Complete(p)
	assert.Nil(t, m.Active())
	assert.Equal(t, PlaybackCompleted, p.State)
}

func TestPlaybackManager_CancelClearsActiveAndCancelsContext(t *testing.T) {
	m := NewPlaybackManager(context.Background())
	p, err := m.Allocate(0)
	require.NoError(t, err)
	require.NoError(t, m.MarkStarted(p))

	m.Cancel(p)
	assert.Nil(t, m.Active())
	assert.Equal(t, PlaybackCancelled, p.State)
	select {
	case <-p.Context().Done():
	default:
		t.Fatal("cancelled playback's context should be done")
	}
}

func TestPlaybackManager_CancelAllIsOnlyOperationAfterTerminate(t *testing.T) {
	m := NewPlaybackManager(context.Background())
	p, err := m.Allocate(0)
	require.NoError(t, err)
	require.NoError(t, m.MarkStarted(p))

	m.CancelAll()
	assert.Nil(t, m.Active())
	assert.Equal(t, PlaybackCancelled, p.State)

	_, err = m.Allocate(0)
	require.Error(t, err, "no new playback may be allocated after CancelAll/terminate")
}

func TestCall_TerminatePreventsFurtherHistoryWrites(t *testing.T) {
	call := NewCall(context.Background(), "call-1")
	call.Terminate()
	call.AppendHistory(llm.Message{Role: llm.RoleUser, Content: "hello"})
	assert.Empty(t, call.History(), "no further side effects are permitted on a terminated session")
}

func TestCall_TerminateIsIdempotent(t *testing.T) {
	call := NewCall(context.Background(), "call-1")
	call.Terminate()
	call.Terminate()
	assert.True(t, call.Terminated())
}
