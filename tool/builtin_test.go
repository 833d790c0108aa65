package tool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOps struct {
	hungUp        bool
	transferred   string
	attendedCalls int
}

func (f *fakeOps) BlindTransfer(ctx context.Context, destination string) error {
	f.transferred = destination
	return nil
}

func (f *fakeOps) AttendedTransfer(ctx context.Context, destination string, ringTimeout, acceptTimeout time.Duration) (Result, error) {
	f.attendedCalls++
	return Result{Status: StatusSuccess, Message: "transferred"}, nil
}

func (f *fakeOps) CancelTransfer(ctx context.Context) error { return nil }
func (f *fakeOps) VoicemailDrop(ctx context.Context, mailbox string) error { return nil }

func (f *fakeOps) Hangup(ctx context.Context) error {
	f.hungUp = true
	return nil
}

func (f *fakeOps) ExtensionStatus(ctx context.Context, extension string) (string, error) {
	return "NOT_INUSE", nil
}

func TestHangupGuardrail_NormalPolicyRejectsWithoutMarker(t *testing.T) {
	ops := &fakeOps{}
	g := NewHangupGuardrail(ops, PolicyNormal, "", nil)
	def := g.Definition()

	res, err := def.Execute(context.Background(), map[string]any{
		"last_caller_utterance": "thank you for your help with that",
	})
	require.Error(t, err)
	assert.Equal(t, StatusError, res.Status)
	assert.False(t, ops.hungUp)
}

func TestHangupGuardrail_NormalPolicyAcceptsWithMarker(t *testing.T) {
	ops := &fakeOps{}
	g := NewHangupGuardrail(ops, PolicyNormal, "", nil)
	def := g.Definition()

	res, err := def.Execute(context.Background(), map[string]any{
		"last_caller_utterance": "ok, goodbye then",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.True(t, ops.hungUp)
}

func TestHangupGuardrail_RelaxedPolicyAlwaysAccepts(t *testing.T) {
	ops := &fakeOps{}
	g := NewHangupGuardrail(ops, PolicyRelaxed, "", nil)
	def := g.Definition()

	res, err := def.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.True(t, ops.hungUp)
}

func TestHangupGuardrail_AssistantFarewellAccepted(t *testing.T) {
	ops := &fakeOps{}
	g := NewHangupGuardrail(ops, PolicyStrict, "", nil)
	def := g.Definition()

	res, err := def.Execute(context.Background(), map[string]any{
		"assistant_just_farewelled": true,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
}

func TestHangupGuardrail_AutoDefersToGlobalDefault(t *testing.T) {
	ops := &fakeOps{}
	g := NewHangupGuardrail(ops, PolicyAuto, PolicyRelaxed, nil)
	assert.Equal(t, PolicyRelaxed, g.effectivePolicy())
}

func TestBuiltinDefinitions_TransferCallBlindMode(t *testing.T) {
	ops := &fakeOps{}
	defs := BuiltinDefinitions(ops, nil, nil)

	var transferDef Definition
	for _, d := range defs {
		if d.Name == "transfer_call" {
			transferDef = d
		}
	}
	require.NotEmpty(t, transferDef.Name)

	res, err := transferDef.Execute(context.Background(), map[string]any{
		"destination": "sales",
		"mode":        "blind",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "sales", ops.transferred)
}

func TestBuiltinDefinitions_TransferCallRequiresDestination(t *testing.T) {
	ops := &fakeOps{}
	defs := BuiltinDefinitions(ops, nil, nil)

	var transferDef Definition
	for _, d := range defs {
		if d.Name == "transfer_call" {
			transferDef = d
		}
	}

	res, err := transferDef.Execute(context.Background(), map[string]any{"mode": "blind"})
	require.NoError(t, err)
	assert.Equal(t, StatusError, res.Status)
}
