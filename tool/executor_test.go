package tool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutor_ExecutesRegisteredTool(t *testing.T) {
	reg := NewRegistry()
	reg.Load([]Definition{{
		Name: "ping",
		Execute: func(ctx context.Context, args map[string]any) (Result, error) {
			return Result{Status: StatusSuccess, Message: "pong"}, nil
		},
	}})
	exec := NewExecutor(reg)

	inv := exec.Execute(context.Background(), 1, "ping", nil)
	require.NoError(t, inv.Err)
	assert.Equal(t, StatusSuccess, inv.Result.Status)
}

func TestExecutor_UnknownToolReturnsError(t *testing.T) {
	exec := NewExecutor(NewRegistry())
	inv := exec.Execute(context.Background(), 1, "missing", nil)
	assert.Error(t, inv.Err)
	assert.Equal(t, StatusError, inv.Result.Status)
}

func TestExecutor_SchemaValidationRejectsMissingRequired(t *testing.T) {
	reg := NewRegistry()
	reg.Load([]Definition{{
		Name:       "needs_arg",
		Parameters: map[string]ParamSchema{"x": {Type: "string", Required: true}},
		Execute: func(ctx context.Context, args map[string]any) (Result, error) {
			return Result{Status: StatusSuccess}, nil
		},
	}})
	exec := NewExecutor(reg)

	inv := exec.Execute(context.Background(), 1, "needs_arg", nil)
	require.Error(t, inv.Err)
	var schemaErr *ErrSchemaValidation
	assert.ErrorAs(t, inv.Err, &schemaErr)
}

func TestExecutor_TimesOutSlowTool(t *testing.T) {
	reg := NewRegistry()
	reg.Load([]Definition{{
		Name:    "slow",
		Timeout: 10 * time.Millisecond,
		Execute: func(ctx context.Context, args map[string]any) (Result, error) {
			<-ctx.Done()
			return Result{}, ctx.Err()
		},
	}})
	exec := NewExecutor(reg)

	inv := exec.Execute(context.Background(), 1, "slow", nil)
	require.Error(t, inv.Err)
	var timeoutErr *ErrTimeout
	assert.ErrorAs(t, inv.Err, &timeoutErr)
}

func TestExecutor_PostCallRunsAtMostOncePerCall(t *testing.T) {
	var runs int32
	reg := NewRegistry()
	reg.Load([]Definition{{
		Name:  "send_summary",
		Phase: PhasePostCall,
		Execute: func(ctx context.Context, args map[string]any) (Result, error) {
			atomic.AddInt32(&runs, 1)
			return Result{Status: StatusSuccess}, nil
		},
	}})
	exec := NewExecutor(reg)

	exec.ExecutePostCall(context.Background(), "call-1", nil)
	exec.ExecutePostCall(context.Background(), "call-1", nil)
	exec.ExecutePostCall(context.Background(), "call-1", nil)

	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}

func TestExecutor_PanicIsContainedToOneInvocation(t *testing.T) {
	reg := NewRegistry()
	reg.Load([]Definition{{
		Name: "panics",
		Execute: func(ctx context.Context, args map[string]any) (Result, error) {
			panic("boom")
		},
	}})
	exec := NewExecutor(reg)

	var inv Invocation
	assert.NotPanics(t, func() {
		inv = exec.Execute(context.Background(), 1, "panics", nil)
	})
	assert.Equal(t, StatusError, inv.Result.Status)
	assert.Error(t, inv.Err)
}

func TestExecutor_PostCallNeverPanicsCaller(t *testing.T) {
	reg := NewRegistry()
	reg.Load([]Definition{{
		Name:  "panics",
		Phase: PhasePostCall,
		Execute: func(ctx context.Context, args map[string]any) (Result, error) {
			panic("boom")
		},
	}})
	exec := NewExecutor(reg)

	assert.NotPanics(t, func() {
		exec.ExecutePostCall(context.Background(), "call-2", nil)
	})
}
