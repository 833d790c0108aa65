package tool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrSchemaValidation is returned when invocation arguments fail the
// declared parameter schema.
type ErrSchemaValidation struct {
	Tool  string
	Field string
	Want  string
}

func (e *ErrSchemaValidation) Error() string {
	return fmt.Sprintf("tool %s: parameter %q: expected %s", e.Tool, e.Field, e.Want)
}

// ErrTimeout is returned when a tool exceeds its per-tool deadline.
type ErrTimeout struct{ Tool string }

func (e *ErrTimeout) Error() string { return fmt.Sprintf("tool %s: execution timed out", e.Tool) }

// postCallOnce tracks call ids whose post-call tools have already run, so
// PostCall execution is at-most-once per call even if the lifecycle
// controller's Draining path is re-entered.
type postCallOnce struct {
	mu   sync.Mutex
	done map[string]bool
}

// Executor validates arguments, applies per-tool timeouts, and dispatches
// to the registered execution function.
type Executor struct {
	registry *Registry
	postCall postCallOnce
}

// NewExecutor creates an Executor bound to registry.
func NewExecutor(registry *Registry) *Executor {
	e := &Executor{registry: registry}
	e.postCall.done = make(map[string]bool)
	return e
}

// Validate checks args against def's declared schema: required fields
// present, and present fields of the expected Go-level type.
func Validate(def Definition, args map[string]any) error {
	for name, schema := range def.Parameters {
		v, present := args[name]
		if !present {
			if schema.Required {
				return &ErrSchemaValidation{Tool: def.Name, Field: name, Want: schema.Type + " (required)"}
			}
			continue
		}
		if !typeMatches(schema.Type, v) {
			return &ErrSchemaValidation{Tool: def.Name, Field: name, Want: schema.Type}
		}
	}
	return nil
}

func typeMatches(want string, v any) bool {
	switch want {
	case "", "any":
		return true
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		switch v.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	default:
		return true
	}
}

// Execute validates, times out, and runs an in-call or pre-call tool,
// returning a fully populated Invocation. It never panics the caller:
// execution errors are captured into the Invocation/Result, never
// propagated as a naked error for in-call/pre-call tools except schema
// validation (ToolMalformed) and per-tool timeout (ToolTimeout), both of
// which the caller surfaces to the LLM as a typed tool result.
func (e *Executor) Execute(ctx context.Context, originTurn int64, name string, args map[string]any) Invocation {
	inv := Invocation{
		ID:         uuid.NewString(),
		Name:       name,
		Parameters: args,
		OriginTurn: originTurn,
	}

	def, ok := e.registry.Get(name)
	if !ok {
		inv.Result = Result{Status: StatusError, Message: fmt.Sprintf("unknown tool %q", name)}
		inv.Err = fmt.Errorf("tool: unknown tool %q", name)
		return inv
	}
	inv.Phase = def.Phase

	if err := Validate(def, args); err != nil {
		inv.Result = Result{Status: StatusError, Message: err.Error()}
		inv.Err = err
		return inv
	}

	timeout := def.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Str("tool", name).Interface("panic", r).Msg("tool panicked; containing to this invocation")
				done <- outcome{Result{Status: StatusError, Message: fmt.Sprintf("tool %q panicked", name)}, fmt.Errorf("tool %s: panicked: %v", name, r)}
			}
		}()
		res, err := def.Execute(callCtx, args)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		if o.err != nil && callCtx.Err() == context.DeadlineExceeded {
			inv.Result = Result{Status: StatusError, Message: "execution timed out"}
			inv.Err = &ErrTimeout{Tool: name}
		} else if o.err != nil {
			inv.Result = Result{Status: StatusError, Message: o.err.Error()}
			inv.Err = o.err
		} else {
			inv.Result = o.res
		}
	case <-callCtx.Done():
		inv.Result = Result{Status: StatusError, Message: "execution timed out"}
		inv.Err = &ErrTimeout{Tool: name}
	}
	return inv
}

// ExecutePostCall runs every registered post-call tool for callID exactly
// once, fire-and-forget: errors are logged, never returned, and never
// retried once attempted.
func (e *Executor) ExecutePostCall(ctx context.Context, callID string, args map[string]any) {
	e.postCall.mu.Lock()
	if e.postCall.done[callID] {
		e.postCall.mu.Unlock()
		return
	}
	e.postCall.done[callID] = true
	e.postCall.mu.Unlock()

	for _, def := range e.registry.ByPhase(PhasePostCall) {
		func(def Definition) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Str("call_id", callID).Str("tool", def.Name).
						Interface("panic", r).Msg("post-call tool panicked; post-call tools must never throw")
				}
			}()
			inv := e.Execute(ctx, 0, def.Name, args)
			if inv.Err != nil {
				log.Warn().Str("call_id", callID).Str("tool", def.Name).Err(inv.Err).Msg("post-call tool failed")
			}
		}(def)
	}
}
