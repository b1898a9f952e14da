package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/helixmesh/orchestrator/internal/agents"
	"github.com/helixmesh/orchestrator/internal/circuitbreaker"
	"github.com/helixmesh/orchestrator/internal/metrics"
	"github.com/helixmesh/orchestrator/internal/tracing"
)

// Executor runs single task invocation attempts against the external agent
// runtime, applying the per-task deadline and a per-agent-type circuit
// breaker. Retry policy lives in the Scheduler, which owns state transitions.
type Executor struct {
	invoker  agents.Invoker
	breakers *circuitbreaker.Group
	logger   *zap.Logger
}

// NewExecutor creates an executor. breakers may be nil to disable the
// circuit breaker (used in tests).
func NewExecutor(invoker agents.Invoker, breakers *circuitbreaker.Group, logger *zap.Logger) *Executor {
	return &Executor{invoker: invoker, breakers: breakers, logger: logger}
}

// Attempt performs one invocation of the task under its deadline. An
// invocation that does not return in time is abandoned and its eventual
// result discarded; the attempt fails with ErrTimeoutExceeded. ctx is the
// workflow context: its cancellation aborts the attempt with ctx.Err().
func (e *Executor) Attempt(ctx context.Context, t *Task) (map[string]any, error) {
	metrics.TaskAttempts.WithLabelValues(t.AgentType).Inc()

	ctx, span := tracing.StartTaskSpan(ctx, t.AgentType, t.Action)
	defer span.End()

	run := func() (map[string]any, error) {
		actx, cancel := context.WithTimeout(ctx, t.Timeout)
		defer cancel()

		type result struct {
			out map[string]any
			err error
		}
		ch := make(chan result, 1)
		go func() {
			out, err := e.invoker.Invoke(actx, t.AgentType, t.Action, t.Parameters.Plain())
			ch <- result{out, err}
		}()

		select {
		case res := <-ch:
			if res.err != nil {
				if actx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
					return nil, ErrTimeoutExceeded
				}
				return nil, res.err
			}
			return res.out, nil
		case <-actx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Deadline hit while the invocation is still in flight; the
			// goroutine above is abandoned and its result ignored.
			e.logger.Warn("Task invocation abandoned after deadline",
				zap.String("task_id", t.ID),
				zap.String("agent_type", t.AgentType),
				zap.Duration("timeout", t.Timeout),
			)
			return nil, ErrTimeoutExceeded
		}
	}

	var out map[string]any
	var err error
	if e.breakers != nil {
		cb := e.breakers.Get(t.AgentType)
		err = cb.Execute(ctx, func() error {
			out, err = run()
			return err
		})
	} else {
		out, err = run()
	}

	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, context.Canceled):
		return nil, err
	case errors.Is(err, ErrTimeoutExceeded):
		metrics.TaskTimeouts.Inc()
		span.RecordError(err)
		return nil, fmt.Errorf("task %s: %w", t.ID, ErrTimeoutExceeded)
	default:
		span.RecordError(err)
		return nil, &InvocationError{AgentType: t.AgentType, Action: t.Action, Err: err}
	}
}

// Backoff returns the exponential retry delay for the given retry number
// (1-based), capped at max.
func Backoff(base, max time.Duration, retry int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 1; i < retry; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if max > 0 && d > max {
		return max
	}
	return d
}
