package exec

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/flowcore/chatflow/internal/domain"
	domainerrors "github.com/flowcore/chatflow/internal/domain/errors"
)

// executeDelay sleeps for a duration computed by one of the four modes in
// spec.md §4.6 "delay". The exponential mode's attempt counter is tracked
// the same way loop iterations are — a node-keyed entry in
// ExecutionContext.LoopState — since a delay node re-entered from a retry
// region needs the same "remember how many times I've been here" bookkeeping
// a loop node does. The backoff shape itself (duration * 2^attempt, capped,
// plus jitter) is grounded on the teacher's
// internal/application/executor/retry.go RetryExecutor.calculateDelay.
func executeDelay(ctx context.Context, node domain.NodeSpec, ec *domain.ExecutionContext, deps Deps) (Result, error) {
	entered := deps.now()
	clone := ec.Clone()

	mode := configString(node.Config, "delay_type", configString(node.Config, "mode", "fixed"))
	duration, err := computeDelay(mode, node, clone, deps)
	if err != nil {
		return Result{}, domainerrors.NewRuntimeError(node.ID, string(node.Kind), 1, err)
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return Result{}, domainerrors.NewCancelled(ec.ExecutionID, ctx.Err())
	case <-timer.C:
	}

	exited := deps.now()
	clone.RecordHistory(node.ID, entered, exited, "ok")
	deps.publish(ctx, domain.EventNodeExecuted, clone, exited, map[string]any{
		"node_id": node.ID, "kind": string(node.Kind), "outcome": "ok", "delay_ms": duration.Milliseconds(),
	})
	return Result{Context: clone}, nil
}

func computeDelay(mode string, node domain.NodeSpec, ec *domain.ExecutionContext, deps Deps) (time.Duration, error) {
	base := time.Duration(configInt(node.Config, "duration", 1000)) * time.Millisecond
	maxDuration := time.Duration(configInt(node.Config, "max_duration", int(base.Milliseconds())*4)) * time.Millisecond

	switch mode {
	case "fixed":
		return base, nil

	case "random":
		if maxDuration <= base {
			return base, nil
		}
		span := maxDuration - base
		return base + time.Duration(rand.Int63n(int64(span))), nil

	case "exponential":
		state, exists := ec.LoopState[node.ID]
		if !exists {
			state = &domain.LoopState{Iteration: 0, StartedAt: time.Time{}}
			ec.LoopState[node.ID] = state
		} else {
			state.Iteration++
		}
		delay := time.Duration(float64(base) * math.Pow(2, float64(state.Iteration)))
		if delay > maxDuration {
			delay = maxDuration
		}
		return withJitter(delay), nil

	case "dynamic":
		src := configString(node.Config, "duration_expression", "")
		if src == "" {
			return 0, fmt.Errorf("delay: dynamic mode requires duration_expression")
		}
		env := ec.Variables.All()
		result, err := deps.expr().Eval(src, env)
		if err != nil {
			return 0, err
		}
		ms, ok := toNumber(result)
		if !ok {
			return 0, fmt.Errorf("delay: duration_expression did not evaluate to a number")
		}
		return time.Duration(ms) * time.Millisecond, nil

	default:
		return 0, fmt.Errorf("delay: unknown mode %q", mode)
	}
}

// withJitter adds up to +/-10% jitter to delay, matching the teacher's
// RetryExecutor.calculateDelay formula.
func withJitter(delay time.Duration) time.Duration {
	jitterAmount := float64(delay) * 0.1
	jitter := (2*float64(time.Now().UnixNano()%1000)/1000 - 1) * jitterAmount
	result := time.Duration(float64(delay) + jitter)
	if result < 0 {
		return 0
	}
	return result
}
