// Package pipeline contains the generation pipeline core: the fixed
// stage order, per-stage retry policy, and the runner that drives
// injected stage functions. The runner itself performs no I/O beyond
// the callbacks it is given, which keeps the ordering, timeout and
// retry rules unit-testable without a live generation backend.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/courier/internal/core/event"
	"github.com/example/courier/internal/core/fault"
)

// Stage names the steps of the generation pipeline. Order is fixed:
// draft -> refine -> safety. Coherence resolution happens after the
// pipeline, owned by the resolver.
type Stage string

const (
	StageDraft  Stage = "draft"
	StageRefine Stage = "refine"
	StageSafety Stage = "safety"
)

// Order is the authoritative stage sequence.
var Order = []Stage{StageDraft, StageRefine, StageSafety}

// Exchange is the accumulated context handed to every stage: the
// original event plus all prior stage outputs. PersonaVersion pins the
// prompt/persona configuration for the whole run so no stage reads
// ambient global state.
type Exchange struct {
	Event          event.Inbound
	PersonaVersion string
	Outputs        map[Stage]string
}

// Latest returns the most recent stage output, or the event payload if
// no stage has run yet.
func (x Exchange) Latest() string {
	for i := len(Order) - 1; i >= 0; i-- {
		if out, ok := x.Outputs[Order[i]]; ok {
			return out
		}
	}
	return x.Event.Payload
}

// Func executes one stage against the accumulated exchange.
type Func func(ctx context.Context, x Exchange) (string, error)

// Rejection is returned by the safety stage when content is refused.
// It is authoritative and never retried; the pipeline stops and no
// candidate reaches the review gate.
type Rejection struct {
	Reason string
}

func (e *Rejection) Error() string {
	return fmt.Sprintf("safety rejection: %s", e.Reason)
}

// RetryPolicy bounds one stage's execution.
type RetryPolicy struct {
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
}

// DefaultPolicy is used for stages with no explicit configuration.
var DefaultPolicy = RetryPolicy{
	Timeout:    30 * time.Second,
	MaxRetries: 2,
	Backoff:    500 * time.Millisecond,
}

// Delay returns the exponential backoff before the given retry
// (retry 1 waits Backoff, retry 2 waits 2*Backoff, and so on).
func (p RetryPolicy) Delay(retry int) time.Duration {
	d := p.Backoff
	for i := 1; i < retry; i++ {
		d *= 2
	}
	return d
}

// Runner drives the fixed stage sequence. Completed outputs passed to
// Run are reused verbatim, which is what makes replays idempotent on
// (event identity, stage): a crash between stages resumes from the last
// committed result instead of re-invoking the generation backend.
type Runner struct {
	stages   map[Stage]Func
	policies map[Stage]RetryPolicy
	sleep    func(context.Context, time.Duration) error
}

// NewRunner creates a runner over the given stage functions. Every
// stage in Order must be present.
func NewRunner(stages map[Stage]Func, policies map[Stage]RetryPolicy) (*Runner, error) {
	for _, s := range Order {
		if stages[s] == nil {
			return nil, fmt.Errorf("pipeline missing stage %s", s)
		}
	}
	return &Runner{stages: stages, policies: policies, sleep: sleepCtx}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *Runner) policy(s Stage) RetryPolicy {
	if p, ok := r.policies[s]; ok {
		return p
	}
	return DefaultPolicy
}

// Run executes every stage in order, reusing entries of completed and
// committing each fresh result before moving on. It returns the final
// candidate text. Exhausted retries, safety rejections, commit errors
// and cancellation all surface as *fault.StageFailure naming the stage.
func (r *Runner) Run(ctx context.Context, x Exchange, completed map[Stage]string, commit func(Stage, string) error) (string, error) {
	if x.Outputs == nil {
		x.Outputs = make(map[Stage]string, len(Order))
	}
	for _, stage := range Order {
		if out, ok := completed[stage]; ok {
			x.Outputs[stage] = out
			continue
		}
		out, err := r.runStage(ctx, stage, x)
		if err != nil {
			return "", err
		}
		if err := commit(stage, out); err != nil {
			return "", &fault.StageFailure{Stage: string(stage), Cause: fmt.Errorf("commit result: %w", err)}
		}
		x.Outputs[stage] = out
	}
	return x.Outputs[Order[len(Order)-1]], nil
}

func (r *Runner) runStage(ctx context.Context, stage Stage, x Exchange) (string, error) {
	pol := r.policy(stage)
	var last error
	for attempt := 0; attempt <= pol.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := r.sleep(ctx, pol.Delay(attempt)); err != nil {
				return "", &fault.StageFailure{Stage: string(stage), Cause: err}
			}
		}
		attemptCtx, cancel := context.WithTimeout(ctx, pol.Timeout)
		out, err := r.stages[stage](attemptCtx, x)
		cancel()
		if err == nil {
			return out, nil
		}
		last = err

		var rej *Rejection
		if errors.As(err, &rej) {
			// Authoritative refusal, retrying cannot help.
			return "", &fault.StageFailure{Stage: string(stage), Cause: err}
		}
		if ctx.Err() != nil {
			return "", &fault.StageFailure{Stage: string(stage), Cause: ctx.Err()}
		}
	}
	return "", &fault.StageFailure{Stage: string(stage), Cause: last}
}
