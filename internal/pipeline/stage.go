package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
)

// ErrStagePanic is returned when a collaborator panics inside a stage.
var ErrStagePanic = errors.New("stage panicked")

// StageError records which stage failed and after how many attempts.
type StageError struct {
	Stage    string
	Attempts int
	Err      error
}

func (e *StageError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%s failed after %d attempts: %v", e.Stage, e.Attempts, e.Err)
	}

	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// runBlocking runs a stage that occupies a worker for its whole duration
// (local process, CPU-bound filter). It waits for a slot in the shared pool
// and is never retried.
func runBlocking[T any](ctx context.Context, o *Orchestrator, stage string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	select {
	case o.blockingSlots <- struct{}{}:
	case <-ctx.Done():
		return zero, &StageError{Stage: stage, Attempts: 0, Err: ctx.Err()}
	}
	defer func() { <-o.blockingSlots }()

	value, err := guarded(ctx, o, stage, fn)
	if err != nil {
		return zero, &StageError{Stage: stage, Attempts: 1, Err: err}
	}

	return value, nil
}

// runSuspending runs a stage that waits on a remote backend. Each attempt gets
// its own timeout; failed attempts are retried up to maxRetries times unless
// the caller's context is done.
func runSuspending[T any](ctx context.Context, o *Orchestrator, stage string, fn func(context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)

	attempts := 0

	for attempts <= o.maxRetries {
		attempts++

		value, err := attempt(ctx, o, stage, fn)
		if err == nil {
			return value, nil
		}

		lastErr = err

		if ctx.Err() != nil {
			break
		}

		if attempts <= o.maxRetries {
			o.log.Warn("Stage %s attempt %d failed, retrying: %v", stage, attempts, err)
		}
	}

	return zero, &StageError{Stage: stage, Attempts: attempts, Err: lastErr}
}

func (o *Orchestrator) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.stageTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, o.stageTimeout)
}

func attempt[T any](ctx context.Context, o *Orchestrator, stage string, fn func(context.Context) (T, error)) (T, error) {
	attemptCtx, cancel := o.attemptContext(ctx)
	defer cancel()

	return guarded(attemptCtx, o, stage, fn)
}

// guarded converts a panic inside fn into an error. The stack goes to the log only.
func guarded[T any](
	ctx context.Context,
	o *Orchestrator,
	stage string,
	fn func(context.Context) (T, error),
) (value T, err error) {
	defer func() {
		recovered := recover()
		if recovered != nil {
			o.log.Error("Stage %s panicked: %v\n%s", stage, recovered, debug.Stack())
			err = fmt.Errorf("%w: %v", ErrStagePanic, recovered)
		}
	}()

	return fn(ctx)
}
