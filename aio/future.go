package aio

import (
	"errors"

	"go.uber.org/multierr"
)

// Future owns a task and guarantees it is scheduled. Holding the Future keeps
// the task frame (and any operation context inside it) alive; dropping it
// while a fabric operation is in flight is a use-after-free hazard, so callers
// must keep the Future until the awaited operation resolves.
type Future[T any] struct {
	t *Task[T]
}

// NewFuture wraps the task and schedules it if it has not started yet.
func NewFuture[T any](t *Task[T]) *Future[T] {
	if t != nil && !t.started && !t.done {
		t.l.Call(t)
	}
	return &Future[T]{t: t}
}

// Done reports whether the owned task has completed.
func (f *Future[T]) Done() bool {
	return f != nil && f.t != nil && f.t.Done()
}

// Result consumes the task's result. It fails with ErrResultNotSet before the
// task completes and after the value has been taken.
func (f *Future[T]) Result() (T, error) {
	if f == nil || f.t == nil {
		var zero T
		return zero, ErrNilTask
	}
	return f.t.res.take()
}

// Run schedules the task, drives its loop to quiescence, and returns the
// task's result. Failures from fire-and-forget tasks that nobody awaited are
// appended to the returned error; a fatal selector error aborts the loop and
// is returned as-is.
func Run[T any](t *Task[T]) (T, error) {
	if t == nil {
		var zero T
		return zero, ErrNilTask
	}
	f := NewFuture(t)
	runErr := t.l.Run()
	v, resErr := f.Result()
	if runErr != nil && errors.Is(resErr, ErrResultNotSet) {
		// The loop aborted before the task could complete.
		return v, runErr
	}
	return v, multierr.Append(resErr, runErr)
}
