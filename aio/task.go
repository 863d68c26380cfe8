package aio

import (
	"errors"
	"fmt"
)

// ErrNilTask indicates an await on a nil task.
var ErrNilTask = errors.New("aio: nil task")

// Proc is the frame binding handed to a task body. It identifies the owning
// handle and loop and provides the suspension primitive used by awaiters.
// A Proc is only valid on the goroutine running its task body.
type Proc struct {
	l      *Loop
	h      Handle
	yield  chan struct{}
	resume chan struct{}
}

// Loop returns the loop the task is scheduled on.
func (p *Proc) Loop() *Loop { return p.l }

// Handle returns the task's schedulable handle, used as the wake target of
// operation contexts.
func (p *Proc) Handle() Handle { return p.h }

// Suspend parks the calling task until its handle is rescheduled by the loop.
// The caller must have arranged a wake-up (a submitted fabric operation, an
// immediate-data registration, or a timer) before suspending.
func (p *Proc) Suspend() {
	p.h.setState(Suspended)
	p.park()
}

// park returns control to the loop thread and blocks until the loop resumes
// this frame. State transitions are the caller's responsibility.
func (p *Proc) park() {
	p.yield <- struct{}{}
	<-p.resume
}

// Task is a resumable computation producing a Result when complete. Awaitable
// tasks (New) stay unscheduled until awaited or wrapped in a Future;
// fire-and-forget tasks (Go) are scheduled at creation and drop their result.
type Task[T any] struct {
	id      uint64
	state   State
	l       *Loop
	fn      func(*Proc) (T, error)
	p       *Proc
	res     Result[T]
	next    Handle
	started bool
	done    bool
	oneway  bool
	yield   chan struct{}
	resume  chan struct{}
}

// New creates an awaitable task on the loop. The body runs when the task is
// first dispatched; its return value or error lands in the task's result cell.
func New[T any](l *Loop, fn func(*Proc) (T, error)) *Task[T] {
	t := &Task[T]{
		id:     nextHandleID(),
		l:      l,
		fn:     fn,
		yield:  make(chan struct{}),
		resume: make(chan struct{}),
	}
	t.p = &Proc{l: l, h: t, yield: t.yield, resume: t.resume}
	return t
}

// Go spawns a fire-and-forget task: scheduled immediately, no continuation,
// result dropped. A failure is recorded on the loop and surfaced when Run
// exits. Use it to enter the runtime from non-task code.
func Go(l *Loop, fn func(*Proc) error) *Task[struct{}] {
	t := New(l, func(p *Proc) (struct{}, error) {
		return struct{}{}, fn(p)
	})
	t.oneway = true
	l.Call(t)
	return t
}

// ID implements Handle.
func (t *Task[T]) ID() uint64 { return t.id }

// State implements Handle.
func (t *Task[T]) State() State { return t.state }

func (t *Task[T]) setState(s State) { t.state = s }

// Done reports whether the task has completed and its result cell is set.
func (t *Task[T]) Done() bool { return t.done }

// run dispatches the task: first dispatch starts the frame goroutine, later
// ones resume it. It returns once the frame parks again or completes, so the
// loop thread and the frame never run concurrently.
func (t *Task[T]) run() {
	if t.done {
		// Benign late wake-up, e.g. a timer that fired after completion.
		return
	}
	if !t.started {
		t.started = true
		go t.main()
	} else {
		t.resume <- struct{}{}
	}
	<-t.yield
}

func (t *Task[T]) main() {
	v, err := t.invoke()
	if err != nil {
		t.res.fail(err)
	} else {
		t.res.set(v)
	}
	t.done = true
	if t.next != nil {
		t.l.Call(t.next)
	} else if t.oneway && err != nil {
		t.l.noteStray(err)
	}
	t.yield <- struct{}{}
}

func (t *Task[T]) invoke() (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("aio: task %d panicked: %v", t.id, r)
		}
	}()
	return t.fn(t.p)
}

// Await suspends the calling task until t completes and consumes its result.
// If t is already complete the caller does not suspend. A stored failure
// propagates to the caller as the returned error.
func Await[T any](p *Proc, t *Task[T]) (T, error) {
	if t == nil {
		var zero T
		return zero, ErrNilTask
	}
	if !t.done {
		t.next = p.h
		p.h.setState(Suspended)
		if !t.started {
			t.l.Call(t)
		}
		p.park()
	}
	return t.res.take()
}
