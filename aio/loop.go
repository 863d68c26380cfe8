package aio

import (
	"container/heap"
	"sync"
	"time"

	"github.com/eapache/queue"
	"go.uber.org/multierr"
)

// timerEntry orders timed handles by deadline, breaking ties by insertion
// sequence so equal deadlines run in submission order.
type timerEntry struct {
	when int64 // milliseconds since loop start
	seq  uint64
	h    Handle
}

type timerHeap []timerEntry

func (t timerHeap) Len() int { return len(t) }

func (t timerHeap) Less(i, j int) bool {
	if t[i].when != t[j].when {
		return t[i].when < t[j].when
	}
	return t[i].seq < t[j].seq
}

func (t timerHeap) Swap(i, j int) { t[i], t[j] = t[j], t[i] }

func (t *timerHeap) Push(x any) { *t = append(*t, x.(timerEntry)) }

func (t *timerHeap) Pop() any {
	old := *t
	n := len(old)
	e := old[n-1]
	*t = old[:n-1]
	return e
}

// Loop is the single-threaded cooperative scheduler: a min-heap of timed
// handles, a FIFO of ready handles, and a Selector polling completion
// sources. Run drains all three until quiescent.
type Loop struct {
	start  time.Time
	seq    uint64
	timers timerHeap
	ready  *queue.Queue
	sel    *Selector
	hook   Hook
	stray  error
}

// Option adjusts loop construction.
type Option func(*Loop)

// WithHook installs a metric hook observing loop activity.
func WithHook(h Hook) Option {
	return func(l *Loop) {
		if h != nil {
			l.hook = h
		}
	}
}

// New constructs a loop. Most processes run exactly one; see Default.
func New(opts ...Option) *Loop {
	l := &Loop{
		start: time.Now(),
		ready: queue.New(),
		sel:   NewSelector(),
		hook:  nopHook{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var defaultLoop = sync.OnceValue(func() *Loop { return New() })

// Default returns the lazily initialized process-wide loop.
func Default() *Loop { return defaultLoop() }

// Now returns the monotonic time since loop construction, truncated to
// milliseconds.
func (l *Loop) Now() time.Duration {
	return time.Since(l.start).Truncate(time.Millisecond)
}

func (l *Loop) nowMS() int64 {
	return int64(time.Since(l.start) / time.Millisecond)
}

// Call schedules the handle to run on the next tick. It is idempotent while
// the handle is already scheduled.
func (l *Loop) Call(h Handle) {
	if h.State() == Scheduled {
		return
	}
	h.setState(Scheduled)
	l.ready.Add(h)
}

// CallLater schedules the handle to run once the delay has elapsed.
func (l *Loop) CallLater(d time.Duration, h Handle) {
	h.setState(Scheduled)
	// Round the deadline up to a whole millisecond so the handle never fires
	// before d has fully elapsed.
	when := int64((time.Since(l.start) + d + time.Millisecond - 1) / time.Millisecond)
	heap.Push(&l.timers, timerEntry{when: when, seq: l.seq, h: h})
	l.seq++
}

// Cancel marks the handle unscheduled. Queue entries are not removed eagerly;
// dispatch skips handles whose state reverted to Unscheduled, and a stale
// timer entry for a completed task fires as a no-op.
func (l *Loop) Cancel(h Handle) {
	h.setState(Unscheduled)
}

// Register adds a completion source to the loop's selector.
func (l *Loop) Register(src CompletionSource) { l.sel.Register(src) }

// Unregister removes a completion source from the loop's selector.
func (l *Loop) Unregister(src CompletionSource) { l.sel.Unregister(src) }

// AddOp registers an operation context under a provider token.
func (l *Loop) AddOp(token uintptr, op *Op) { l.sel.AddOp(token, op) }

// DropOp removes a pending operation context.
func (l *Loop) DropOp(token uintptr) { l.sel.DropOp(token) }

// AddImm registers an operation context under an immediate-data tag.
func (l *Loop) AddImm(tag uint32, op *Op) error { return l.sel.AddImm(tag, op) }

// DropImm removes an immediate-data registration.
func (l *Loop) DropImm(tag uint32) { l.sel.DropImm(tag) }

// Stopped reports whether the loop has nothing left to run: no timers, no
// ready handles, and no registered completion sources.
func (l *Loop) Stopped() bool {
	return l.timers.Len() == 0 && l.ready.Length() == 0 && l.sel.Stopped()
}

// Run drives the loop until quiescent. Each tick polls the selector once,
// promotes due timers, then drains the ready handles observed at the start of
// the tick; handles scheduled during a drain wait for the next tick. A fatal
// selector error aborts the loop. Stray failures from unobserved
// fire-and-forget tasks are aggregated into the returned error.
func (l *Loop) Run() error {
	l.hook.LoopStarted()
	defer l.hook.LoopStopped()
	for !l.Stopped() {
		events, err := l.sel.Poll()
		for _, ev := range events {
			if ev.Handle != nil {
				l.Call(ev.Handle)
			}
		}
		if len(events) > 0 {
			l.hook.CompletionsPolled(len(events))
		}
		if err != nil {
			l.hook.CQError(err)
			return err
		}
		l.promoteTimers()
		l.drainReady()
	}
	return l.takeStray()
}

// promoteTimers moves every due timer into the ready queue, preserving heap
// order so equal deadlines stay FIFO.
func (l *Loop) promoteTimers() {
	now := l.nowMS()
	for l.timers.Len() > 0 && l.timers[0].when <= now {
		e := heap.Pop(&l.timers).(timerEntry)
		l.ready.Add(e.h)
	}
}

// drainReady runs a snapshot of the current ready queue. Cancelled handles
// (state reverted to Unscheduled) are skipped.
func (l *Loop) drainReady() {
	n := l.ready.Length()
	ran := 0
	for i := 0; i < n; i++ {
		h := l.ready.Remove().(Handle)
		if h.State() == Unscheduled {
			continue
		}
		h.setState(Unscheduled)
		h.run()
		ran++
	}
	if ran > 0 {
		l.hook.HandlesDispatched(ran)
	}
}

func (l *Loop) noteStray(err error) {
	l.stray = multierr.Append(l.stray, err)
}

func (l *Loop) takeStray() error {
	err := l.stray
	l.stray = nil
	return err
}
