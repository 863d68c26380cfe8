package aio

import (
	"errors"
	"testing"
)

// fakeSource is an in-memory CompletionSource. Entries pushed onto pending
// are drained by ReadCompletions; a queued error entry forces the ErrAvail
// path and fatal forces the unrecoverable one.
type fakeSource struct {
	pending  []Completion
	errEntry *CompletionErr
	fatal    error
}

func (s *fakeSource) push(entries ...Completion) {
	s.pending = append(s.pending, entries...)
}

func (s *fakeSource) ReadCompletions(out []Completion) (int, error) {
	if s.fatal != nil {
		return 0, s.fatal
	}
	if s.errEntry != nil {
		return 0, ErrAvail
	}
	if len(s.pending) == 0 {
		return 0, ErrAgain
	}
	n := copy(out, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *fakeSource) ReadError() (*CompletionErr, error) {
	if s.errEntry == nil {
		return nil, errors.New("no error entry")
	}
	entry := s.errEntry
	s.errEntry = nil
	return entry, nil
}

func TestSelectorRoutesByContextToken(t *testing.T) {
	sel := NewSelector()
	src := &fakeSource{}
	sel.Register(src)

	h := newFuncHandle(func() {})
	op := NewOp(h)
	sel.AddOp(42, op)
	src.push(Completion{Flags: OpSend, Len: 5, Context: 42})

	events, err := sel.Poll()
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(events) != 1 || events[0].Handle != h {
		t.Fatalf("events = %v, want one for handle %d", events, h.ID())
	}
	if op.Entry.Len != 5 || op.Entry.Flags != OpSend {
		t.Fatalf("op entry = %+v, want len 5 send flags", op.Entry)
	}

	// Context routing resolves once; a duplicate entry must be dropped.
	src.push(Completion{Flags: OpSend, Len: 5, Context: 42})
	events, err = sel.Poll()
	if err != nil {
		t.Fatalf("second Poll failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("duplicate completion dispatched: %v", events)
	}
}

func TestSelectorUnknownContextDropped(t *testing.T) {
	sel := NewSelector()
	src := &fakeSource{}
	sel.Register(src)
	src.push(Completion{Flags: OpRecv, Context: 99})

	events, err := sel.Poll()
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("unknown context dispatched: %v", events)
	}
}

func TestSelectorImmediateDataRouting(t *testing.T) {
	sel := NewSelector()
	src := &fakeSource{}
	sel.Register(src)

	h := newFuncHandle(func() {})
	op := NewOp(h)
	if err := sel.AddImm(0x123, op); err != nil {
		t.Fatalf("AddImm failed: %v", err)
	}

	src.push(
		Completion{Flags: OpRemoteWrite, Data: 0},     // reserved tag: dropped
		Completion{Flags: OpRemoteWrite, Data: 0x999}, // unregistered: dropped
		Completion{Flags: OpRemoteWrite, Data: 0x123, Len: 4096},
	)
	events, err := sel.Poll()
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(events) != 1 || events[0].Handle != h {
		t.Fatalf("events = %v, want single imm-routed event", events)
	}
	if op.Entry.Data != 0x123 || op.Entry.Len != 4096 {
		t.Fatalf("op entry = %+v, want data 0x123 len 4096", op.Entry)
	}

	sel.DropImm(0x123)
	src.push(Completion{Flags: OpRemoteWrite, Data: 0x123})
	events, err = sel.Poll()
	if err != nil {
		t.Fatalf("Poll after DropImm failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("unregistered tag dispatched: %v", events)
	}
}

func TestSelectorImmTagValidation(t *testing.T) {
	sel := NewSelector()
	op := NewOp(newFuncHandle(func() {}))
	if err := sel.AddImm(0, op); !errors.Is(err, ErrZeroTag) {
		t.Fatalf("AddImm(0) error = %v, want ErrZeroTag", err)
	}
	if err := sel.AddImm(7, op); err != nil {
		t.Fatalf("AddImm failed: %v", err)
	}
	if err := sel.AddImm(7, op); !errors.Is(err, ErrTagInUse) {
		t.Fatalf("duplicate AddImm error = %v, want ErrTagInUse", err)
	}
}

func TestSelectorErrorEntryRoutedToOp(t *testing.T) {
	sel := NewSelector()
	src := &fakeSource{}
	sel.Register(src)

	h := newFuncHandle(func() {})
	op := NewOp(h)
	sel.AddOp(7, op)
	src.errEntry = &CompletionErr{Context: 7, Errno: 5, Message: "remote unreachable"}

	events, err := sel.Poll()
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(events) != 1 || events[0].Handle != h {
		t.Fatalf("events = %v, want error event for handle", events)
	}
	if op.Err == nil {
		t.Fatal("op.Err not set from error entry")
	}
	var ce *CompletionErr
	if !errors.As(op.Err, &ce) || ce.Errno != 5 {
		t.Fatalf("op.Err = %v, want CompletionErr errno 5", op.Err)
	}
}

func TestSelectorUnmatchedErrorEntryFatal(t *testing.T) {
	sel := NewSelector()
	src := &fakeSource{}
	sel.Register(src)
	src.errEntry = &CompletionErr{Context: 1234, Errno: 22}

	if _, err := sel.Poll(); err == nil {
		t.Fatal("Poll succeeded, want fatal error for unmatched error entry")
	}
}

func TestSelectorFatalReadAbortsRun(t *testing.T) {
	l := New()
	src := &fakeSource{fatal: errors.New("device gone")}
	l.Register(src)

	task := New(l, func(p *Proc) (struct{}, error) {
		return struct{}{}, nil
	})
	if _, err := Run(task); err == nil || !errors.Is(err, src.fatal) {
		t.Fatalf("Run error = %v, want fatal %v", err, src.fatal)
	}
}

func TestLoopResumesParkedTaskOnCompletion(t *testing.T) {
	l := New()
	src := &fakeSource{}
	l.Register(src)

	task := New(l, func(p *Proc) (uint64, error) {
		defer l.Unregister(src)
		op := NewOp(p.Handle())
		l.AddOp(11, op)
		// The completion is queued before parking; the selector picks it up
		// on the next tick, after the frame has suspended.
		src.push(Completion{Flags: OpRecv, Len: 123, Context: 11})
		p.Suspend()
		if op.Err != nil {
			return 0, op.Err
		}
		return op.Entry.Len, nil
	})
	n, err := Run(task)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if n != 123 {
		t.Fatalf("completion length = %d, want 123", n)
	}
	if !l.Stopped() {
		t.Fatal("loop not quiescent after Run")
	}
}
