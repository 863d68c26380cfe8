package aio

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestAwaitValue(t *testing.T) {
	l := New()
	child := New(l, func(p *Proc) (int, error) {
		return 42, nil
	})
	main := New(l, func(p *Proc) (int, error) {
		v, err := Await(p, child)
		if err != nil {
			return 0, err
		}
		return v + 1, nil
	})
	v, err := Run(main)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if v != 43 {
		t.Fatalf("result = %d, want 43", v)
	}
}

func TestAwaitPropagatesFailure(t *testing.T) {
	l := New()
	boom := errors.New("child failed")
	child := New(l, func(p *Proc) (int, error) {
		return 0, boom
	})
	main := New(l, func(p *Proc) (int, error) {
		return Await(p, child)
	})
	if _, err := Run(main); !errors.Is(err, boom) {
		t.Fatalf("Run error = %v, want %v", err, boom)
	}
}

func TestAwaitCompletedTaskDoesNotSuspend(t *testing.T) {
	l := New()
	child := New(l, func(p *Proc) (string, error) {
		return "done", nil
	})
	main := New(l, func(p *Proc) (string, error) {
		if _, err := Await(p, child); err != nil {
			return "", err
		}
		// Second await of a consumed result must fail without suspending.
		if _, err := Await(p, child); !errors.Is(err, ErrResultNotSet) {
			t.Errorf("second await error = %v, want ErrResultNotSet", err)
		}
		return "ok", nil
	})
	if _, err := Run(main); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

func TestAwaitChain(t *testing.T) {
	l := New()
	leaf := New(l, func(p *Proc) (int, error) {
		Sleep(p, time.Millisecond)
		return 7, nil
	})
	mid := New(l, func(p *Proc) (int, error) {
		v, err := Await(p, leaf)
		return v * 2, err
	})
	root := New(l, func(p *Proc) (int, error) {
		v, err := Await(p, mid)
		return v + 1, err
	})
	v, err := Run(root)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if v != 15 {
		t.Fatalf("result = %d, want 15", v)
	}
}

func TestAwaitNilTask(t *testing.T) {
	l := New()
	main := New(l, func(p *Proc) (int, error) {
		return Await[int](p, nil)
	})
	if _, err := Run(main); !errors.Is(err, ErrNilTask) {
		t.Fatalf("Run error = %v, want ErrNilTask", err)
	}
}

func TestResultReadBeforeCompletion(t *testing.T) {
	l := New()
	task := New(l, func(p *Proc) (int, error) {
		return 1, nil
	})
	f := NewFuture(task)
	if _, err := f.Result(); !errors.Is(err, ErrResultNotSet) {
		t.Fatalf("early Result error = %v, want ErrResultNotSet", err)
	}
	if err := l.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if v, err := f.Result(); err != nil || v != 1 {
		t.Fatalf("Result = %d, %v, want 1, nil", v, err)
	}
	if _, err := f.Result(); !errors.Is(err, ErrResultNotSet) {
		t.Fatalf("second Result error = %v, want ErrResultNotSet", err)
	}
}

func TestPanicBecomesFailure(t *testing.T) {
	l := New()
	task := New(l, func(p *Proc) (int, error) {
		panic("kaboom")
	})
	_, err := Run(task)
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("Run error = %v, want panic failure", err)
	}
}

func TestOnewayRunsWithoutAwaiter(t *testing.T) {
	l := New()
	ran := false
	Go(l, func(p *Proc) error {
		Sleep(p, time.Millisecond)
		ran = true
		return nil
	})
	if err := l.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !ran {
		t.Fatal("fire-and-forget task did not run")
	}
}
