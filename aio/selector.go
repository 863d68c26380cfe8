package aio

import (
	"errors"
	"fmt"
)

// Completion flag bits, mirrored from <rdma/fabric.h>. The fi package asserts
// these against the provider's values at test time.
const (
	OpRead        uint64 = 1 << 8
	OpWrite       uint64 = 1 << 9
	OpRecv        uint64 = 1 << 10
	OpSend        uint64 = 1 << 11
	OpRemoteRead  uint64 = 1 << 12
	OpRemoteWrite uint64 = 1 << 13
)

// MaxCQEntries bounds how many completion entries one source is asked for per
// poll.
const MaxCQEntries = 16

var (
	// ErrAgain is returned by a CompletionSource with no entries available.
	ErrAgain = errors.New("aio: no completions available")
	// ErrAvail is returned by a CompletionSource when an error entry is
	// pending and must be drained via ReadError.
	ErrAvail = errors.New("aio: completion error entry pending")
	// ErrTagInUse indicates an immediate-data tag is already registered.
	ErrTagInUse = errors.New("aio: immediate-data tag already registered")
	// ErrZeroTag indicates an attempt to register the reserved tag zero.
	ErrZeroTag = errors.New("aio: immediate-data tag zero is reserved")
)

// Completion is one completion-queue entry in the data format.
type Completion struct {
	Flags   uint64
	Len     uint64
	Data    uint64
	Context uintptr
}

// CompletionErr carries a drained completion error entry.
type CompletionErr struct {
	Context     uintptr
	Flags       uint64
	Len         uint64
	Data        uint64
	Errno       int
	ProviderErr int
	Message     string
}

func (e *CompletionErr) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("aio: operation failed: %s (errno %d)", e.Message, e.Errno)
	}
	return fmt.Sprintf("aio: operation failed (errno %d, provider %d)", e.Errno, e.ProviderErr)
}

// CompletionSource is the slice of a completion queue the Selector polls.
// ReadCompletions fills out with up to len(out) entries and returns how many
// were written; it returns ErrAgain when the queue is empty and ErrAvail when
// an error entry must be drained with ReadError first. Any other error is
// fatal to the loop.
type CompletionSource interface {
	ReadCompletions(out []Completion) (int, error)
	ReadError() (*CompletionErr, error)
}

// Op couples a submitted fabric operation with the handle waiting on it. The
// Selector copies the completion entry (or the drained error) into the Op
// exactly once before waking the handle. Ops live inside the awaiting task's
// frame, so they stay address-stable while the task is parked.
type Op struct {
	Entry Completion
	Err   error

	h Handle
}

// NewOp builds an operation context waking h on completion.
func NewOp(h Handle) *Op { return &Op{h: h} }

// Handle returns the parked handle the Selector wakes for this operation.
func (o *Op) Handle() Handle { return o.h }

// Event is a dispatched completion: the entry flags plus the handle to wake.
type Event struct {
	Flags  uint64
	Handle Handle
}

// Selector polls registered completion sources and demultiplexes entries to
// their operation contexts, either by context token (locally initiated
// operations) or by 32-bit immediate-data tag (remote-initiated writes).
type Selector struct {
	srcs map[CompletionSource]struct{}
	ops  map[uintptr]*Op
	imm  map[uint32]*Op
}

// NewSelector returns an empty selector.
func NewSelector() *Selector {
	return &Selector{
		srcs: make(map[CompletionSource]struct{}),
		ops:  make(map[uintptr]*Op),
		imm:  make(map[uint32]*Op),
	}
}

// Register adds a completion source to the poll set.
func (s *Selector) Register(src CompletionSource) {
	s.srcs[src] = struct{}{}
}

// Unregister removes a completion source from the poll set.
func (s *Selector) Unregister(src CompletionSource) {
	delete(s.srcs, src)
}

// AddOp registers an operation context under the provider token that will
// come back as the entry's op_context.
func (s *Selector) AddOp(token uintptr, op *Op) {
	s.ops[token] = op
}

// DropOp removes a pending operation context, e.g. after a failed submission.
// It is a no-op if the completion was already dispatched.
func (s *Selector) DropOp(token uintptr) {
	delete(s.ops, token)
}

// AddImm registers an operation context under an immediate-data tag. Tag zero
// is reserved and tags must be unique across all in-flight registrations.
func (s *Selector) AddImm(tag uint32, op *Op) error {
	if tag == 0 {
		return ErrZeroTag
	}
	if _, ok := s.imm[tag]; ok {
		return fmt.Errorf("%w: %#x", ErrTagInUse, tag)
	}
	s.imm[tag] = op
	return nil
}

// DropImm removes an immediate-data registration.
func (s *Selector) DropImm(tag uint32) {
	delete(s.imm, tag)
}

// Stopped reports whether the selector has no sources left to poll.
func (s *Selector) Stopped() bool {
	return len(s.srcs) == 0
}

// Poll reads each registered source once, non-blocking, and returns the
// dispatched events in provider order. Error entries that resolve to a known
// operation context are delivered to that operation as a failure; anything
// else is fatal and returned as an error alongside the events dispatched so
// far.
func (s *Selector) Poll() ([]Event, error) {
	var events []Event
	var buf [MaxCQEntries]Completion
	for src := range s.srcs {
		n, err := src.ReadCompletions(buf[:])
		switch {
		case err == nil:
			events = s.dispatch(buf[:n], events)
		case errors.Is(err, ErrAgain):
			continue
		case errors.Is(err, ErrAvail):
			entry, rerr := src.ReadError()
			if rerr != nil {
				return events, fmt.Errorf("aio: reading completion error entry: %w", rerr)
			}
			op, ok := s.ops[entry.Context]
			if !ok {
				return events, fmt.Errorf("aio: unmatched completion error: %w", entry)
			}
			delete(s.ops, entry.Context)
			op.Err = entry
			events = append(events, Event{Flags: entry.Flags, Handle: op.h})
		default:
			return events, fmt.Errorf("aio: completion queue read: %w", err)
		}
	}
	return events, nil
}

// dispatch routes raw entries to their operation contexts. Remote-write
// entries route by immediate data; unmatched or zero tags are dropped, as are
// context tokens with no pending operation. Context-token routing is
// resolve-once so each submission observes at most one completion.
func (s *Selector) dispatch(entries []Completion, events []Event) []Event {
	for i := range entries {
		entry := &entries[i]
		if entry.Flags&OpRemoteWrite != 0 {
			tag := uint32(entry.Data)
			if tag == 0 {
				continue
			}
			op, ok := s.imm[tag]
			if !ok {
				continue
			}
			op.Entry = *entry
			events = append(events, Event{Flags: entry.Flags, Handle: op.h})
			continue
		}
		op, ok := s.ops[entry.Context]
		if !ok {
			continue
		}
		delete(s.ops, entry.Context)
		op.Entry = *entry
		events = append(events, Event{Flags: entry.Flags, Handle: op.h})
	}
	return events
}
