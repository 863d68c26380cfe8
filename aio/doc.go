// Package aio implements a single-threaded cooperative runtime for fabric
// I/O. A Loop multiplexes timed handles, ready handles, and completion-queue
// polling; tasks suspend on fabric operations, on timers, or on each other,
// and resume when the Selector observes the matching completion entry.
//
// Tasks are backed by goroutines but execute with strict handoff: the loop
// thread blocks while a task runs and the task goroutine blocks while parked,
// so at most one of them is ever runnable. All loop and selector state is
// therefore mutated from exactly one runnable goroutine at a time, and no
// locking is required. Callers must drive a Loop from a single goroutine.
package aio
