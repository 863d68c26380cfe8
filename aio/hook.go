package aio

// Hook observes loop activity for metrics backends. Implementations must be
// cheap; the loop invokes them from its hot path.
type Hook interface {
	// LoopStarted fires when Run begins.
	LoopStarted()
	// LoopStopped fires when Run returns.
	LoopStopped()
	// CompletionsPolled reports completions dispatched by one selector poll.
	CompletionsPolled(n int)
	// HandlesDispatched reports handles run during one tick's drain.
	HandlesDispatched(n int)
	// CQError fires when the selector surfaces a fatal error.
	CQError(err error)
}

type nopHook struct{}

func (nopHook) LoopStarted()          {}
func (nopHook) LoopStopped()          {}
func (nopHook) CompletionsPolled(int) {}
func (nopHook) HandlesDispatched(int) {}
func (nopHook) CQError(error)         {}
