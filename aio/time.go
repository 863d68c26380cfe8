package aio

import "time"

// Sleep suspends the calling task until at least d has elapsed on the loop's
// millisecond clock.
func Sleep(p *Proc, d time.Duration) {
	p.l.CallLater(d, p.h)
	p.park()
}
