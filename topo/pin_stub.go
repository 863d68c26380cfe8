//go:build !linux

package topo

import "runtime"

// Pin locks the calling goroutine to its OS thread. Core affinity is only
// enforced on Linux; elsewhere this is best effort.
func Pin(core int) error {
	if core < 0 {
		return nil
	}
	runtime.LockOSThread()
	return nil
}
