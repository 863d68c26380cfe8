//go:build linux

package topo

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Pin locks the calling goroutine to its OS thread and restricts that thread
// to the given CPU core. The loop thread calls this once before Run so the
// scheduler and the NIC interrupt handlers share a NUMA domain.
func Pin(core int) error {
	if core < 0 {
		return fmt.Errorf("topo: negative core %d", core)
	}
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("topo: pinning to core %d: %w", core, err)
	}
	return nil
}
