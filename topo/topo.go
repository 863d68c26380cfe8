// Package topo maps worker processes onto hardware: which GPU a local rank
// drives, which CPU core it pins to, and which fabric descriptor it opens.
// Real NUMA/PCIe discovery is an external collaborator; this package carries
// the contract plus a round-robin fallback that assumes a homogeneous host.
package topo

import (
	"fmt"
	"runtime"
)

// Placement is the triple a worker needs before opening its endpoint.
type Placement struct {
	// Device is the GPU index the rank drives.
	Device int
	// Core is the CPU core the rank pins to.
	Core int
	// FabricIndex selects among the host's fabric descriptors.
	FabricIndex int
}

// Locator resolves a local rank to its placement.
type Locator interface {
	Locate(localRank int) (Placement, error)
}

// RoundRobin spreads local ranks across devices, cores, and fabric
// descriptors by index. It stands in for topology discovery on hosts where
// GPU d, NIC d, and the d-th core group are co-located, which holds on the
// homogeneous instances this runtime targets.
type RoundRobin struct {
	Devices int
	Cores   int
	Fabrics int
}

var _ Locator = RoundRobin{}

// Locate implements Locator.
func (r RoundRobin) Locate(localRank int) (Placement, error) {
	if localRank < 0 {
		return Placement{}, fmt.Errorf("topo: negative local rank %d", localRank)
	}
	devices := r.Devices
	if devices <= 0 {
		devices = 1
	}
	cores := r.Cores
	if cores <= 0 {
		cores = runtime.NumCPU()
	}
	fabrics := r.Fabrics
	if fabrics <= 0 {
		fabrics = 1
	}
	return Placement{
		Device:      localRank % devices,
		Core:        localRank % cores,
		FabricIndex: localRank % fabrics,
	}, nil
}
