package topo

import (
	"runtime"
	"testing"
)

func TestRoundRobinLocate(t *testing.T) {
	loc := RoundRobin{Devices: 4, Cores: 8, Fabrics: 2}
	for rank := 0; rank < 16; rank++ {
		p, err := loc.Locate(rank)
		if err != nil {
			t.Fatalf("Locate(%d): %v", rank, err)
		}
		if p.Device != rank%4 || p.Core != rank%8 || p.FabricIndex != rank%2 {
			t.Fatalf("Locate(%d) = %+v", rank, p)
		}
	}
}

func TestRoundRobinDefaults(t *testing.T) {
	p, err := RoundRobin{}.Locate(3)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if p.Device != 0 || p.FabricIndex != 0 {
		t.Fatalf("defaulted placement = %+v, want device 0 fabric 0", p)
	}
	if p.Core != 3%runtime.NumCPU() {
		t.Fatalf("core = %d, want %d", p.Core, 3%runtime.NumCPU())
	}
}

func TestRoundRobinRejectsNegativeRank(t *testing.T) {
	if _, err := (RoundRobin{}).Locate(-1); err == nil {
		t.Fatal("negative rank accepted")
	}
}

func TestPin(t *testing.T) {
	if err := Pin(0); err != nil {
		t.Skipf("pinning unavailable: %v", err)
	}
}
