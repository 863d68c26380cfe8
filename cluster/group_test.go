package cluster

import (
	"fmt"
	"net"
	"sync"
	"testing"
)

func TestStaticGroupAllGather(t *testing.T) {
	const n = 4
	members := NewStaticGroup(n)

	results := make([][]byte, n)
	var wg sync.WaitGroup
	for i, m := range members {
		wg.Add(1)
		go func(rank int, g *StaticGroup) {
			defer wg.Done()
			out, err := g.AllGather([]byte{byte('a' + rank)})
			if err != nil {
				t.Errorf("rank %d AllGather: %v", rank, err)
				return
			}
			results[rank] = out
		}(i, m)
	}
	wg.Wait()

	for rank, out := range results {
		if string(out) != "abcd" {
			t.Fatalf("rank %d gathered %q, want %q", rank, out, "abcd")
		}
	}
}

func TestStaticGroupMultipleRounds(t *testing.T) {
	const n = 2
	members := NewStaticGroup(n)

	var wg sync.WaitGroup
	for i, m := range members {
		wg.Add(1)
		go func(rank int, g *StaticGroup) {
			defer wg.Done()
			for round := 0; round < 3; round++ {
				payload := []byte(fmt.Sprintf("r%d-%d", round, rank))
				out, err := g.AllGather(payload)
				if err != nil {
					t.Errorf("rank %d round %d: %v", rank, round, err)
					return
				}
				want := fmt.Sprintf("r%d-0r%d-1", round, round)
				if string(out) != want {
					t.Errorf("rank %d round %d gathered %q, want %q", rank, round, out, want)
				}
			}
		}(i, m)
	}
	wg.Wait()
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("picking port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestTCPGroupAllGather(t *testing.T) {
	const n = 3
	port := freePort(t)

	results := make([][]byte, n)
	var wg sync.WaitGroup
	for rank := 0; rank < n; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			cfg := Config{
				WorldSize:  n,
				WorldRank:  rank,
				LocalSize:  n,
				LocalRank:  rank,
				MasterAddr: "127.0.0.1",
				MasterPort: port,
			}
			g, err := Join(cfg)
			if err != nil {
				t.Errorf("rank %d Join: %v", rank, err)
				return
			}
			defer g.Close()
			for round := 0; round < 2; round++ {
				payload := []byte{byte(rank), byte(round), 0xCC, 0xDD}
				out, err := g.AllGather(payload)
				if err != nil {
					t.Errorf("rank %d AllGather: %v", rank, err)
					return
				}
				for r := 0; r < n; r++ {
					chunk := out[r*len(payload) : (r+1)*len(payload)]
					if chunk[0] != byte(r) || chunk[1] != byte(round) {
						t.Errorf("rank %d saw chunk %v for rank %d round %d", rank, chunk, r, round)
					}
				}
				if round == 0 {
					results[rank] = out
				}
			}
		}(rank)
	}
	wg.Wait()

	for rank := 1; rank < n; rank++ {
		if string(results[rank]) != string(results[0]) {
			t.Fatalf("rank %d gathered different bytes than rank 0", rank)
		}
	}
}

func TestConfigValidation(t *testing.T) {
	bad := []Config{
		{WorldSize: 0, WorldRank: 0, LocalSize: 1},
		{WorldSize: 2, WorldRank: 2, LocalSize: 1},
		{WorldSize: 2, WorldRank: 0, LocalSize: 0},
		{WorldSize: 2, WorldRank: 0, LocalSize: 1, LocalRank: 1},
	}
	for i, cfg := range bad {
		if err := cfg.validate(); err == nil {
			t.Errorf("case %d: config %+v validated", i, cfg)
		}
	}
	good := Config{WorldSize: 2, WorldRank: 1, LocalSize: 1, LocalRank: 0}
	if err := good.validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("RANK", "1")
	t.Setenv("WORLD_SIZE", "2")
	t.Setenv("LOCAL_RANK", "0")
	t.Setenv("LOCAL_SIZE", "1")
	t.Setenv("MASTER_ADDR", "10.0.0.1")
	t.Setenv("MASTER_PORT", "12345")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	want := Config{WorldSize: 2, WorldRank: 1, LocalSize: 1, LocalRank: 0, MasterAddr: "10.0.0.1", MasterPort: 12345}
	if cfg != want {
		t.Fatalf("FromEnv = %+v, want %+v", cfg, want)
	}
}
