// Package cluster provides the process-group contract the runtime is
// bootstrapped with: world and local ranks plus a fixed-size all-gather used
// to exchange endpoint addresses before any fabric traffic flows. The TCP
// implementation covers deployments launched with torchrun-style environment
// variables; the static implementation serves single-process tests.
package cluster

import (
	"fmt"
	"os"
	"strconv"
	"sync"
)

// Group is the bootstrap collaborator: rank bookkeeping and an all-gather
// primitive. AllGather contributes buf (the same length on every rank) and
// returns every rank's contribution concatenated in rank order.
type Group interface {
	WorldSize() int
	WorldRank() int
	LocalSize() int
	LocalRank() int
	AllGather(buf []byte) ([]byte, error)
}

// Config describes one member of the group.
type Config struct {
	WorldSize  int
	WorldRank  int
	LocalSize  int
	LocalRank  int
	MasterAddr string
	MasterPort int
}

func (c Config) validate() error {
	if c.WorldSize <= 0 {
		return fmt.Errorf("cluster: world size %d", c.WorldSize)
	}
	if c.WorldRank < 0 || c.WorldRank >= c.WorldSize {
		return fmt.Errorf("cluster: world rank %d outside [0, %d)", c.WorldRank, c.WorldSize)
	}
	if c.LocalSize <= 0 || c.LocalRank < 0 || c.LocalRank >= c.LocalSize {
		return fmt.Errorf("cluster: local rank %d / local size %d", c.LocalRank, c.LocalSize)
	}
	return nil
}

// FromEnv reads the torchrun-style launch environment: RANK, WORLD_SIZE,
// LOCAL_RANK, LOCAL_SIZE, MASTER_ADDR, MASTER_PORT.
func FromEnv() (Config, error) {
	intVar := func(name string, def int) (int, error) {
		v := os.Getenv(name)
		if v == "" {
			if def >= 0 {
				return def, nil
			}
			return 0, fmt.Errorf("cluster: %s not set", name)
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("cluster: parsing %s: %w", name, err)
		}
		return n, nil
	}

	var cfg Config
	var err error
	if cfg.WorldRank, err = intVar("RANK", -1); err != nil {
		return Config{}, err
	}
	if cfg.WorldSize, err = intVar("WORLD_SIZE", -1); err != nil {
		return Config{}, err
	}
	if cfg.LocalRank, err = intVar("LOCAL_RANK", 0); err != nil {
		return Config{}, err
	}
	if cfg.LocalSize, err = intVar("LOCAL_SIZE", 1); err != nil {
		return Config{}, err
	}
	cfg.MasterAddr = os.Getenv("MASTER_ADDR")
	if cfg.MasterAddr == "" {
		cfg.MasterAddr = "127.0.0.1"
	}
	if cfg.MasterPort, err = intVar("MASTER_PORT", 29500); err != nil {
		return Config{}, err
	}
	return cfg, cfg.validate()
}

// staticHub synchronizes an in-process group.
type staticHub struct {
	n     int
	mu    sync.Mutex
	cond  *sync.Cond
	bufs  [][]byte
	count int
	out   []byte
	gen   uint64
}

// StaticGroup is an in-process group member; all members share one hub.
type StaticGroup struct {
	hub  *staticHub
	rank int
}

// NewStaticGroup creates n in-process members of one group, indexed by rank.
// Each member must be used from its own goroutine.
func NewStaticGroup(n int) []*StaticGroup {
	hub := &staticHub{n: n, bufs: make([][]byte, n)}
	hub.cond = sync.NewCond(&hub.mu)
	members := make([]*StaticGroup, n)
	for i := range members {
		members[i] = &StaticGroup{hub: hub, rank: i}
	}
	return members
}

func (g *StaticGroup) WorldSize() int { return g.hub.n }
func (g *StaticGroup) WorldRank() int { return g.rank }
func (g *StaticGroup) LocalSize() int { return g.hub.n }
func (g *StaticGroup) LocalRank() int { return g.rank }

// AllGather blocks until every member of the group has contributed.
func (g *StaticGroup) AllGather(buf []byte) ([]byte, error) {
	h := g.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	gen := h.gen
	h.bufs[g.rank] = append([]byte(nil), buf...)
	h.count++
	if h.count == h.n {
		var out []byte
		for _, b := range h.bufs {
			out = append(out, b...)
		}
		h.out = out
		h.count = 0
		h.gen++
		h.cond.Broadcast()
	} else {
		for h.gen == gen {
			h.cond.Wait()
		}
	}
	return h.out, nil
}
