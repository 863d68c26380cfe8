// Command pingpong exchanges one message between every pair of adjacent
// ranks: each rank sends "[rank:R] [S]->[D]" to its successor and prints the
// message it receives. Launch one process per rank with torchrun-style
// environment variables (RANK, WORLD_SIZE, MASTER_ADDR, MASTER_PORT).
package main

import (
	"flag"
	"fmt"

	"go.uber.org/zap"

	"github.com/rocketbitz/efaloop/aio"
	"github.com/rocketbitz/efaloop/cluster"
	"github.com/rocketbitz/efaloop/efa"
	"github.com/rocketbitz/efaloop/fi"
	"github.com/rocketbitz/efaloop/rdma"
	"github.com/rocketbitz/efaloop/topo"
)

func main() {
	provider := flag.String("provider", "efa", "libfabric provider to open")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	if err := run(*provider, log); err != nil {
		log.Fatalf("pingpong: %v", err)
	}
}

func run(provider string, log *zap.SugaredLogger) error {
	cfg, err := cluster.FromEnv()
	if err != nil {
		return err
	}
	group, err := cluster.Join(cfg)
	if err != nil {
		return err
	}
	defer group.Close()

	place, err := topo.RoundRobin{}.Locate(group.LocalRank())
	if err != nil {
		return err
	}
	if err := topo.Pin(place.Core); err != nil {
		log.Warnf("cpu pinning unavailable: %v", err)
	}

	discovery, err := fi.Discover(fi.WithProvider(provider), fi.WithEndpointType(fi.EndpointTypeRDM))
	if err != nil {
		return fmt.Errorf("discovering %s: %w", provider, err)
	}
	defer discovery.Close()
	descs := discovery.Descriptors()
	if len(descs) == 0 {
		return fi.ErrNoProvider
	}
	desc := descs[place.FabricIndex%len(descs)]
	log.Infof("rank %d using %s", group.WorldRank(), desc)

	rank := group.WorldRank()
	dst := (rank + 1) % group.WorldSize()
	msg := fmt.Sprintf("[rank:%d] [%d]->[%d]", rank, rank, dst)

	loop := aio.New()
	// The network lives inside the task: closing it on completion
	// unregisters the CQ so the loop can quiesce.
	task := aio.New(loop, func(p *aio.Proc) (string, error) {
		net, err := efa.Open(loop, desc, efa.WithLogger(log), efa.WithHostOnly())
		if err != nil {
			return "", err
		}
		defer net.Close()

		endpoints, err := group.AllGather(net.Addr())
		if err != nil {
			return "", err
		}
		remote := endpoints[dst*rdma.MaxAddrSize : (dst+1)*rdma.MaxAddrSize]
		conn, err := net.Connect(remote)
		if err != nil {
			return "", err
		}

		recv := conn.Recv(int(conn.RecvBuffer().Size()))
		aio.NewFuture(recv)
		if _, err := aio.Await(p, conn.Send([]byte(msg))); err != nil {
			return "", err
		}
		got, err := aio.Await(p, recv)
		return string(got), err
	})
	got, err := aio.Run(task)
	if err != nil {
		return err
	}
	log.Infof("rank %d sent %q, received %q", rank, msg, got)
	return nil
}
