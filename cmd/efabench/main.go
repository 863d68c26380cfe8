// Command efabench drives the GPU RDMA path between two ranks: rank 1 (the
// reader) advertises its device read region in a handshake message, rank 0
// (the writer) streams pages into that region over one-sided RDMA writes and
// fences the stream with an immediate-data tag that resumes the reader.
// Launch two processes with torchrun-style environment variables.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rocketbitz/efaloop/aio"
	"github.com/rocketbitz/efaloop/cluster"
	"github.com/rocketbitz/efaloop/efa"
	"github.com/rocketbitz/efaloop/fi"
	"github.com/rocketbitz/efaloop/rdma"
	"github.com/rocketbitz/efaloop/topo"
)

const (
	benchSeed = 0x123456789
	benchImm  = 0x123
)

func main() {
	pageSize := flag.Int("page-size", 65536, "bytes per RDMA write")
	numPages := flag.Int("pages", 1000, "number of pages to stream")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	if err := run(*pageSize, *numPages, *metricsAddr, log); err != nil {
		log.Fatalf("efabench: %v", err)
	}
}

func run(pageSize, numPages int, metricsAddr string, log *zap.SugaredLogger) error {
	cfg, err := cluster.FromEnv()
	if err != nil {
		return err
	}
	if cfg.WorldSize != 2 {
		return fmt.Errorf("efabench runs with exactly 2 ranks, got %d", cfg.WorldSize)
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
	if err := efa.SetDevice(place.Device); err != nil {
		return fmt.Errorf("selecting device %d: %w", place.Device, err)
	}

	registry := prometheus.NewRegistry()
	metrics, err := rdma.NewPrometheusMetrics(rdma.PrometheusMetricsOptions{Registerer: registry})
	if err != nil {
		return err
	}
	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.Warnf("metrics server: %v", err)
			}
		}()
	}

	discovery, err := fi.DiscoverEFA()
	if err != nil {
		return fmt.Errorf("discovering EFA: %w", err)
	}
	defer discovery.Close()
	descs := discovery.Descriptors()
	if len(descs) == 0 {
		return fi.ErrNoProvider
	}
	desc := descs[place.FabricIndex%len(descs)]
	log.Infof("rank %d device %d using %s", group.WorldRank(), place.Device, desc)

	loop := aio.New(aio.WithHook(metrics))
	regionSize := uintptr(pageSize * numPages)
	task := aio.New(loop, func(p *aio.Proc) (struct{}, error) {
		net, err := efa.Open(loop, desc,
			efa.WithLogger(log),
			efa.WithMetrics(metrics),
			efa.WithBufferSizes(0, regionSize+rdma.Align),
		)
		if err != nil {
			return struct{}{}, err
		}
		defer net.Close()

		endpoints, err := group.AllGather(net.Addr())
		if err != nil {
			return struct{}{}, err
		}
		peer := 1 - group.WorldRank()
		remote := endpoints[peer*rdma.MaxAddrSize : (peer+1)*rdma.MaxAddrSize]
		conn, err := net.Connect(remote)
		if err != nil {
			return struct{}{}, err
		}

		if group.WorldRank() == 0 {
			return struct{}{}, runWriter(p, conn, pageSize, numPages, log)
		}
		return struct{}{}, runReader(p, group.WorldRank(), conn, pageSize, numPages, log)
	})
	if _, err := aio.Run(task); err != nil {
		return err
	}
	return nil
}

// runReader advertises its device read region and waits for the fenced
// stream to land.
func runReader(p *aio.Proc, rank int, conn *rdma.Conn, pageSize, numPages int, log *zap.SugaredLogger) error {
	read := conn.ReadBuffer()
	msg := &rdma.Message{
		Rank: int32(rank),
		Seed: benchSeed,
		Regions: []rdma.CUDARegion{{
			Addr: uint64(uintptr(read.Base())),
			Size: uint64(read.Size()),
			Key:  read.Key(),
		}},
	}
	frame := make([]byte, msg.EncodedSize())
	if _, err := msg.Encode(frame); err != nil {
		return err
	}
	if _, err := aio.Await(p, conn.Send(frame)); err != nil {
		return fmt.Errorf("handshake send: %w", err)
	}
	log.Infof("reader advertised region addr=%#x size=%d key=%d", msg.Regions[0].Addr, msg.Regions[0].Size, msg.Regions[0].Key)

	start := time.Now()
	if _, err := aio.Await(p, conn.Read(benchImm)); err != nil {
		return fmt.Errorf("awaiting fenced stream: %w", err)
	}
	elapsed := time.Since(start)

	total := pageSize * numPages
	expected, err := rdma.RandomBytes(benchSeed, total)
	if err != nil {
		return err
	}
	got := make([]byte, total)
	if err := efa.FetchFromDevice(got, read); err != nil {
		return fmt.Errorf("fetching device region: %w", err)
	}
	for i := range got {
		if got[i] != expected[i] {
			return fmt.Errorf("payload mismatch at byte %d", i)
		}
	}
	log.Infof("reader verified %d bytes in %v (%.2f GiB/s)",
		total, elapsed, float64(total)/elapsed.Seconds()/(1<<30))
	return nil
}

// runWriter receives the reader's region and streams pages into it, carrying
// the immediate-data fence on the final write.
func runWriter(p *aio.Proc, conn *rdma.Conn, pageSize, numPages int, log *zap.SugaredLogger) error {
	raw, err := aio.Await(p, conn.Recv(int(conn.RecvBuffer().Size())))
	if err != nil {
		return fmt.Errorf("handshake recv: %w", err)
	}
	msg, err := rdma.DecodeMessage(raw)
	if err != nil {
		return fmt.Errorf("handshake decode: %w", err)
	}
	if len(msg.Regions) != 1 {
		return fmt.Errorf("handshake advertised %d regions, want 1", len(msg.Regions))
	}
	region := msg.Regions[0]
	total := pageSize * numPages
	if uint64(total) > region.Size {
		return fmt.Errorf("stream of %d bytes exceeds remote region %d", total, region.Size)
	}
	log.Infof("writer streaming %d x %d bytes to addr=%#x key=%d", numPages, pageSize, region.Addr, region.Key)

	payload, err := rdma.RandomBytes(msg.Seed, total)
	if err != nil {
		return err
	}

	// Writes always source from the front of the device write buffer, so
	// each page is staged before its write is posted.
	start := time.Now()
	for i := 0; i < numPages; i++ {
		page := payload[i*pageSize : (i+1)*pageSize]
		if err := efa.StageToDevice(conn.WriteBuffer(), page); err != nil {
			return fmt.Errorf("staging page %d: %w", i, err)
		}
		imm := uint32(0)
		if i == numPages-1 {
			imm = benchImm
		}
		if _, err := aio.Await(p, conn.Write(pageSize, region.Addr+uint64(i*pageSize), region.Key, imm)); err != nil {
			return fmt.Errorf("write %d: %w", i, err)
		}
	}
	elapsed := time.Since(start)
	log.Infof("writer streamed %d bytes in %v (%.2f GiB/s)",
		total, elapsed, float64(total)/elapsed.Seconds()/(1<<30))
	return nil
}
