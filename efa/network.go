//go:build cgo

// Package efa assembles the libfabric stack for one Elastic Fabric Adapter
// endpoint: fabric, domain, reliable-datagram endpoint, data-format
// completion queue, and address vector. It publishes the local endpoint
// address, registers the CQ with the loop's selector, and mints connections
// to remote addresses.
package efa

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/rocketbitz/efaloop/aio"
	"github.com/rocketbitz/efaloop/fi"
	"github.com/rocketbitz/efaloop/rdma"
)

// Option adjusts Network construction.
type Option func(*Network)

// WithLogger installs a debug logger (satisfied by *zap.SugaredLogger).
func WithLogger(log rdma.Logger) Option {
	return func(n *Network) {
		if log != nil {
			n.log = log
		}
	}
}

// WithMetrics installs a metric hook passed through to minted connections.
func WithMetrics(m rdma.MetricHook) Option {
	return func(n *Network) {
		if m != nil {
			n.metrics = m
		}
	}
}

// WithHostOnly disables device buffers on minted connections; Send/Recv work
// but Write/Read are rejected. Use it on hosts without GPUs.
func WithHostOnly() Option {
	return func(n *Network) {
		n.hostOnly = true
	}
}

// WithBufferSizes overrides the host and device buffer capacities of minted
// connections. Zero keeps the defaults.
func WithBufferSizes(host, device uintptr) Option {
	return func(n *Network) {
		n.hostSize = host
		n.deviceSize = device
	}
}

// Network owns one endpoint's fabric resources and the connections minted
// from it, keyed by the hex form of the 32-byte remote address.
type Network struct {
	loop   *aio.Loop
	fabric *fi.Fabric
	domain *fi.Domain
	ep     *fi.Endpoint
	cq     *fi.CompletionQueue
	av     *fi.AddressVector
	addr   [rdma.MaxAddrSize]byte

	conns      map[string]*rdma.Conn
	log        rdma.Logger
	metrics    rdma.MetricHook
	hostOnly   bool
	hostSize   uintptr
	deviceSize uintptr
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}

// Open builds fabric, domain, endpoint, CQ, and AV from the descriptor,
// binds and enables the endpoint, reads the local address, and registers the
// CQ with the loop's selector.
func Open(loop *aio.Loop, desc fi.Descriptor, opts ...Option) (*Network, error) {
	n := &Network{
		loop:    loop,
		conns:   make(map[string]*rdma.Conn),
		log:     nopLogger{},
		metrics: rdma.NopMetrics{},
	}
	for _, opt := range opts {
		opt(n)
	}

	var err error
	if n.fabric, err = desc.OpenFabric(); err != nil {
		return nil, fmt.Errorf("efa: opening fabric: %w", err)
	}
	if n.domain, err = desc.OpenDomain(n.fabric); err != nil {
		n.Close()
		return nil, fmt.Errorf("efa: opening domain: %w", err)
	}
	if n.cq, err = n.domain.OpenCompletionQueue(aio.MaxCQEntries); err != nil {
		n.Close()
		return nil, fmt.Errorf("efa: opening completion queue: %w", err)
	}
	if n.av, err = n.domain.OpenAddressVector(); err != nil {
		n.Close()
		return nil, fmt.Errorf("efa: opening address vector: %w", err)
	}
	if n.ep, err = desc.OpenEndpoint(n.domain); err != nil {
		n.Close()
		return nil, fmt.Errorf("efa: opening endpoint: %w", err)
	}
	if err = n.ep.BindCompletionQueue(n.cq); err != nil {
		n.Close()
		return nil, fmt.Errorf("efa: binding completion queue: %w", err)
	}
	if err = n.ep.BindAddressVector(n.av); err != nil {
		n.Close()
		return nil, fmt.Errorf("efa: binding address vector: %w", err)
	}
	if err = n.ep.Enable(); err != nil {
		n.Close()
		return nil, fmt.Errorf("efa: enabling endpoint: %w", err)
	}
	if _, err = n.ep.Name(n.addr[:]); err != nil {
		n.Close()
		return nil, fmt.Errorf("efa: reading endpoint address: %w", err)
	}
	loop.Register(n.cq)
	n.log.Debugf("efa: endpoint open, addr %s", rdma.AddrToString(n.addr[:]))
	return n, nil
}

// Addr returns the local endpoint address blob.
func (n *Network) Addr() []byte {
	return n.addr[:]
}

// Domain exposes the network's fabric domain for additional registrations.
func (n *Network) Domain() *fi.Domain {
	return n.domain
}

// Connect inserts the remote address into the address vector and mints a
// connection. Connections are cached by the remote address's hex string; the
// returned pointer is borrowed and owned by the Network.
func (n *Network) Connect(remote []byte) (*rdma.Conn, error) {
	if len(remote) < rdma.AddrSize {
		return nil, fmt.Errorf("efa: remote address %d bytes, want at least %d", len(remote), rdma.AddrSize)
	}
	key := rdma.AddrToString(remote)
	if conn, ok := n.conns[key]; ok {
		return conn, nil
	}
	fiAddr, err := n.av.InsertRaw(remote)
	if err != nil {
		return nil, fmt.Errorf("efa: inserting remote address: %w", err)
	}
	cfg := rdma.ConnConfig{
		Allocator:        hostAllocator{},
		HostBufferSize:   n.hostSize,
		DeviceBufferSize: n.deviceSize,
		Logger:           n.log,
		Metrics:          n.metrics,
	}
	if !n.hostOnly {
		cfg.DeviceAllocator = deviceAllocator{}
	}
	conn, err := rdma.NewConn(n.loop, n.ep, n.domain, rdma.Addr(fiAddr), cfg)
	if err != nil {
		return nil, err
	}
	n.conns[key] = conn
	n.log.Debugf("efa: connected to %s", key)
	return conn, nil
}

// String renders the local address and known peers.
func (n *Network) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "device addr:\n  %s\nremote addr:\n", rdma.AddrToString(n.addr[:]))
	for key := range n.conns {
		fmt.Fprintf(&sb, "  %s\n", key)
	}
	return sb.String()
}

// Close tears the stack down: connections and their registrations first,
// then CQ (unregistered from the selector), AV, endpoint, domain, fabric.
func (n *Network) Close() error {
	var err error
	for key, conn := range n.conns {
		err = multierr.Append(err, conn.Close())
		delete(n.conns, key)
	}
	if n.cq != nil {
		n.loop.Unregister(n.cq)
		err = multierr.Append(err, n.cq.Close())
		n.cq = nil
	}
	if n.av != nil {
		err = multierr.Append(err, n.av.Close())
		n.av = nil
	}
	if n.ep != nil {
		err = multierr.Append(err, n.ep.Close())
		n.ep = nil
	}
	if n.domain != nil {
		err = multierr.Append(err, n.domain.Close())
		n.domain = nil
	}
	if n.fabric != nil {
		err = multierr.Append(err, n.fabric.Close())
		n.fabric = nil
	}
	return err
}
