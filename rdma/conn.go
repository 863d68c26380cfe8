package rdma

import (
	"fmt"
	"unsafe"

	"go.uber.org/multierr"

	"github.com/rocketbitz/efaloop/aio"
)

// ConnConfig controls connection construction. Allocator is required;
// DeviceAllocator may be nil for host-only connections, which then reject
// Write and Read.
type ConnConfig struct {
	Allocator        Allocator
	DeviceAllocator  DeviceAllocator
	HostBufferSize   uintptr
	DeviceBufferSize uintptr
	Logger           Logger
	Metrics          MetricHook
}

// Conn is an endpoint-addressed peer. It owns a receive and a send host
// buffer for point-to-point messages, a device write buffer that sources
// local RDMA writes, and a device read buffer that remote peers write into.
// All operations are tasks on the connection's loop.
type Conn struct {
	loop     *aio.Loop
	tr       Transport
	remote   Addr
	recvBuf  *Buffer
	sendBuf  *Buffer
	readBuf  *Buffer
	writeBuf *Buffer
	log      Logger
	metrics  MetricHook
}

// NewConn builds a connection over the transport to the resolved remote
// address, allocating and registering its buffers on the given domain.
func NewConn(loop *aio.Loop, tr Transport, dom Domain, remote Addr, cfg ConnConfig) (*Conn, error) {
	if cfg.Allocator == nil {
		return nil, fmt.Errorf("rdma: connection requires a host allocator")
	}
	hostSize := cfg.HostBufferSize
	if hostSize == 0 {
		hostSize = DefaultBufferSize
	}
	devSize := cfg.DeviceBufferSize
	if devSize == 0 {
		devSize = DefaultRegionSize
	}
	log := cfg.Logger
	if log == nil {
		log = nopLogger{}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NopMetrics{}
	}

	c := &Conn{loop: loop, tr: tr, remote: remote, log: log, metrics: metrics}
	var err error
	if c.recvBuf, err = NewHostBuffer(dom, cfg.Allocator, hostSize, 0); err != nil {
		return nil, err
	}
	if c.sendBuf, err = NewHostBuffer(dom, cfg.Allocator, hostSize, 0); err != nil {
		c.Close()
		return nil, err
	}
	if cfg.DeviceAllocator != nil {
		if c.readBuf, err = NewDeviceBuffer(dom, cfg.DeviceAllocator, devSize, 0); err != nil {
			c.Close()
			return nil, err
		}
		if c.writeBuf, err = NewDeviceBuffer(dom, cfg.DeviceAllocator, devSize, 0); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

// Remote returns the provider address of the peer.
func (c *Conn) Remote() Addr { return c.remote }

// SendBuffer returns the host buffer sends are staged in.
func (c *Conn) SendBuffer() *Buffer { return c.sendBuf }

// RecvBuffer returns the host buffer receives land in.
func (c *Conn) RecvBuffer() *Buffer { return c.recvBuf }

// ReadBuffer returns the device buffer remote peers write into, or nil on a
// host-only connection.
func (c *Conn) ReadBuffer() *Buffer { return c.readBuf }

// WriteBuffer returns the device buffer local writes are sourced from, or nil
// on a host-only connection.
func (c *Conn) WriteBuffer() *Buffer { return c.writeBuf }

// Close releases all buffers. In-flight operations must have completed.
func (c *Conn) Close() error {
	var err error
	for _, b := range []*Buffer{c.recvBuf, c.sendBuf, c.readBuf, c.writeBuf} {
		if b != nil {
			err = multierr.Append(err, b.Close())
		}
	}
	c.recvBuf, c.sendBuf, c.readBuf, c.writeBuf = nil, nil, nil, nil
	return err
}

// await submits via post, parks the task, and returns the completion after
// checking it carries want among its flags. The operation context lives in
// the task frame, so its address is stable until resumption.
func (c *Conn) await(p *aio.Proc, want uint64, post func(ctx uintptr) error) (aio.Completion, error) {
	op := aio.NewOp(p.Handle())
	token, err := c.tr.NewContext()
	if err != nil {
		return aio.Completion{}, fmt.Errorf("rdma: allocating operation context: %w", err)
	}
	c.loop.AddOp(token, op)
	if err := post(token); err != nil {
		c.loop.DropOp(token)
		c.tr.FreeContext(token)
		return aio.Completion{}, err
	}
	p.Suspend()
	c.tr.FreeContext(token)
	if op.Err != nil {
		return aio.Completion{}, op.Err
	}
	if op.Entry.Flags&want == 0 {
		return aio.Completion{}, fmt.Errorf("%w: got %#x, want %#x", ErrFlagMismatch, op.Entry.Flags, want)
	}
	return op.Entry, nil
}

// Recv posts a single receive of up to n bytes from any source into the
// receive buffer and yields the received bytes.
func (c *Conn) Recv(n int) *aio.Task[[]byte] {
	return aio.New(c.loop, func(p *aio.Proc) ([]byte, error) {
		if n <= 0 {
			return nil, fmt.Errorf("%w: recv length %d", ErrEmptyPayload, n)
		}
		if uintptr(n) > c.recvBuf.Size() {
			return nil, fmt.Errorf("%w: recv length %d, buffer %d", ErrOversize, n, c.recvBuf.Size())
		}
		entry, err := c.await(p, aio.OpRecv, func(ctx uintptr) error {
			return c.tr.PostRecv(c.recvBuf.Base(), uintptr(n), c.recvBuf.Desc(), ctx)
		})
		if err != nil {
			c.metrics.RecvFailed(err)
			return nil, err
		}
		c.metrics.RecvCompleted(int(entry.Len))
		return c.recvBuf.Bytes()[:entry.Len], nil
	})
}

// Send copies data into the send buffer, posts it to the peer, and yields the
// number of bytes sent.
func (c *Conn) Send(data []byte) *aio.Task[int] {
	return aio.New(c.loop, func(p *aio.Proc) (int, error) {
		if len(data) == 0 {
			return 0, fmt.Errorf("%w: send", ErrEmptyPayload)
		}
		if uintptr(len(data)) > c.sendBuf.Size() {
			return 0, fmt.Errorf("%w: send length %d, buffer %d", ErrOversize, len(data), c.sendBuf.Size())
		}
		copy(c.sendBuf.Bytes(), data)
		if _, err := c.await(p, aio.OpSend, func(ctx uintptr) error {
			return c.tr.PostSend(c.sendBuf.Base(), uintptr(len(data)), c.sendBuf.Desc(), c.remote, ctx)
		}); err != nil {
			c.metrics.SendFailed(err)
			return 0, err
		}
		c.metrics.SendCompleted(len(data))
		return len(data), nil
	})
}

// Write issues a one-sided RDMA write of n bytes from the device write buffer
// to (raddr, rkey) at the peer. A non-zero imm is delivered to the peer's CQ
// as immediate data; zero requests no remote notification. Yields the number
// of bytes written.
func (c *Conn) Write(n int, raddr, rkey uint64, imm uint32) *aio.Task[int] {
	return aio.New(c.loop, func(p *aio.Proc) (int, error) {
		if c.writeBuf == nil {
			return 0, ErrNoDeviceBuffer
		}
		if n <= 0 {
			return 0, fmt.Errorf("%w: write length %d", ErrEmptyPayload, n)
		}
		if uintptr(n) > c.writeBuf.Size() {
			return 0, fmt.Errorf("%w: write length %d, buffer %d", ErrOversize, n, c.writeBuf.Size())
		}
		entry, err := c.await(p, aio.OpWrite, func(ctx uintptr) error {
			return c.tr.PostWrite(c.writeBuf.Base(), uintptr(n), c.writeBuf.Desc(), c.remote, raddr, rkey, imm, ctx)
		})
		if err != nil {
			c.metrics.WriteFailed(err)
			return 0, err
		}
		c.metrics.WriteCompleted(int(entry.Len))
		return int(entry.Len), nil
	})
}

// Read suspends until a remote-initiated RDMA write carrying imm as immediate
// data completes against the device read buffer, then yields the buffer's
// base. imm must be non-zero and unique among in-flight reads on the loop.
func (c *Conn) Read(imm uint32) *aio.Task[unsafe.Pointer] {
	return aio.New(c.loop, func(p *aio.Proc) (unsafe.Pointer, error) {
		if c.readBuf == nil {
			return nil, ErrNoDeviceBuffer
		}
		if imm == 0 {
			return nil, ErrZeroImm
		}
		op := aio.NewOp(p.Handle())
		if err := c.loop.AddImm(imm, op); err != nil {
			return nil, err
		}
		c.log.Debugf("rdma: awaiting remote write imm %#x", imm)
		p.Suspend()
		c.loop.DropImm(imm)
		if op.Err != nil {
			c.metrics.ReadFailed(op.Err)
			return nil, op.Err
		}
		if op.Entry.Flags&aio.OpRemoteWrite == 0 {
			err := fmt.Errorf("%w: got %#x, want remote write", ErrFlagMismatch, op.Entry.Flags)
			c.metrics.ReadFailed(err)
			return nil, err
		}
		c.metrics.ReadResumed(int(op.Entry.Len))
		return c.readBuf.Base(), nil
	})
}
