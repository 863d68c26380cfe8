package rdma

import (
	"errors"
	"fmt"
	"unsafe"

	"go.uber.org/multierr"
)

// Kind distinguishes host and device buffers.
type Kind uint8

const (
	// Host buffers live in process memory and serve message send/receive.
	Host Kind = iota
	// Device buffers live in GPU memory, registered via DMA-BUF, and serve
	// one-sided RDMA.
	Device
)

// Buffer is an aligned memory region registered with a fabric domain and
// pinned for the region's lifetime. The aligned base is stable and the
// registered length equals the aligned usable size. Registrations are closed
// before the underlying memory is released.
type Buffer struct {
	kind   Kind
	raw    unsafe.Pointer
	base   unsafe.Pointer
	size   uintptr
	mr     Region
	mrs    map[Domain]Region // host only: additional per-domain registrations
	alloc  Allocator
	dev    DeviceMemory
	device int
	fd     int
}

func alignUp(p unsafe.Pointer, align uintptr) unsafe.Pointer {
	pad := uintptr(p) & (align - 1)
	if pad == 0 {
		return p
	}
	return unsafe.Add(p, align-pad)
}

// NewHostBuffer allocates size bytes, aligns the base to align (Align when
// zero), and registers the aligned suffix with the domain for send/receive.
func NewHostBuffer(d Domain, a Allocator, size, align uintptr) (*Buffer, error) {
	if align == 0 {
		align = Align
	}
	if size <= align {
		return nil, fmt.Errorf("rdma: host buffer size %d not larger than alignment %d", size, align)
	}
	raw, err := a.Alloc(size)
	if err != nil {
		return nil, fmt.Errorf("rdma: allocating host buffer: %w", err)
	}
	base := alignUp(raw, align)
	usable := size - (uintptr(base) - uintptr(raw))
	mr, err := d.RegisterHost(base, usable)
	if err != nil {
		a.Free(raw)
		return nil, fmt.Errorf("rdma: registering host buffer: %w", err)
	}
	return &Buffer{
		kind:   Host,
		raw:    raw,
		base:   base,
		size:   usable,
		mr:     mr,
		mrs:    map[Domain]Region{d: mr},
		alloc:  a,
		device: -1,
		fd:     -1,
	}, nil
}

// NewDeviceBuffer allocates size bytes of device memory, exports a DMA-BUF
// file descriptor over the aligned subrange, and registers it with the domain
// for local and remote RDMA access.
func NewDeviceBuffer(d Domain, a DeviceAllocator, size, align uintptr) (*Buffer, error) {
	if align == 0 {
		align = Align
	}
	if size <= align {
		return nil, fmt.Errorf("rdma: device buffer size %d not larger than alignment %d", size, align)
	}
	mem, err := a.Alloc(size)
	if err != nil {
		return nil, fmt.Errorf("rdma: allocating device buffer: %w", err)
	}
	raw := mem.Base()
	base := alignUp(raw, align)
	usable := size - (uintptr(base) - uintptr(raw))
	fd, err := mem.ExportDMABuf(base, usable)
	if err != nil {
		err = multierr.Append(fmt.Errorf("rdma: exporting dmabuf: %w", err), mem.Free())
		return nil, err
	}
	mr, err := d.RegisterDevice(fd, base, usable, mem.Device())
	if err != nil {
		err = multierr.Append(fmt.Errorf("rdma: registering device buffer: %w", err), mem.Free())
		return nil, err
	}
	return &Buffer{
		kind:   Device,
		raw:    raw,
		base:   base,
		size:   usable,
		mr:     mr,
		dev:    mem,
		device: mem.Device(),
		fd:     fd,
	}, nil
}

// Kind reports whether the buffer backs host or device memory.
func (b *Buffer) Kind() Kind { return b.kind }

// Base returns the aligned base pointer.
func (b *Buffer) Base() unsafe.Pointer { return b.base }

// Size returns the usable (and registered) length in bytes.
func (b *Buffer) Size() uintptr { return b.size }

// Device returns the device index for device buffers, -1 otherwise.
func (b *Buffer) Device() int { return b.device }

// DMABufFD returns the exported DMA-BUF descriptor for device buffers, -1
// otherwise.
func (b *Buffer) DMABufFD() int { return b.fd }

// Region returns the buffer's primary registration.
func (b *Buffer) Region() Region { return b.mr }

// Desc returns the primary registration's local descriptor.
func (b *Buffer) Desc() unsafe.Pointer {
	if b.mr == nil {
		return nil
	}
	return b.mr.Desc()
}

// Key returns the primary registration's remote key.
func (b *Buffer) Key() uint64 {
	if b.mr == nil {
		return 0
	}
	return b.mr.Key()
}

// Bytes returns the registered range as a byte slice. Only meaningful for
// host buffers; device bytes are not addressable from the CPU.
func (b *Buffer) Bytes() []byte {
	if b.kind != Host || b.base == nil || b.size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(b.base), b.size)
}

// Register adds a registration against another domain. Multi-NIC deployments
// register one host buffer with every local domain; registering an already
// covered domain is a no-op.
func (b *Buffer) Register(d Domain) error {
	if b.kind != Host {
		return errors.New("rdma: only host buffers support multi-domain registration")
	}
	if _, ok := b.mrs[d]; ok {
		return nil
	}
	mr, err := d.RegisterHost(b.base, b.size)
	if err != nil {
		return fmt.Errorf("rdma: registering host buffer: %w", err)
	}
	b.mrs[d] = mr
	return nil
}

// RegionFor returns the registration for the given domain, or nil.
func (b *Buffer) RegionFor(d Domain) Region {
	if b.mrs == nil {
		return nil
	}
	return b.mrs[d]
}

// Close releases every registration and then frees the underlying memory.
func (b *Buffer) Close() error {
	var err error
	if b.mrs != nil {
		for _, mr := range b.mrs {
			err = multierr.Append(err, mr.Close())
		}
		b.mrs = nil
		b.mr = nil
	} else if b.mr != nil {
		err = multierr.Append(err, b.mr.Close())
		b.mr = nil
	}
	switch {
	case b.kind == Host && b.raw != nil:
		b.alloc.Free(b.raw)
	case b.kind == Device && b.dev != nil:
		err = multierr.Append(err, b.dev.Free())
		b.dev = nil
	}
	b.raw = nil
	b.base = nil
	b.size = 0
	return err
}
