//go:build cgo

package fi

import (
	"unsafe"

	"github.com/rocketbitz/efaloop/rdma"
)

// The registration methods implement rdma.Domain so connection buffers can
// be registered directly against a libfabric domain.
var _ rdma.Domain = (*Domain)(nil)

// RegisterHost registers a host memory range for send/receive. The caller
// guarantees the range stays allocated until the region is closed.
func (d *Domain) RegisterHost(base unsafe.Pointer, length uintptr) (rdma.Region, error) {
	if d == nil || d.handle == nil {
		return nil, ErrInvalidHandle{"domain"}
	}
	mr, err := d.handle.RegisterHost(base, length)
	if err != nil {
		return nil, err
	}
	return mr, nil
}

// RegisterDevice registers a DMA-BUF-exported device range with full local
// and remote RDMA access.
func (d *Domain) RegisterDevice(fd int, base unsafe.Pointer, length uintptr, device int) (rdma.Region, error) {
	if d == nil || d.handle == nil {
		return nil, ErrInvalidHandle{"domain"}
	}
	mr, err := d.handle.RegisterDMABuf(fd, base, length, device)
	if err != nil {
		return nil, err
	}
	return mr, nil
}
