//go:build cgo

package efa

import (
	"errors"
	"unsafe"

	"github.com/rocketbitz/efaloop/internal/capi"
	"github.com/rocketbitz/efaloop/internal/cuda"
	"github.com/rocketbitz/efaloop/rdma"
)

// hostAllocator backs host buffers with C-managed memory so registered
// ranges never move under the provider.
type hostAllocator struct{}

var _ rdma.Allocator = hostAllocator{}

func (hostAllocator) Alloc(size uintptr) (unsafe.Pointer, error) {
	ptr := capi.AllocBytes(size)
	if ptr == nil {
		return nil, errors.New("efa: host allocation failed")
	}
	return ptr, nil
}

func (hostAllocator) Free(ptr unsafe.Pointer) {
	capi.FreeBytes(ptr)
}

// deviceMemory is one CUDA allocation exported over DMA-BUF.
type deviceMemory struct {
	base   unsafe.Pointer
	device int
}

var _ rdma.DeviceMemory = (*deviceMemory)(nil)

func (m *deviceMemory) Base() unsafe.Pointer { return m.base }
func (m *deviceMemory) Device() int          { return m.device }

func (m *deviceMemory) ExportDMABuf(base unsafe.Pointer, length uintptr) (int, error) {
	return cuda.ExportDMABuf(base, length)
}

func (m *deviceMemory) Free() error {
	return cuda.Free(m.base)
}

// deviceAllocator allocates CUDA device memory. It fails on binaries built
// without the cuda tag.
type deviceAllocator struct{}

var _ rdma.DeviceAllocator = deviceAllocator{}

func (deviceAllocator) Alloc(size uintptr) (rdma.DeviceMemory, error) {
	base, device, err := cuda.Malloc(size)
	if err != nil {
		return nil, err
	}
	return &deviceMemory{base: base, device: device}, nil
}
