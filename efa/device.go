//go:build cgo

package efa

import (
	"fmt"
	"unsafe"

	"github.com/rocketbitz/efaloop/internal/cuda"
	"github.com/rocketbitz/efaloop/rdma"
)

// SetDevice selects the CUDA device for the calling thread. Workers call it
// with their placement's device index before opening the network.
func SetDevice(device int) error {
	return cuda.SetDevice(device)
}

// StageToDevice copies data into the front of a device buffer.
func StageToDevice(buf *rdma.Buffer, data []byte) error {
	if buf == nil || buf.Kind() != rdma.Device {
		return fmt.Errorf("efa: staging requires a device buffer")
	}
	if uintptr(len(data)) > buf.Size() {
		return fmt.Errorf("efa: staging %d bytes into %d-byte buffer", len(data), buf.Size())
	}
	if len(data) == 0 {
		return nil
	}
	return cuda.MemcpyToDevice(buf.Base(), unsafe.Pointer(&data[0]), uintptr(len(data)))
}

// FetchFromDevice copies the front of a device buffer back to host memory.
func FetchFromDevice(dst []byte, buf *rdma.Buffer) error {
	if buf == nil || buf.Kind() != rdma.Device {
		return fmt.Errorf("efa: fetching requires a device buffer")
	}
	if uintptr(len(dst)) > buf.Size() {
		return fmt.Errorf("efa: fetching %d bytes from %d-byte buffer", len(dst), buf.Size())
	}
	if len(dst) == 0 {
		return nil
	}
	return cuda.MemcpyFromDevice(unsafe.Pointer(&dst[0]), buf.Base(), uintptr(len(dst)))
}
