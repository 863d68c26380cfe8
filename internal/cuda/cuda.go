//go:build cuda

package cuda

import (
	"fmt"
	"unsafe"
)

/*
#cgo LDFLAGS: -lcuda -lcudart
#include <cuda.h>
#include <cuda_runtime.h>
*/
import "C"

func cudaCheck(rc C.cudaError_t, op string) error {
	if rc == C.cudaSuccess {
		return nil
	}
	return fmt.Errorf("%s: %s", op, C.GoString(C.cudaGetErrorString(rc)))
}

func cuCheck(rc C.CUresult, op string) error {
	if rc == C.CUDA_SUCCESS {
		return nil
	}
	var msg *C.char
	C.cuGetErrorString(rc, &msg)
	if msg == nil {
		return fmt.Errorf("%s: CUresult %d", op, int(rc))
	}
	return fmt.Errorf("%s: %s", op, C.GoString(msg))
}

// SetDevice selects the active CUDA device for the calling thread.
func SetDevice(device int) error {
	return cudaCheck(C.cudaSetDevice(C.int(device)), "cudaSetDevice")
}

// Malloc allocates size bytes of device memory and returns its base together
// with the owning device index recovered from the pointer attributes.
func Malloc(size uintptr) (unsafe.Pointer, int, error) {
	var ptr unsafe.Pointer
	if err := cudaCheck(C.cudaMalloc(&ptr, C.size_t(size)), "cudaMalloc"); err != nil {
		return nil, -1, err
	}
	var attrs C.struct_cudaPointerAttributes
	if err := cudaCheck(C.cudaPointerGetAttributes(&attrs, ptr), "cudaPointerGetAttributes"); err != nil {
		C.cudaFree(ptr)
		return nil, -1, err
	}
	if attrs._type != C.cudaMemoryTypeDevice {
		C.cudaFree(ptr)
		return nil, -1, fmt.Errorf("cudaMalloc returned non-device memory type %d", int(attrs._type))
	}
	return ptr, int(attrs.device), nil
}

// Free releases device memory from Malloc.
func Free(ptr unsafe.Pointer) error {
	if ptr == nil {
		return nil
	}
	return cudaCheck(C.cudaFree(ptr), "cudaFree")
}

// MemcpyToDevice copies length bytes from host memory to device memory.
func MemcpyToDevice(dst unsafe.Pointer, src unsafe.Pointer, length uintptr) error {
	return cudaCheck(C.cudaMemcpy(dst, src, C.size_t(length), C.cudaMemcpyHostToDevice), "cudaMemcpy(HtoD)")
}

// MemcpyFromDevice copies length bytes from device memory to host memory.
func MemcpyFromDevice(dst unsafe.Pointer, src unsafe.Pointer, length uintptr) error {
	return cudaCheck(C.cudaMemcpy(dst, src, C.size_t(length), C.cudaMemcpyDeviceToHost), "cudaMemcpy(DtoH)")
}

// ExportDMABuf exports a DMA-BUF file descriptor covering [base, base+length).
func ExportDMABuf(base unsafe.Pointer, length uintptr) (int, error) {
	var fd C.int = -1
	rc := C.cuMemGetHandleForAddressRange(unsafe.Pointer(&fd), C.CUdeviceptr(uintptr(base)), C.size_t(length),
		C.CU_MEM_RANGE_HANDLE_TYPE_DMA_BUF_FD, 0)
	if err := cuCheck(rc, "cuMemGetHandleForAddressRange"); err != nil {
		return -1, err
	}
	if fd < 0 {
		return -1, fmt.Errorf("cuMemGetHandleForAddressRange returned invalid fd")
	}
	return int(fd), nil
}
