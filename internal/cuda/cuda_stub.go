//go:build !cuda

package cuda

import (
	"errors"
	"unsafe"
)

// ErrUnsupported indicates the binary was built without the cuda tag.
var ErrUnsupported = errors.New("cuda: built without cuda support")

func SetDevice(int) error { return ErrUnsupported }

func Malloc(uintptr) (unsafe.Pointer, int, error) { return nil, -1, ErrUnsupported }

func Free(unsafe.Pointer) error { return ErrUnsupported }

func ExportDMABuf(unsafe.Pointer, uintptr) (int, error) { return -1, ErrUnsupported }

func MemcpyToDevice(unsafe.Pointer, unsafe.Pointer, uintptr) error { return ErrUnsupported }

func MemcpyFromDevice(unsafe.Pointer, unsafe.Pointer, uintptr) error { return ErrUnsupported }
