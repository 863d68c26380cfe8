//go:build cgo

package capi

import "unsafe"

/*
#cgo pkg-config: libfabric
#include <stdlib.h>
#include <string.h>
*/
import "C"

// AllocBytes allocates C-managed memory that may be handed to the provider
// and must be released with FreeBytes.
func AllocBytes(size uintptr) unsafe.Pointer {
	if size == 0 {
		return nil
	}
	return C.malloc(C.size_t(size))
}

// FreeBytes releases memory obtained from AllocBytes.
func FreeBytes(ptr unsafe.Pointer) {
	if ptr != nil {
		C.free(ptr)
	}
}

// Memcpy copies length bytes between C-visible buffers.
func Memcpy(dst, src unsafe.Pointer, length uintptr) {
	if dst == nil || src == nil || length == 0 {
		return
	}
	C.memcpy(dst, src, C.size_t(length))
}

// ContextAlloc mints an opaque, address-stable token to hand to the provider
// as an operation context. The token carries no payload; completions are
// resolved back through the selector's registry.
func ContextAlloc() unsafe.Pointer {
	return C.malloc(1)
}

// ContextFree releases a token from ContextAlloc.
func ContextFree(ptr unsafe.Pointer) {
	if ptr != nil {
		C.free(ptr)
	}
}
