//go:build cgo

package capi

import "unsafe"

/*
#cgo pkg-config: libfabric
#include <rdma/fabric.h>
#include <rdma/fi_cm.h>
#include <rdma/fi_domain.h>
#include <rdma/fi_endpoint.h>
*/
import "C"

// Endpoint wraps a fid_ep handle.
type Endpoint struct {
	ptr *C.struct_fid_ep
}

// OpenEndpoint opens an endpoint on the domain using the descriptor entry.
func OpenEndpoint(domain *Domain, entry InfoEntry) (*Endpoint, error) {
	if domain == nil || domain.ptr == nil || entry.ptr == nil {
		return nil, ErrUnavailable.WithOp("fi_endpoint")
	}
	var ep *C.struct_fid_ep
	status := C.fi_endpoint(domain.ptr, entry.ptr, &ep, nil)
	if err := ErrorFromStatus(int(status), "fi_endpoint"); err != nil {
		return nil, err
	}
	return &Endpoint{ptr: ep}, nil
}

// Close releases the endpoint.
func (e *Endpoint) Close() error {
	if e == nil || e.ptr == nil {
		return nil
	}
	status := C.fi_close((*C.struct_fid)(unsafe.Pointer(e.ptr)))
	if err := ErrorFromStatus(int(status), "fi_close(endpoint)"); err != nil {
		return err
	}
	e.ptr = nil
	return nil
}

// BindCompletionQueue binds the endpoint to the completion queue with the
// given flags (BindSend | BindRecv).
func (e *Endpoint) BindCompletionQueue(cq *CompletionQueue, flags uint64) error {
	if e == nil || e.ptr == nil || cq == nil || cq.ptr == nil {
		return ErrUnavailable.WithOp("fi_ep_bind(cq)")
	}
	status := C.fi_ep_bind(e.ptr, (*C.struct_fid)(unsafe.Pointer(cq.ptr)), C.uint64_t(flags))
	return ErrorFromStatus(int(status), "fi_ep_bind(cq)")
}

// BindAddressVector binds the endpoint to the address vector.
func (e *Endpoint) BindAddressVector(av *AV, flags uint64) error {
	if e == nil || e.ptr == nil || av == nil || av.ptr == nil {
		return ErrUnavailable.WithOp("fi_ep_bind(av)")
	}
	status := C.fi_ep_bind(e.ptr, (*C.struct_fid)(unsafe.Pointer(av.ptr)), C.uint64_t(flags))
	return ErrorFromStatus(int(status), "fi_ep_bind(av)")
}

// Enable transitions the endpoint into an active state.
func (e *Endpoint) Enable() error {
	if e == nil || e.ptr == nil {
		return ErrUnavailable.WithOp("fi_enable")
	}
	status := C.fi_enable(e.ptr)
	return ErrorFromStatus(int(status), "fi_enable")
}

// Name reads the endpoint's provider address into buf and returns the number
// of significant bytes.
func (e *Endpoint) Name(buf []byte) (int, error) {
	if e == nil || e.ptr == nil {
		return 0, ErrUnavailable.WithOp("fi_getname")
	}
	if len(buf) == 0 {
		return 0, ErrInvalid.WithOp("fi_getname")
	}
	length := C.size_t(len(buf))
	status := C.fi_getname((*C.struct_fid)(unsafe.Pointer(e.ptr)), unsafe.Pointer(&buf[0]), &length)
	if err := ErrorFromStatus(int(status), "fi_getname"); err != nil {
		return 0, err
	}
	return int(length), nil
}
