//go:build cgo

package capi

import "unsafe"

/*
#cgo pkg-config: libfabric
#include <rdma/fabric.h>
#include <rdma/fi_domain.h>
*/
import "C"

// AV wraps a fid_av handle.
type AV struct {
	ptr *C.struct_fid_av
}

// OpenAV opens an address vector with provider defaults.
func OpenAV(domain *Domain) (*AV, error) {
	if domain == nil || domain.ptr == nil {
		return nil, ErrUnavailable.WithOp("fi_av_open")
	}
	var attr C.struct_fi_av_attr
	var av *C.struct_fid_av
	status := C.fi_av_open(domain.ptr, &attr, &av, nil)
	if err := ErrorFromStatus(int(status), "fi_av_open"); err != nil {
		return nil, err
	}
	return &AV{ptr: av}, nil
}

// Close releases the address vector.
func (a *AV) Close() error {
	if a == nil || a.ptr == nil {
		return nil
	}
	status := C.fi_close((*C.struct_fid)(unsafe.Pointer(a.ptr)))
	if err := ErrorFromStatus(int(status), "fi_close(av)"); err != nil {
		return err
	}
	a.ptr = nil
	return nil
}

// InsertRaw inserts one provider-specific address blob and returns the
// assigned fi_addr_t.
func (a *AV) InsertRaw(addr []byte) (FIAddr, error) {
	if a == nil || a.ptr == nil {
		return 0, ErrUnavailable.WithOp("fi_av_insert")
	}
	if len(addr) == 0 {
		return 0, ErrInvalid.WithOp("fi_av_insert")
	}
	buf := AllocBytes(uintptr(len(addr)))
	if buf == nil {
		return 0, ErrNoMemory.WithOp("fi_av_insert")
	}
	defer FreeBytes(buf)
	Memcpy(buf, unsafe.Pointer(&addr[0]), uintptr(len(addr)))

	var fiAddr C.fi_addr_t
	status := C.fi_av_insert(a.ptr, buf, 1, &fiAddr, 0, nil)
	if err := ErrorFromStatus(int(status), "fi_av_insert"); err != nil {
		return 0, err
	}
	if int(status) != 1 {
		return 0, ErrOther.WithOp("fi_av_insert")
	}
	return FIAddr(fiAddr), nil
}
