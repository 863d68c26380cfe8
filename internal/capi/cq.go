//go:build cgo

package capi

import "unsafe"

/*
#cgo pkg-config: libfabric
#include <rdma/fabric.h>
#include <rdma/fi_domain.h>
*/
import "C"

// CompletionQueue wraps a data-format fid_cq handle.
type CompletionQueue struct {
	ptr *C.struct_fid_cq
}

// DataEntry is one fi_cq_data_entry in Go form.
type DataEntry struct {
	Context unsafe.Pointer
	Flags   uint64
	Len     uint64
	Data    uint64
}

// ErrEntry is a drained fi_cq_err_entry.
type ErrEntry struct {
	Context     unsafe.Pointer
	Flags       uint64
	Len         uint64
	Data        uint64
	Err         Errno
	ProviderErr int
	Message     string
}

// OpenDataCQ opens a completion queue in FI_CQ_FORMAT_DATA on the domain.
func OpenDataCQ(domain *Domain, size int) (*CompletionQueue, error) {
	if domain == nil || domain.ptr == nil {
		return nil, ErrUnavailable.WithOp("fi_cq_open")
	}
	var attr C.struct_fi_cq_attr
	attr.format = C.FI_CQ_FORMAT_DATA
	attr.size = C.size_t(size)
	var cq *C.struct_fid_cq
	status := C.fi_cq_open(domain.ptr, &attr, &cq, nil)
	if err := ErrorFromStatus(int(status), "fi_cq_open"); err != nil {
		return nil, err
	}
	return &CompletionQueue{ptr: cq}, nil
}

// Close releases the completion queue.
func (c *CompletionQueue) Close() error {
	if c == nil || c.ptr == nil {
		return nil
	}
	status := C.fi_close((*C.struct_fid)(unsafe.Pointer(c.ptr)))
	if err := ErrorFromStatus(int(status), "fi_close(cq)"); err != nil {
		return err
	}
	c.ptr = nil
	return nil
}

// ReadData reads up to len(out) completions without blocking. It returns the
// number of entries written; ErrAgain when empty and ErrUnavailable when an
// error entry must be drained with ReadErr.
func (c *CompletionQueue) ReadData(out []DataEntry) (int, error) {
	if c == nil || c.ptr == nil {
		return 0, ErrUnavailable.WithOp("fi_cq_read")
	}
	if len(out) == 0 {
		return 0, nil
	}
	entries := make([]C.struct_fi_cq_data_entry, len(out))
	status := C.fi_cq_read(c.ptr, unsafe.Pointer(&entries[0]), C.size_t(len(entries)))
	if status < 0 {
		return 0, Errno(-status)
	}
	n := int(status)
	for i := 0; i < n; i++ {
		out[i] = DataEntry{
			Context: entries[i].op_context,
			Flags:   uint64(entries[i].flags),
			Len:     uint64(entries[i].len),
			Data:    uint64(entries[i].data),
		}
	}
	return n, nil
}

// ReadErr drains one error entry from the queue.
func (c *CompletionQueue) ReadErr() (*ErrEntry, error) {
	if c == nil || c.ptr == nil {
		return nil, ErrUnavailable.WithOp("fi_cq_readerr")
	}
	var entry C.struct_fi_cq_err_entry
	status := C.fi_cq_readerr(c.ptr, &entry, 0)
	if status < 0 {
		return nil, Errno(-status).WithOp("fi_cq_readerr")
	}
	if status == 0 {
		return nil, ErrAgain.WithOp("fi_cq_readerr")
	}
	msg := C.GoString(C.fi_cq_strerror(c.ptr, entry.prov_errno, entry.err_data, nil, 0))
	return &ErrEntry{
		Context:     entry.op_context,
		Flags:       uint64(entry.flags),
		Len:         uint64(entry.len),
		Data:        uint64(entry.data),
		Err:         Errno(entry.err),
		ProviderErr: int(entry.prov_errno),
		Message:     msg,
	}, nil
}
