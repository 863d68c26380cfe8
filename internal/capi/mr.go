//go:build cgo

package capi

import "unsafe"

/*
#cgo pkg-config: libfabric
#include <string.h>
#include <rdma/fabric.h>
#include <rdma/fi_domain.h>

static int reg_host_mr(struct fid_domain *domain, void *base, size_t len, struct fid_mr **mr) {
	struct fi_mr_attr attr;
	struct iovec iov;
	memset(&attr, 0, sizeof(attr));
	memset(&iov, 0, sizeof(iov));
	iov.iov_base = base;
	iov.iov_len = len;
	attr.mr_iov = &iov;
	attr.iov_count = 1;
	attr.access = FI_SEND | FI_RECV;
	return fi_mr_regattr(domain, &attr, 0, mr);
}

static int reg_dmabuf_mr(struct fid_domain *domain, int fd, void *base, size_t len, int device, struct fid_mr **mr) {
	struct fi_mr_attr attr;
	struct fi_mr_dmabuf dmabuf;
	memset(&attr, 0, sizeof(attr));
	memset(&dmabuf, 0, sizeof(dmabuf));
	dmabuf.fd = fd;
	dmabuf.offset = 0;
	dmabuf.len = len;
	dmabuf.base_addr = base;
	attr.iov_count = 1;
	attr.access = FI_SEND | FI_RECV | FI_REMOTE_WRITE | FI_REMOTE_READ | FI_WRITE | FI_READ;
	attr.iface = FI_HMEM_CUDA;
	attr.device.cuda = device;
	attr.dmabuf = &dmabuf;
	return fi_mr_regattr(domain, &attr, FI_MR_DMABUF, mr);
}
*/
import "C"

// MemoryRegion wraps a fid_mr handle.
type MemoryRegion struct {
	ptr *C.struct_fid_mr
}

// RegisterHost registers a host memory range for send/receive.
func (d *Domain) RegisterHost(base unsafe.Pointer, length uintptr) (*MemoryRegion, error) {
	if d == nil || d.ptr == nil {
		return nil, ErrUnavailable.WithOp("fi_mr_regattr")
	}
	if base == nil || length == 0 {
		return nil, ErrInvalid.WithOp("fi_mr_regattr")
	}
	var mr *C.struct_fid_mr
	status := C.reg_host_mr(d.ptr, base, C.size_t(length), &mr)
	if err := ErrorFromStatus(int(status), "fi_mr_regattr"); err != nil {
		return nil, err
	}
	return &MemoryRegion{ptr: mr}, nil
}

// RegisterDMABuf registers a device memory range exported as a DMA-BUF file
// descriptor, with full local and remote RDMA access.
func (d *Domain) RegisterDMABuf(fd int, base unsafe.Pointer, length uintptr, device int) (*MemoryRegion, error) {
	if d == nil || d.ptr == nil {
		return nil, ErrUnavailable.WithOp("fi_mr_regattr(dmabuf)")
	}
	if fd < 0 || base == nil || length == 0 {
		return nil, ErrInvalid.WithOp("fi_mr_regattr(dmabuf)")
	}
	var mr *C.struct_fid_mr
	status := C.reg_dmabuf_mr(d.ptr, C.int(fd), base, C.size_t(length), C.int(device), &mr)
	if err := ErrorFromStatus(int(status), "fi_mr_regattr(dmabuf)"); err != nil {
		return nil, err
	}
	return &MemoryRegion{ptr: mr}, nil
}

// Close releases the memory region.
func (m *MemoryRegion) Close() error {
	if m == nil || m.ptr == nil {
		return nil
	}
	status := C.fi_close((*C.struct_fid)(unsafe.Pointer(m.ptr)))
	if err := ErrorFromStatus(int(status), "fi_close(mr)"); err != nil {
		return err
	}
	m.ptr = nil
	return nil
}

// Key returns the remote registration key.
func (m *MemoryRegion) Key() uint64 {
	if m == nil || m.ptr == nil {
		return 0
	}
	return uint64(C.fi_mr_key(m.ptr))
}

// Desc returns the local descriptor handed to posted operations.
func (m *MemoryRegion) Desc() unsafe.Pointer {
	if m == nil || m.ptr == nil {
		return nil
	}
	return C.fi_mr_desc(m.ptr)
}
