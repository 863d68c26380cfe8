//go:build cgo

package capi

import "unsafe"

/*
#cgo pkg-config: libfabric
#include <string.h>
#include <sys/uio.h>
#include <rdma/fabric.h>
#include <rdma/fi_endpoint.h>
#include <rdma/fi_rma.h>

static ssize_t post_rma_write(struct fid_ep *ep, void *buf, size_t len, void *desc, fi_addr_t dest,
		uint64_t raddr, uint64_t rkey, uint64_t imm, void *context) {
	struct iovec iov;
	struct fi_rma_iov rma_iov;
	struct fi_msg_rma msg;
	uint64_t flags = 0;
	memset(&iov, 0, sizeof(iov));
	memset(&rma_iov, 0, sizeof(rma_iov));
	memset(&msg, 0, sizeof(msg));
	iov.iov_base = buf;
	iov.iov_len = len;
	rma_iov.addr = raddr;
	rma_iov.len = len;
	rma_iov.key = rkey;
	msg.msg_iov = &iov;
	msg.desc = &desc;
	msg.iov_count = 1;
	msg.addr = dest;
	msg.rma_iov = &rma_iov;
	msg.rma_iov_count = 1;
	msg.context = context;
	msg.data = imm;
	if (imm) flags |= FI_REMOTE_CQ_DATA;
	return fi_writemsg(ep, &msg, flags);
}
*/
import "C"

// PostWrite posts a one-sided RDMA write to (raddr, rkey) at dest. A non-zero
// imm sets FI_REMOTE_CQ_DATA so the value is delivered to the remote CQ as
// immediate data.
func (e *Endpoint) PostWrite(buf unsafe.Pointer, length uintptr, desc unsafe.Pointer, dest FIAddr, raddr, rkey uint64, imm uint32, context unsafe.Pointer) error {
	if e == nil || e.ptr == nil {
		return ErrUnavailable.WithOp("fi_writemsg")
	}
	status := C.post_rma_write(e.ptr, buf, C.size_t(length), desc, C.fi_addr_t(dest),
		C.uint64_t(raddr), C.uint64_t(rkey), C.uint64_t(imm), context)
	return ErrorFromStatus(int(status), "fi_writemsg")
}
