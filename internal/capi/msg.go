//go:build cgo

package capi

import "unsafe"

/*
#cgo pkg-config: libfabric
#include <string.h>
#include <sys/uio.h>
#include <rdma/fabric.h>
#include <rdma/fi_endpoint.h>

static ssize_t post_msg_recv(struct fid_ep *ep, void *buf, size_t len, void *desc, fi_addr_t src, void *context) {
	struct iovec iov;
	struct fi_msg msg;
	memset(&iov, 0, sizeof(iov));
	memset(&msg, 0, sizeof(msg));
	iov.iov_base = buf;
	iov.iov_len = len;
	msg.msg_iov = &iov;
	msg.desc = &desc;
	msg.iov_count = 1;
	msg.addr = src;
	msg.context = context;
	return fi_recvmsg(ep, &msg, 0);
}

static ssize_t post_msg_send(struct fid_ep *ep, void *buf, size_t len, void *desc, fi_addr_t dest, void *context) {
	struct iovec iov;
	struct fi_msg msg;
	memset(&iov, 0, sizeof(iov));
	memset(&msg, 0, sizeof(msg));
	iov.iov_base = buf;
	iov.iov_len = len;
	msg.msg_iov = &iov;
	msg.desc = &desc;
	msg.iov_count = 1;
	msg.addr = dest;
	msg.context = context;
	return fi_sendmsg(ep, &msg, 0);
}
*/
import "C"

// PostRecv posts a single receive descriptor accepting from src (FIAddrUnspec
// for any source). The context pointer comes back as the completion's
// op_context.
func (e *Endpoint) PostRecv(buf unsafe.Pointer, length uintptr, desc unsafe.Pointer, src FIAddr, context unsafe.Pointer) error {
	if e == nil || e.ptr == nil {
		return ErrUnavailable.WithOp("fi_recvmsg")
	}
	status := C.post_msg_recv(e.ptr, buf, C.size_t(length), desc, C.fi_addr_t(src), context)
	return ErrorFromStatus(int(status), "fi_recvmsg")
}

// PostSend posts a single send descriptor addressed to dest.
func (e *Endpoint) PostSend(buf unsafe.Pointer, length uintptr, desc unsafe.Pointer, dest FIAddr, context unsafe.Pointer) error {
	if e == nil || e.ptr == nil {
		return ErrUnavailable.WithOp("fi_sendmsg")
	}
	status := C.post_msg_send(e.ptr, buf, C.size_t(length), desc, C.fi_addr_t(dest), context)
	return ErrorFromStatus(int(status), "fi_sendmsg")
}
