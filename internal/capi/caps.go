//go:build cgo

package capi

/*
#cgo pkg-config: libfabric
#include <rdma/fabric.h>
*/
import "C"

// Capability and mode bits the runtime requests from providers.
const (
	CapMsg        = uint64(C.FI_MSG)
	CapRMA        = uint64(C.FI_RMA)
	CapHMEM       = uint64(C.FI_HMEM)
	CapLocalComm  = uint64(C.FI_LOCAL_COMM)
	CapRemoteComm = uint64(C.FI_REMOTE_COMM)
)

// Completion flag bits carried on CQ entries.
const (
	OpRead        = uint64(C.FI_READ)
	OpWrite       = uint64(C.FI_WRITE)
	OpRecv        = uint64(C.FI_RECV)
	OpSend        = uint64(C.FI_SEND)
	OpRemoteRead  = uint64(C.FI_REMOTE_READ)
	OpRemoteWrite = uint64(C.FI_REMOTE_WRITE)
)

// Memory registration mode bits the EFA provider requires.
const (
	MRModeLocal     = uint64(C.FI_MR_LOCAL)
	MRModeHMEM      = uint64(C.FI_MR_HMEM)
	MRModeVirtAddr  = uint64(C.FI_MR_VIRT_ADDR)
	MRModeAllocated = uint64(C.FI_MR_ALLOCATED)
	MRModeProvKey   = uint64(C.FI_MR_PROV_KEY)
)

// EndpointType mirrors fi_ep_type.
type EndpointType int

const (
	EndpointTypeUnspec EndpointType = EndpointType(C.FI_EP_UNSPEC)
	EndpointTypeMsg    EndpointType = EndpointType(C.FI_EP_MSG)
	EndpointTypeDgram  EndpointType = EndpointType(C.FI_EP_DGRAM)
	EndpointTypeRDM    EndpointType = EndpointType(C.FI_EP_RDM)
)

// FIAddr mirrors fi_addr_t.
type FIAddr uint64

// FIAddrUnspec is the wildcard source/destination address.
const FIAddrUnspec = FIAddr(C.FI_ADDR_UNSPEC)

// BindSend and BindRecv are the endpoint-to-CQ bind flags.
const (
	BindSend = uint64(C.FI_SEND)
	BindRecv = uint64(C.FI_RECV)
)
