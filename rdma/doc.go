// Package rdma provides the connection layer of the runtime: fabric-registered
// host and device buffers, and peer connections exposing message send/receive
// and one-sided RDMA write / read-notify as suspendable tasks on an aio.Loop.
//
// The package is provider-agnostic: it drives the fabric through the small
// Domain, Transport, and allocator contracts, which the efa package satisfies
// with real libfabric and CUDA handles and tests satisfy with in-memory fakes.
package rdma
