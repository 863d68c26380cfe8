//go:build cgo

// Package fi wraps the libfabric resources the runtime drives: fabrics,
// domains, reliable-datagram endpoints, data-format completion queues,
// address vectors, and memory registrations. The aio and rdma packages stay
// provider-agnostic; this package is where their contracts meet libfabric.
package fi

import (
	"errors"
	"unsafe"

	"github.com/rocketbitz/efaloop/aio"
	"github.com/rocketbitz/efaloop/internal/capi"
	"github.com/rocketbitz/efaloop/rdma"
)

// Address represents an fi_addr_t assigned by the provider.
type Address = capi.FIAddr

// AddressUnspecified accepts or targets any peer.
const AddressUnspecified = Address(capi.FIAddrUnspec)

// Fabric wraps a fid_fabric handle.
type Fabric struct {
	handle *capi.Fabric
}

// Close releases the underlying fabric handle.
func (f *Fabric) Close() error {
	if f == nil || f.handle == nil {
		return nil
	}
	err := f.handle.Close()
	f.handle = nil
	return err
}

// Domain wraps a fid_domain handle.
type Domain struct {
	handle *capi.Domain
}

// Close releases the underlying domain handle.
func (d *Domain) Close() error {
	if d == nil || d.handle == nil {
		return nil
	}
	err := d.handle.Close()
	d.handle = nil
	return err
}

// OpenFabric opens a fabric for the descriptor.
func (d Descriptor) OpenFabric() (*Fabric, error) {
	fabric, err := capi.OpenFabric(d.entry)
	if err != nil {
		return nil, err
	}
	return &Fabric{handle: fabric}, nil
}

// OpenDomain opens a domain associated with the provided fabric and
// descriptor.
func (d Descriptor) OpenDomain(fabric *Fabric) (*Domain, error) {
	if fabric == nil || fabric.handle == nil {
		return nil, ErrInvalidHandle{"fabric"}
	}
	dom, err := capi.OpenDomain(fabric.handle, d.entry)
	if err != nil {
		return nil, err
	}
	return &Domain{handle: dom}, nil
}

// OpenEndpoint opens an endpoint on the domain using the descriptor.
func (d Descriptor) OpenEndpoint(domain *Domain) (*Endpoint, error) {
	if domain == nil || domain.handle == nil {
		return nil, ErrInvalidHandle{"domain"}
	}
	ep, err := capi.OpenEndpoint(domain.handle, d.entry)
	if err != nil {
		return nil, err
	}
	return &Endpoint{handle: ep, ctxs: make(map[uintptr]unsafe.Pointer)}, nil
}

// Endpoint wraps a fid_ep handle and doubles as the connection layer's
// transport: posted operations carry context tokens minted from C memory so
// their addresses survive the cgo boundary.
type Endpoint struct {
	handle *capi.Endpoint
	ctxs   map[uintptr]unsafe.Pointer
}

var (
	_ rdma.Transport       = (*Endpoint)(nil)
	_ aio.CompletionSource = (*CompletionQueue)(nil)
)

// Close releases the endpoint.
func (e *Endpoint) Close() error {
	if e == nil || e.handle == nil {
		return nil
	}
	err := e.handle.Close()
	e.handle = nil
	return err
}

// BindCompletionQueue binds the endpoint to the CQ for transmit and receive
// completions.
func (e *Endpoint) BindCompletionQueue(cq *CompletionQueue) error {
	if e == nil || e.handle == nil {
		return ErrInvalidHandle{"endpoint"}
	}
	if cq == nil || cq.handle == nil {
		return ErrInvalidHandle{"completion queue"}
	}
	return e.handle.BindCompletionQueue(cq.handle, capi.BindSend|capi.BindRecv)
}

// BindAddressVector binds the endpoint to the address vector.
func (e *Endpoint) BindAddressVector(av *AddressVector) error {
	if e == nil || e.handle == nil {
		return ErrInvalidHandle{"endpoint"}
	}
	if av == nil || av.handle == nil {
		return ErrInvalidHandle{"address vector"}
	}
	return e.handle.BindAddressVector(av.handle, 0)
}

// Enable transitions the endpoint into an active state.
func (e *Endpoint) Enable() error {
	if e == nil || e.handle == nil {
		return ErrInvalidHandle{"endpoint"}
	}
	return e.handle.Enable()
}

// Name reads the endpoint's provider address into buf.
func (e *Endpoint) Name(buf []byte) (int, error) {
	if e == nil || e.handle == nil {
		return 0, ErrInvalidHandle{"endpoint"}
	}
	return e.handle.Name(buf)
}

// NewContext mints an address-stable operation context token backed by a C
// allocation, so the value handed to the provider never references Go memory.
func (e *Endpoint) NewContext() (uintptr, error) {
	ptr := capi.ContextAlloc()
	if ptr == nil {
		return 0, errors.New("fi: unable to allocate operation context")
	}
	token := uintptr(ptr)
	e.ctxs[token] = ptr
	return token, nil
}

// FreeContext releases a token from NewContext.
func (e *Endpoint) FreeContext(token uintptr) {
	if ptr, ok := e.ctxs[token]; ok {
		delete(e.ctxs, token)
		capi.ContextFree(ptr)
	}
}

func (e *Endpoint) tokenPointer(token uintptr) unsafe.Pointer {
	return e.ctxs[token]
}

// PostRecv posts a receive descriptor accepting from any source.
func (e *Endpoint) PostRecv(base unsafe.Pointer, length uintptr, desc unsafe.Pointer, ctx uintptr) error {
	if e == nil || e.handle == nil {
		return ErrInvalidHandle{"endpoint"}
	}
	return e.handle.PostRecv(base, length, desc, capi.FIAddrUnspec, e.tokenPointer(ctx))
}

// PostSend posts a send descriptor addressed to dest.
func (e *Endpoint) PostSend(base unsafe.Pointer, length uintptr, desc unsafe.Pointer, dest rdma.Addr, ctx uintptr) error {
	if e == nil || e.handle == nil {
		return ErrInvalidHandle{"endpoint"}
	}
	return e.handle.PostSend(base, length, desc, capi.FIAddr(dest), e.tokenPointer(ctx))
}

// PostWrite posts a one-sided RDMA write with optional immediate data.
func (e *Endpoint) PostWrite(base unsafe.Pointer, length uintptr, desc unsafe.Pointer, dest rdma.Addr, raddr, rkey uint64, imm uint32, ctx uintptr) error {
	if e == nil || e.handle == nil {
		return ErrInvalidHandle{"endpoint"}
	}
	return e.handle.PostWrite(base, length, desc, capi.FIAddr(dest), raddr, rkey, imm, e.tokenPointer(ctx))
}

// AddressVector wraps a fid_av handle.
type AddressVector struct {
	handle *capi.AV
}

// OpenAddressVector opens an address vector on the domain.
func (d *Domain) OpenAddressVector() (*AddressVector, error) {
	if d == nil || d.handle == nil {
		return nil, ErrInvalidHandle{"domain"}
	}
	handle, err := capi.OpenAV(d.handle)
	if err != nil {
		return nil, err
	}
	return &AddressVector{handle: handle}, nil
}

// Close releases the AV handle.
func (a *AddressVector) Close() error {
	if a == nil || a.handle == nil {
		return nil
	}
	err := a.handle.Close()
	a.handle = nil
	return err
}

// InsertRaw inserts a provider-specific address blob and returns the assigned
// address.
func (a *AddressVector) InsertRaw(addr []byte) (Address, error) {
	if a == nil || a.handle == nil {
		return 0, ErrInvalidHandle{"address vector"}
	}
	return a.handle.InsertRaw(addr)
}

// CompletionQueue wraps a data-format fid_cq handle and adapts it to the
// selector's completion-source contract.
type CompletionQueue struct {
	handle  *capi.CompletionQueue
	scratch []capi.DataEntry
}

// OpenCompletionQueue opens a data-format CQ sized for the selector's batch
// reads.
func (d *Domain) OpenCompletionQueue(size int) (*CompletionQueue, error) {
	if d == nil || d.handle == nil {
		return nil, ErrInvalidHandle{"domain"}
	}
	handle, err := capi.OpenDataCQ(d.handle, size)
	if err != nil {
		return nil, err
	}
	return &CompletionQueue{handle: handle}, nil
}

// Close releases the completion queue.
func (c *CompletionQueue) Close() error {
	if c == nil || c.handle == nil {
		return nil
	}
	err := c.handle.Close()
	c.handle = nil
	return err
}

// ReadCompletions implements aio.CompletionSource over fi_cq_read.
func (c *CompletionQueue) ReadCompletions(out []aio.Completion) (int, error) {
	if c == nil || c.handle == nil {
		return 0, ErrInvalidHandle{"completion queue"}
	}
	if len(c.scratch) < len(out) {
		c.scratch = make([]capi.DataEntry, len(out))
	}
	entries := c.scratch[:len(out)]
	n, err := c.handle.ReadData(entries)
	if err != nil {
		switch {
		case errors.Is(err, capi.ErrAgain):
			return 0, aio.ErrAgain
		case errors.Is(err, capi.ErrUnavailable):
			return 0, aio.ErrAvail
		default:
			return 0, err
		}
	}
	for i := 0; i < n; i++ {
		out[i] = aio.Completion{
			Flags:   entries[i].Flags,
			Len:     entries[i].Len,
			Data:    entries[i].Data,
			Context: uintptr(entries[i].Context),
		}
	}
	return n, nil
}

// ReadError implements aio.CompletionSource by draining one error entry.
func (c *CompletionQueue) ReadError() (*aio.CompletionErr, error) {
	if c == nil || c.handle == nil {
		return nil, ErrInvalidHandle{"completion queue"}
	}
	entry, err := c.handle.ReadErr()
	if err != nil {
		return nil, err
	}
	return &aio.CompletionErr{
		Context:     uintptr(entry.Context),
		Flags:       entry.Flags,
		Len:         entry.Len,
		Data:        entry.Data,
		Errno:       int(entry.Err),
		ProviderErr: entry.ProviderErr,
		Message:     entry.Message,
	}, nil
}
