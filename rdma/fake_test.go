package rdma

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/rocketbitz/efaloop/aio"
)

// The fakes below implement the provider contracts in process memory so the
// connection layer can be driven without hardware: sends are copied between
// endpoints, RDMA writes resolve their remote key against the fake domain's
// registrations, and completions surface through per-endpoint sources.

type testSource struct {
	pending []aio.Completion
}

func (s *testSource) push(entries ...aio.Completion) {
	s.pending = append(s.pending, entries...)
}

func (s *testSource) ReadCompletions(out []aio.Completion) (int, error) {
	if len(s.pending) == 0 {
		return 0, aio.ErrAgain
	}
	n := copy(out, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *testSource) ReadError() (*aio.CompletionErr, error) {
	return nil, errors.New("no error entry pending")
}

type fakeAlloc struct {
	blocks map[unsafe.Pointer][]byte
	skew   uintptr
	freed  int
	onFree func()
}

func newFakeAlloc() *fakeAlloc {
	return &fakeAlloc{blocks: make(map[unsafe.Pointer][]byte)}
}

func (a *fakeAlloc) Alloc(size uintptr) (unsafe.Pointer, error) {
	b := make([]byte, size+a.skew)
	p := unsafe.Pointer(&b[a.skew])
	a.blocks[p] = b
	return p, nil
}

func (a *fakeAlloc) Free(p unsafe.Pointer) {
	if _, ok := a.blocks[p]; !ok {
		panic("free of unknown block")
	}
	delete(a.blocks, p)
	a.freed++
	if a.onFree != nil {
		a.onFree()
	}
}

type fakeRegion struct {
	base   unsafe.Pointer
	length uintptr
	key    uint64
	closed bool
	dom    *fakeDomain
}

func (r *fakeRegion) Desc() unsafe.Pointer { return r.base }
func (r *fakeRegion) Key() uint64          { return r.key }

func (r *fakeRegion) Close() error {
	if r.closed {
		return errors.New("region closed twice")
	}
	r.closed = true
	if r.dom.onClose != nil {
		r.dom.onClose()
	}
	return nil
}

type fakeDomain struct {
	nextKey uint64
	byKey   map[uint64]*fakeRegion
	onClose func()
}

func newFakeDomain() *fakeDomain {
	return &fakeDomain{nextKey: 1, byKey: make(map[uint64]*fakeRegion)}
}

func (d *fakeDomain) register(base unsafe.Pointer, length uintptr) (Region, error) {
	r := &fakeRegion{base: base, length: length, key: d.nextKey, dom: d}
	d.nextKey++
	d.byKey[r.key] = r
	return r, nil
}

func (d *fakeDomain) RegisterHost(base unsafe.Pointer, length uintptr) (Region, error) {
	return d.register(base, length)
}

func (d *fakeDomain) RegisterDevice(fd int, base unsafe.Pointer, length uintptr, device int) (Region, error) {
	return d.register(base, length)
}

// fakeDeviceMemory backs "device" memory with host bytes so tests can verify
// RDMA payloads directly.
type fakeDeviceMemory struct {
	buf  []byte
	base unsafe.Pointer
}

func (m *fakeDeviceMemory) Base() unsafe.Pointer { return m.base }
func (m *fakeDeviceMemory) Device() int          { return 0 }
func (m *fakeDeviceMemory) Free() error          { return nil }

func (m *fakeDeviceMemory) ExportDMABuf(base unsafe.Pointer, length uintptr) (int, error) {
	return 1000, nil
}

type fakeDeviceAlloc struct{}

func (fakeDeviceAlloc) Alloc(size uintptr) (DeviceMemory, error) {
	buf := make([]byte, size)
	return &fakeDeviceMemory{buf: buf, base: unsafe.Pointer(&buf[0])}, nil
}

type recvPost struct {
	base unsafe.Pointer
	n    uintptr
	ctx  uintptr
}

type fakeEndpoint struct {
	fab         *fakeFabric
	addr        Addr
	src         *testSource
	inbound     [][]byte
	recvs       []recvPost
	posts       int
	failSend    error
	misflagSend bool
}

type fakeFabric struct {
	dom    *fakeDomain
	eps    map[Addr]*fakeEndpoint
	tokens uintptr
}

func newFakeFabric() *fakeFabric {
	return &fakeFabric{dom: newFakeDomain(), eps: make(map[Addr]*fakeEndpoint)}
}

func (f *fakeFabric) endpoint(addr Addr) *fakeEndpoint {
	ep := &fakeEndpoint{fab: f, addr: addr, src: &testSource{}}
	f.eps[addr] = ep
	return ep
}

func (e *fakeEndpoint) NewContext() (uintptr, error) {
	e.fab.tokens++
	return e.fab.tokens, nil
}

func (e *fakeEndpoint) FreeContext(uintptr) {}

func (e *fakeEndpoint) matchInbound() {
	for len(e.inbound) > 0 && len(e.recvs) > 0 {
		msg := e.inbound[0]
		e.inbound = e.inbound[1:]
		post := e.recvs[0]
		e.recvs = e.recvs[1:]
		n := copy(unsafe.Slice((*byte)(post.base), post.n), msg)
		e.src.push(aio.Completion{Flags: aio.OpRecv, Len: uint64(n), Context: post.ctx})
	}
}

func (e *fakeEndpoint) PostRecv(base unsafe.Pointer, length uintptr, desc unsafe.Pointer, ctx uintptr) error {
	e.posts++
	e.recvs = append(e.recvs, recvPost{base: base, n: length, ctx: ctx})
	e.matchInbound()
	return nil
}

func (e *fakeEndpoint) PostSend(base unsafe.Pointer, length uintptr, desc unsafe.Pointer, dest Addr, ctx uintptr) error {
	e.posts++
	if e.failSend != nil {
		return e.failSend
	}
	peer, ok := e.fab.eps[dest]
	if !ok {
		return fmt.Errorf("unknown destination %d", dest)
	}
	msg := make([]byte, length)
	copy(msg, unsafe.Slice((*byte)(base), length))
	peer.inbound = append(peer.inbound, msg)
	peer.matchInbound()
	flags := aio.OpSend
	if e.misflagSend {
		flags = aio.OpRecv
	}
	e.src.push(aio.Completion{Flags: flags, Len: uint64(length), Context: ctx})
	return nil
}

func (e *fakeEndpoint) PostWrite(base unsafe.Pointer, length uintptr, desc unsafe.Pointer, dest Addr, raddr, rkey uint64, imm uint32, ctx uintptr) error {
	e.posts++
	peer, ok := e.fab.eps[dest]
	if !ok {
		return fmt.Errorf("unknown destination %d", dest)
	}
	region, ok := e.fab.dom.byKey[rkey]
	if !ok {
		return fmt.Errorf("unknown remote key %d", rkey)
	}
	offset := uintptr(raddr) - uintptr(region.base)
	if offset+length > region.length {
		return fmt.Errorf("write beyond region: offset %d length %d", offset, length)
	}
	dst := unsafe.Slice((*byte)(region.base), region.length)
	src := unsafe.Slice((*byte)(base), length)
	copy(dst[offset:], src)
	e.src.push(aio.Completion{Flags: aio.OpWrite, Len: uint64(length), Context: ctx})
	if imm != 0 {
		peer.src.push(aio.Completion{Flags: aio.OpRemoteWrite, Len: uint64(length), Data: uint64(imm)})
	}
	return nil
}
