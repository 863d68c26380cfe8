package rdma

import (
	"testing"
	"unsafe"
)

func TestHostBufferAlignment(t *testing.T) {
	dom := newFakeDomain()
	alloc := newFakeAlloc()
	alloc.skew = 1 // force a misaligned raw base

	buf, err := NewHostBuffer(dom, alloc, 4096, 0)
	if err != nil {
		t.Fatalf("NewHostBuffer: %v", err)
	}
	defer buf.Close()

	if uintptr(buf.Base())%Align != 0 {
		t.Fatalf("base %p not aligned to %d", buf.Base(), Align)
	}
	if buf.Size() == 0 || buf.Size() > 4096 {
		t.Fatalf("usable size = %d, want within (0, 4096]", buf.Size())
	}
	if got := len(buf.Bytes()); got != int(buf.Size()) {
		t.Fatalf("Bytes length = %d, want %d", got, buf.Size())
	}
	region := buf.Region()
	if region == nil || region.Key() == 0 {
		t.Fatal("buffer has no registration")
	}
	fr := region.(*fakeRegion)
	if fr.base != buf.Base() || fr.length != buf.Size() {
		t.Fatalf("registered (%p, %d), want (%p, %d)", fr.base, fr.length, buf.Base(), buf.Size())
	}
}

func TestHostBufferRejectsTinySize(t *testing.T) {
	dom := newFakeDomain()
	alloc := newFakeAlloc()
	if _, err := NewHostBuffer(dom, alloc, Align, 0); err == nil {
		t.Fatal("NewHostBuffer accepted a size with no usable bytes")
	}
}

func TestHostBufferMultiDomainRegistration(t *testing.T) {
	dom1 := newFakeDomain()
	dom2 := newFakeDomain()
	alloc := newFakeAlloc()

	buf, err := NewHostBuffer(dom1, alloc, 4096, 0)
	if err != nil {
		t.Fatalf("NewHostBuffer: %v", err)
	}
	if err := buf.Register(dom2); err != nil {
		t.Fatalf("Register(dom2): %v", err)
	}
	if err := buf.Register(dom2); err != nil {
		t.Fatalf("re-Register(dom2): %v", err)
	}
	r1 := buf.RegionFor(dom1)
	r2 := buf.RegionFor(dom2)
	if r1 == nil || r2 == nil || r1 == r2 {
		t.Fatalf("per-domain regions = %v, %v, want two distinct registrations", r1, r2)
	}
	if err := buf.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !r1.(*fakeRegion).closed || !r2.(*fakeRegion).closed {
		t.Fatal("Close left a registration open")
	}
}

func TestBufferCloseOrdering(t *testing.T) {
	dom := newFakeDomain()
	alloc := newFakeAlloc()

	var events []string
	dom.onClose = func() { events = append(events, "deregister") }
	alloc.onFree = func() { events = append(events, "free") }

	buf, err := NewHostBuffer(dom, alloc, 1024, 0)
	if err != nil {
		t.Fatalf("NewHostBuffer: %v", err)
	}
	if err := buf.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(events) != 2 || events[0] != "deregister" || events[1] != "free" {
		t.Fatalf("close order = %v, want [deregister free]", events)
	}
}

func TestDeviceBufferRegistration(t *testing.T) {
	dom := newFakeDomain()

	buf, err := NewDeviceBuffer(dom, fakeDeviceAlloc{}, 1<<20, 0)
	if err != nil {
		t.Fatalf("NewDeviceBuffer: %v", err)
	}
	defer buf.Close()

	if buf.Kind() != Device {
		t.Fatalf("kind = %v, want Device", buf.Kind())
	}
	if uintptr(buf.Base())%Align != 0 {
		t.Fatalf("base %p not aligned to %d", buf.Base(), Align)
	}
	if buf.DMABufFD() < 0 {
		t.Fatal("device buffer has no DMA-BUF descriptor")
	}
	if buf.Device() != 0 {
		t.Fatalf("device index = %d, want 0", buf.Device())
	}
	if buf.Bytes() != nil {
		t.Fatal("device buffer exposed CPU-addressable bytes")
	}
	if err := buf.Register(dom); err == nil {
		t.Fatal("device buffer accepted multi-domain registration")
	}
}

func TestAlignUp(t *testing.T) {
	base := make([]byte, 256)
	for _, off := range []uintptr{0, 1, 64, 127} {
		p := unsafe.Pointer(&base[off])
		got := alignUp(p, 64)
		if uintptr(got)%64 != 0 {
			t.Fatalf("alignUp(%p) = %p, not 64-byte aligned", p, got)
		}
		if uintptr(got) < uintptr(p) || uintptr(got)-uintptr(p) >= 64 {
			t.Fatalf("alignUp(%p) = %p, moved by %d", p, got, uintptr(got)-uintptr(p))
		}
	}
}
