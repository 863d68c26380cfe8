//go:build cgo

package capi

import "unsafe"

/*
#cgo pkg-config: libfabric
#include <stdlib.h>
#include <string.h>
#include <rdma/fabric.h>
#include <rdma/fi_domain.h>
#include <rdma/fi_endpoint.h>

static struct fi_info *info_index(struct fi_info *head, int n) {
	struct fi_info *cur = head;
	while (cur && n-- > 0) cur = cur->next;
	return cur;
}

static uint32_t pack_version(int major, int minor) {
	return FI_VERSION(major, minor);
}
*/
import "C"

// Version identifies a libfabric API version.
type Version struct {
	Major int
	Minor int
}

// BuildVersion returns the API version the bindings were compiled against.
func BuildVersion() Version {
	return Version{Major: int(C.FI_MAJOR_VERSION), Minor: int(C.FI_MINOR_VERSION)}
}

func (v Version) pack() C.uint32_t {
	return C.pack_version(C.int(v.Major), C.int(v.Minor))
}

// Info owns an fi_info list returned by fi_getinfo or fi_allocinfo.
type Info struct {
	ptr *C.struct_fi_info
}

// InfoEntry is a borrowed view of one fi_info descriptor. It remains valid
// while the owning Info is open.
type InfoEntry struct {
	ptr *C.struct_fi_info
}

// AllocInfo allocates an empty hints descriptor.
func AllocInfo() *Info {
	return &Info{ptr: C.fi_allocinfo()}
}

// Free releases the fi_info list.
func (i *Info) Free() {
	if i == nil || i.ptr == nil {
		return
	}
	C.fi_freeinfo(i.ptr)
	i.ptr = nil
}

// SetProvider filters discovery by provider name.
func (i *Info) SetProvider(name string) {
	if i == nil || i.ptr == nil || i.ptr.fabric_attr == nil {
		return
	}
	if i.ptr.fabric_attr.prov_name != nil {
		C.free(unsafe.Pointer(i.ptr.fabric_attr.prov_name))
	}
	i.ptr.fabric_attr.prov_name = C.CString(name)
}

// SetEndpointType requests a specific endpoint type.
func (i *Info) SetEndpointType(t EndpointType) {
	if i == nil || i.ptr == nil || i.ptr.ep_attr == nil {
		return
	}
	i.ptr.ep_attr._type = C.enum_fi_ep_type(t)
}

// SetCaps sets the required capability bits.
func (i *Info) SetCaps(caps uint64) {
	if i == nil || i.ptr == nil {
		return
	}
	i.ptr.caps = C.uint64_t(caps)
}

// SetMRMode sets the domain memory-registration mode bits.
func (i *Info) SetMRMode(mode uint64) {
	if i == nil || i.ptr == nil || i.ptr.domain_attr == nil {
		return
	}
	i.ptr.domain_attr.mr_mode = C.int(mode)
}

// GetInfo queries providers and returns the matching descriptor list.
func GetInfo(version Version, node, service string, flags uint64, hints *Info) (*Info, error) {
	var cNode, cService *C.char
	if node != "" {
		cNode = C.CString(node)
		defer C.free(unsafe.Pointer(cNode))
	}
	if service != "" {
		cService = C.CString(service)
		defer C.free(unsafe.Pointer(cService))
	}
	var hintsPtr *C.struct_fi_info
	if hints != nil {
		hintsPtr = hints.ptr
	}

	var out *C.struct_fi_info
	status := C.fi_getinfo(version.pack(), cNode, cService, C.uint64_t(flags), hintsPtr, &out)
	if err := ErrorFromStatus(int(status), "fi_getinfo"); err != nil {
		return nil, err
	}
	return &Info{ptr: out}, nil
}

// Entries returns borrowed views of every descriptor in the list.
func (i *Info) Entries() []InfoEntry {
	if i == nil || i.ptr == nil {
		return nil
	}
	var entries []InfoEntry
	for n := 0; ; n++ {
		cur := C.info_index(i.ptr, C.int(n))
		if cur == nil {
			break
		}
		entries = append(entries, InfoEntry{ptr: cur})
	}
	return entries
}

// ProviderName returns the provider that produced the entry.
func (e InfoEntry) ProviderName() string {
	if e.ptr == nil || e.ptr.fabric_attr == nil || e.ptr.fabric_attr.prov_name == nil {
		return ""
	}
	return C.GoString(e.ptr.fabric_attr.prov_name)
}

// FabricName returns the entry's fabric name.
func (e InfoEntry) FabricName() string {
	if e.ptr == nil || e.ptr.fabric_attr == nil || e.ptr.fabric_attr.name == nil {
		return ""
	}
	return C.GoString(e.ptr.fabric_attr.name)
}

// DomainName returns the entry's domain name.
func (e InfoEntry) DomainName() string {
	if e.ptr == nil || e.ptr.domain_attr == nil || e.ptr.domain_attr.name == nil {
		return ""
	}
	return C.GoString(e.ptr.domain_attr.name)
}

// Caps returns the entry's capability bits.
func (e InfoEntry) Caps() uint64 {
	if e.ptr == nil {
		return 0
	}
	return uint64(e.ptr.caps)
}

// EndpointKind returns the entry's endpoint type.
func (e InfoEntry) EndpointKind() EndpointType {
	if e.ptr == nil || e.ptr.ep_attr == nil {
		return EndpointTypeUnspec
	}
	return EndpointType(e.ptr.ep_attr._type)
}

// MRMode returns the domain's memory-registration mode bits.
func (e InfoEntry) MRMode() uint64 {
	if e.ptr == nil || e.ptr.domain_attr == nil {
		return 0
	}
	return uint64(e.ptr.domain_attr.mr_mode)
}
