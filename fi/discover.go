//go:build cgo

package fi

import (
	"fmt"

	"github.com/rocketbitz/efaloop/internal/capi"
)

// EndpointType re-exports capi.EndpointType for consumers of the public API.
type EndpointType = capi.EndpointType

const (
	EndpointTypeUnspec = capi.EndpointTypeUnspec
	EndpointTypeMsg    = capi.EndpointTypeMsg
	EndpointTypeDgram  = capi.EndpointTypeDgram
	EndpointTypeRDM    = capi.EndpointTypeRDM
)

// DiscoverOption adjusts discovery behavior.
type DiscoverOption func(*discoverConfig)

type discoverConfig struct {
	provider     string
	endpointType *EndpointType
	caps         *uint64
	mrMode       *uint64
}

func (c *discoverConfig) needsHints() bool {
	return c.provider != "" || c.endpointType != nil || c.caps != nil || c.mrMode != nil
}

func (c *discoverConfig) applyHints(info *capi.Info) {
	if c.provider != "" {
		info.SetProvider(c.provider)
	}
	if c.endpointType != nil {
		info.SetEndpointType(*c.endpointType)
	}
	if c.caps != nil {
		info.SetCaps(*c.caps)
	}
	if c.mrMode != nil {
		info.SetMRMode(*c.mrMode)
	}
}

// WithProvider filters discovery by provider name.
func WithProvider(provider string) DiscoverOption {
	return func(cfg *discoverConfig) {
		cfg.provider = provider
	}
}

// WithEndpointType requests descriptors for the specified endpoint type.
func WithEndpointType(ep EndpointType) DiscoverOption {
	return func(cfg *discoverConfig) {
		cfg.endpointType = new(EndpointType)
		*cfg.endpointType = ep
	}
}

// WithCaps sets the required capabilities bitmask.
func WithCaps(caps uint64) DiscoverOption {
	return func(cfg *discoverConfig) {
		cfg.caps = new(uint64)
		*cfg.caps = caps
	}
}

// WithMRMode sets the domain memory-registration mode bits requested from
// the provider.
func WithMRMode(mode uint64) DiscoverOption {
	return func(cfg *discoverConfig) {
		cfg.mrMode = new(uint64)
		*cfg.mrMode = mode
	}
}

// Discovery retains ownership of the underlying fi_info list so descriptors
// can be used to open resources. Call Close when done.
type Discovery struct {
	info *capi.Info
}

// Close releases the underlying fi_info resources.
func (d *Discovery) Close() {
	if d == nil || d.info == nil {
		return
	}
	d.info.Free()
	d.info = nil
}

// Descriptor snapshots a single fi_info entry. It is valid as long as the
// parent Discovery remains open.
type Descriptor struct {
	entry capi.InfoEntry
}

// Provider returns the provider name for the descriptor.
func (d Descriptor) Provider() string {
	return d.entry.ProviderName()
}

// Fabric returns the fabric name for the descriptor.
func (d Descriptor) Fabric() string {
	return d.entry.FabricName()
}

// Domain returns the domain name for the descriptor.
func (d Descriptor) Domain() string {
	return d.entry.DomainName()
}

// SupportsRDM indicates whether the entry describes a reliable datagram
// endpoint.
func (d Descriptor) SupportsRDM() bool {
	return d.entry.EndpointKind() == EndpointTypeRDM
}

// String renders a short provider identification.
func (d Descriptor) String() string {
	return fmt.Sprintf("provider=%s fabric=%s domain=%s", d.Provider(), d.Fabric(), d.Domain())
}

// Descriptors returns all entries within the discovery result.
func (d *Discovery) Descriptors() []Descriptor {
	if d == nil || d.info == nil {
		return nil
	}
	entries := d.info.Entries()
	res := make([]Descriptor, len(entries))
	for i, entry := range entries {
		res[i] = Descriptor{entry: entry}
	}
	return res
}

// Discover queries libfabric and returns a handle owning the matching
// descriptor list.
func Discover(opts ...DiscoverOption) (*Discovery, error) {
	var cfg discoverConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	var hints *capi.Info
	if cfg.needsHints() {
		hints = capi.AllocInfo()
		cfg.applyHints(hints)
		defer hints.Free()
	}

	list, err := capi.GetInfo(capi.BuildVersion(), "", "", 0, hints)
	if err != nil {
		return nil, err
	}
	return &Discovery{info: list}, nil
}

// DiscoverEFA queries for EFA reliable-datagram descriptors with the
// capability and registration modes the runtime depends on: messaging, RMA,
// and heterogeneous (GPU) memory.
func DiscoverEFA() (*Discovery, error) {
	return Discover(
		WithProvider("efa"),
		WithEndpointType(EndpointTypeRDM),
		WithCaps(capi.CapMsg|capi.CapRMA|capi.CapHMEM|capi.CapLocalComm|capi.CapRemoteComm),
		WithMRMode(capi.MRModeLocal|capi.MRModeHMEM|capi.MRModeVirtAddr|capi.MRModeAllocated|capi.MRModeProvKey),
	)
}
