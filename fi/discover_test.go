//go:build cgo

package fi

import (
	"testing"

	"github.com/rocketbitz/efaloop/aio"
	"github.com/rocketbitz/efaloop/internal/capi"
)

// TestCompletionFlagValues pins the pure-Go flag mirrors to the provider's
// authoritative values.
func TestCompletionFlagValues(t *testing.T) {
	cases := []struct {
		name string
		aio  uint64
		capi uint64
	}{
		{"read", aio.OpRead, capi.OpRead},
		{"write", aio.OpWrite, capi.OpWrite},
		{"recv", aio.OpRecv, capi.OpRecv},
		{"send", aio.OpSend, capi.OpSend},
		{"remote_read", aio.OpRemoteRead, capi.OpRemoteRead},
		{"remote_write", aio.OpRemoteWrite, capi.OpRemoteWrite},
	}
	for _, tc := range cases {
		if tc.aio != tc.capi {
			t.Errorf("flag %s: aio %#x != libfabric %#x", tc.name, tc.aio, tc.capi)
		}
	}
}

// TestDiscoverRDM verifies we can locate RDM-capable providers (best effort).
func TestDiscoverRDM(t *testing.T) {
	discovery, err := Discover(WithEndpointType(EndpointTypeRDM))
	if err != nil {
		t.Skipf("no RDM providers available: %v", err)
	}
	defer discovery.Close()

	for _, desc := range discovery.Descriptors() {
		if !desc.SupportsRDM() {
			continue
		}
		t.Logf("found %s", desc)
		return
	}
	t.Skip("no RDM-capable provider available")
}

// TestDiscoverEFA exercises the EFA hint set; it skips on hosts without EFA
// hardware.
func TestDiscoverEFA(t *testing.T) {
	discovery, err := DiscoverEFA()
	if err != nil {
		t.Skipf("EFA provider unavailable: %v", err)
	}
	defer discovery.Close()
	descs := discovery.Descriptors()
	if len(descs) == 0 {
		t.Skip("EFA discovery returned no descriptors")
	}
	t.Logf("EFA descriptors: %d, first: %s", len(descs), descs[0])
}
