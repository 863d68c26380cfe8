package rdma

import (
	"encoding/hex"
	"fmt"
)

// AddrToString hex-encodes the first AddrSize bytes of an endpoint address.
func AddrToString(addr []byte) string {
	if len(addr) > AddrSize {
		addr = addr[:AddrSize]
	}
	return hex.EncodeToString(addr)
}

// AddrFromString decodes a 64-hex-character endpoint address.
func AddrFromString(s string) ([]byte, error) {
	if len(s) != 2*AddrSize {
		return nil, fmt.Errorf("rdma: address string length %d, want %d", len(s), 2*AddrSize)
	}
	addr, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("rdma: decoding address: %w", err)
	}
	return addr, nil
}
