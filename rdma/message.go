package rdma

import (
	"encoding/binary"
	"fmt"
)

// CUDARegion advertises one remotely writable device region: its virtual
// address, length, and the registration key peers pass to RDMA writes.
type CUDARegion struct {
	Addr uint64
	Size uint64
	Key  uint64
}

// Message is the handshake frame exchanged before RDMA traffic: the sender's
// rank, a payload seed, and the device regions it exposes.
type Message struct {
	Rank    int32
	Seed    uint64
	Regions []CUDARegion
}

// Wire layout matches the C struct {int32 rank; pad; uint64 num; uint64 seed}
// followed by num packed {addr, size, key} triples, little-endian.
const (
	messageHeaderSize = 24
	regionSize        = 24
)

// MessageSize returns the encoded size of a message carrying n regions.
func MessageSize(n int) int {
	return messageHeaderSize + n*regionSize
}

// EncodedSize returns the message's encoded size in bytes.
func (m *Message) EncodedSize() int {
	return MessageSize(len(m.Regions))
}

// Encode writes the message into buf and returns the number of bytes written.
func (m *Message) Encode(buf []byte) (int, error) {
	need := m.EncodedSize()
	if len(buf) < need {
		return 0, fmt.Errorf("rdma: encode buffer %d bytes, message needs %d", len(buf), need)
	}
	binary.LittleEndian.PutUint32(buf[0:], uint32(m.Rank))
	binary.LittleEndian.PutUint32(buf[4:], 0)
	binary.LittleEndian.PutUint64(buf[8:], uint64(len(m.Regions)))
	binary.LittleEndian.PutUint64(buf[16:], m.Seed)
	off := messageHeaderSize
	for _, r := range m.Regions {
		binary.LittleEndian.PutUint64(buf[off:], r.Addr)
		binary.LittleEndian.PutUint64(buf[off+8:], r.Size)
		binary.LittleEndian.PutUint64(buf[off+16:], r.Key)
		off += regionSize
	}
	return need, nil
}

// DecodeMessage parses a message from buf. The buffer must contain exactly
// the encoded frame.
func DecodeMessage(buf []byte) (*Message, error) {
	if len(buf) < messageHeaderSize {
		return nil, fmt.Errorf("rdma: message frame %d bytes, header needs %d", len(buf), messageHeaderSize)
	}
	m := &Message{
		Rank: int32(binary.LittleEndian.Uint32(buf[0:])),
		Seed: binary.LittleEndian.Uint64(buf[16:]),
	}
	num := binary.LittleEndian.Uint64(buf[8:])
	if want := MessageSize(int(num)); len(buf) != want {
		return nil, fmt.Errorf("rdma: message frame %d bytes, want %d for %d regions", len(buf), want, num)
	}
	m.Regions = make([]CUDARegion, num)
	off := messageHeaderSize
	for i := range m.Regions {
		m.Regions[i] = CUDARegion{
			Addr: binary.LittleEndian.Uint64(buf[off:]),
			Size: binary.LittleEndian.Uint64(buf[off+8:]),
			Key:  binary.LittleEndian.Uint64(buf[off+16:]),
		}
		off += regionSize
	}
	return m, nil
}
