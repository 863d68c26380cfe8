package rdma

import "testing"

func TestMessageRoundTrip(t *testing.T) {
	msg := &Message{
		Rank: 1,
		Seed: 0x123456789,
		Regions: []CUDARegion{
			{Addr: 0xdeadbeef000, Size: 1 << 30, Key: 77},
		},
	}
	buf := make([]byte, msg.EncodedSize())
	n, err := msg.Encode(buf)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if n != MessageSize(1) {
		t.Fatalf("encoded %d bytes, want %d", n, MessageSize(1))
	}

	got, err := DecodeMessage(buf)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if got.Rank != msg.Rank || got.Seed != msg.Seed {
		t.Fatalf("decoded header rank=%d seed=%#x, want rank=%d seed=%#x", got.Rank, got.Seed, msg.Rank, msg.Seed)
	}
	if len(got.Regions) != 1 || got.Regions[0] != msg.Regions[0] {
		t.Fatalf("decoded regions %+v, want %+v", got.Regions, msg.Regions)
	}
}

func TestMessageEncodeShortBuffer(t *testing.T) {
	msg := &Message{Rank: 0, Regions: make([]CUDARegion, 2)}
	if _, err := msg.Encode(make([]byte, MessageSize(1))); err == nil {
		t.Fatal("Encode accepted a short buffer")
	}
}

func TestDecodeMessageLengthMismatch(t *testing.T) {
	msg := &Message{Rank: 3, Regions: make([]CUDARegion, 2)}
	buf := make([]byte, msg.EncodedSize())
	if _, err := msg.Encode(buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := DecodeMessage(buf[:len(buf)-1]); err == nil {
		t.Fatal("DecodeMessage accepted a truncated frame")
	}
	if _, err := DecodeMessage(buf[:8]); err == nil {
		t.Fatal("DecodeMessage accepted a frame shorter than the header")
	}
}

func TestRandomBytesDeterministic(t *testing.T) {
	a, err := RandomBytes(42, 64)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	b, err := RandomBytes(42, 64)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	if string(a) != string(b) {
		t.Fatal("same seed produced different payloads")
	}
	c, err := RandomBytes(43, 64)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	if string(a) == string(c) {
		t.Fatal("different seeds produced identical payloads")
	}
}

func TestRandomBytesValidatesLength(t *testing.T) {
	for _, n := range []int{0, -8, 7, 12} {
		if _, err := RandomBytes(1, n); err == nil {
			t.Fatalf("RandomBytes accepted length %d", n)
		}
	}
}

func TestAddrRoundTrip(t *testing.T) {
	addr := make([]byte, MaxAddrSize)
	for i := range addr {
		addr[i] = byte(i * 7)
	}
	s := AddrToString(addr)
	if len(s) != 2*AddrSize {
		t.Fatalf("encoded length = %d, want %d", len(s), 2*AddrSize)
	}
	back, err := AddrFromString(s)
	if err != nil {
		t.Fatalf("AddrFromString: %v", err)
	}
	if string(back) != string(addr[:AddrSize]) {
		t.Fatal("address round trip mismatch")
	}
}

func TestAddrFromStringRejectsBadInput(t *testing.T) {
	if _, err := AddrFromString("abc"); err == nil {
		t.Fatal("short string accepted")
	}
	bad := make([]byte, 2*AddrSize)
	for i := range bad {
		bad[i] = 'z'
	}
	if _, err := AddrFromString(string(bad)); err == nil {
		t.Fatal("non-hex string accepted")
	}
}
