package rdma

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
)

// RandomBytes fills n bytes (n must be a multiple of 8) from a PCG seeded
// with seed. Both sides of an RDMA exchange regenerate the same payload from
// the shared seed to verify transfers byte for byte.
func RandomBytes(seed uint64, n int) ([]byte, error) {
	if n <= 0 || n%8 != 0 {
		return nil, fmt.Errorf("rdma: random payload length %d must be a positive multiple of 8", n)
	}
	rng := rand.New(rand.NewPCG(seed, 0))
	buf := make([]byte, n)
	for i := 0; i < n; i += 8 {
		binary.LittleEndian.PutUint64(buf[i:], rng.Uint64())
	}
	return buf, nil
}
