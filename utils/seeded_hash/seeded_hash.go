// Package seeded_hash provides a keyed byte-hash: the same primitive the
// bloom access method uses to turn a (column, bit-index) pair into a
// deterministic signature bit.
package seeded_hash

import (
	"crypto/md5"
	"encoding/binary"
)

// HashWithSeed hashes data under a fixed seed, so the same seed always maps
// the same input to the same output while distinct seeds decorrelate it.
type HashWithSeed struct {
	Seed []byte
}

// Hash returns a 64-bit digest of data under h's seed.
func (h HashWithSeed) Hash(data []byte) uint64 {
	fn := md5.New()
	fn.Write(data)
	fn.Write(h.Seed)
	return binary.BigEndian.Uint64(fn.Sum(nil))
}
