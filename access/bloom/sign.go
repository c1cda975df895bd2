package bloom

import (
	"encoding/binary"

	"pageengine/utils/seeded_hash"
)

// signValue sets BitsPerColumn[col] bits of sign for value, mirroring
// signValue in blutils.c. PostgreSQL reseeds libc's rand() with the column
// number and then the hashed value so different columns land in different
// bits even for equal values; here each bit gets its own deterministic seed
// derived from (col, bitIndex) instead, using a seeded-hash primitive so
// two indexes built from the same data always produce byte-identical
// signatures.
func signValue(opts Options, sign []byte, col int, value []byte) {
	totalBits := opts.SignWords * bitsPerSignWord
	bits := opts.BitsPerColumn[col]

	for j := 0; j < bits; j++ {
		seed := columnSeed(col, j)
		hash := seed.Hash(value)
		nBit := int(hash % uint64(totalBits))
		setBit(sign, nBit)
	}
}

func columnSeed(col, bitIndex int) seeded_hash.HashWithSeed {
	seed := make([]byte, 8)
	binary.LittleEndian.PutUint32(seed[0:4], uint32(col))
	binary.LittleEndian.PutUint32(seed[4:8], uint32(bitIndex))
	return seeded_hash.HashWithSeed{Seed: seed}
}

func setBit(sign []byte, bit int) {
	sign[bit/8] |= 1 << (uint(bit) % 8)
}

// buildSignature forms the full signature for a row's column values,
// skipping nulls exactly as BloomFormTuple does.
func buildSignature(opts Options, values [][]byte) []byte {
	sign := make([]byte, opts.signatureBytes())
	for i, v := range values {
		if v == nil {
			continue
		}
		signValue(opts, sign, i, v)
	}
	return sign
}
