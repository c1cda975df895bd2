package walio

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/pkg/errors"
)

// crcSize is the width, in bytes, of the checksum prefixed to each on-disk
// block.
const crcSize = 4

// errCorruptBlock is returned by checkBlockIntegrity on a checksum mismatch.
var errCorruptBlock = errors.New("walio: block failed integrity check")

// addCRCToBlockData computes the CRC32 of everything after the first
// crcSize bytes of block and stamps it into those leading bytes in place.
func addCRCToBlockData(block []byte) []byte {
	if len(block) < crcSize {
		return block
	}
	sum := crc32.ChecksumIEEE(block[crcSize:])
	binary.LittleEndian.PutUint32(block[:crcSize], sum)
	return block
}

// checkBlockIntegrity verifies block's stored CRC against its contents.
func checkBlockIntegrity(block []byte) error {
	if len(block) < crcSize {
		return errors.New("walio: block shorter than checksum width")
	}
	stored := binary.LittleEndian.Uint32(block[:crcSize])
	computed := crc32.ChecksumIEEE(block[crcSize:])
	if stored != computed {
		return errCorruptBlock
	}
	return nil
}
