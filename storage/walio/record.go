// Package walio implements the WAL insertion primitive genericxlog consumes
// (XLogBeginInsert/XLogRegisterBuffer/XLogRegisterBufData/XLogInsert), plus
// real on-disk framing: CRC-guarded fixed-size blocks and record
// fragmentation across blocks, repurposed from key/value record framing to
// block-reference + differential-data record framing.
package walio

import (
	"encoding/binary"
	"fmt"

	"pageengine/storage/page"
)

// BlockRef is one page's worth of a WAL record: either a forced full-page
// image, or a standard registration carrying the differential data attached
// via RegisterBufData.
type BlockRef struct {
	BlockID    int
	Location   page.BlockLocation
	ForceImage bool
	FullImage  page.Page
	Data       []byte
}

// Record is the on-disk WAL payload for one genericxlog.Finish call: a
// resource-manager id, an info byte, the block references it covers, and
// the LSN it was assigned on insertion (the same value stamped into every
// touched page, used at replay time to skip pages already past this
// record).
// Block-ids are walked in ascending order, matching the encoder's
// deterministic ordering guarantee.
type Record struct {
	ResourceManagerID uint8
	Info              uint8
	LSN               page.LSN
	Blocks            []BlockRef
}

// Serialize encodes r using fixed little-endian fields: length-prefixed
// strings, no assumed alignment.
func (r *Record) Serialize() []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, r.ResourceManagerID, r.Info, byte(len(r.Blocks)))
	var lsn [8]byte
	binary.LittleEndian.PutUint64(lsn[:], uint64(r.LSN))
	buf = append(buf, lsn[:]...)

	for _, b := range r.Blocks {
		var hdr [2]byte
		binary.LittleEndian.PutUint16(hdr[:], uint16(b.BlockID))
		buf = append(buf, hdr[:]...)

		flag := byte(0)
		if b.ForceImage {
			flag = 1
		}
		buf = append(buf, flag)

		var pathLen [2]byte
		binary.LittleEndian.PutUint16(pathLen[:], uint16(len(b.Location.FilePath)))
		buf = append(buf, pathLen[:]...)
		buf = append(buf, b.Location.FilePath...)

		var blockIdx [8]byte
		binary.LittleEndian.PutUint64(blockIdx[:], b.Location.BlockIndex)
		buf = append(buf, blockIdx[:]...)

		if b.ForceImage {
			buf = append(buf, b.FullImage[:]...)
		} else {
			var dataLen [4]byte
			binary.LittleEndian.PutUint32(dataLen[:], uint32(len(b.Data)))
			buf = append(buf, dataLen[:]...)
			buf = append(buf, b.Data...)
		}
	}
	return buf
}

// Deserialize reconstructs a Record from bytes written by Serialize.
func Deserialize(data []byte) (*Record, error) {
	if len(data) < 11 {
		return nil, fmt.Errorf("walio: record too short (%d bytes)", len(data))
	}
	r := &Record{ResourceManagerID: data[0], Info: data[1]}
	numBlocks := int(data[2])
	r.LSN = page.LSN(binary.LittleEndian.Uint64(data[3:11]))
	offset := 11

	for i := 0; i < numBlocks; i++ {
		if offset+2+1+2 > len(data) {
			return nil, fmt.Errorf("walio: truncated block header at block %d", i)
		}
		blockID := int(binary.LittleEndian.Uint16(data[offset : offset+2]))
		offset += 2
		forceImage := data[offset] == 1
		offset++
		pathLen := int(binary.LittleEndian.Uint16(data[offset : offset+2]))
		offset += 2

		if offset+pathLen+8 > len(data) {
			return nil, fmt.Errorf("walio: truncated location at block %d", i)
		}
		filePath := string(data[offset : offset+pathLen])
		offset += pathLen
		blockIndex := binary.LittleEndian.Uint64(data[offset : offset+8])
		offset += 8

		ref := BlockRef{
			BlockID:    blockID,
			Location:   page.BlockLocation{FilePath: filePath, BlockIndex: blockIndex},
			ForceImage: forceImage,
		}

		if forceImage {
			if offset+page.Size > len(data) {
				return nil, fmt.Errorf("walio: truncated full image at block %d", i)
			}
			copy(ref.FullImage[:], data[offset:offset+page.Size])
			offset += page.Size
		} else {
			if offset+4 > len(data) {
				return nil, fmt.Errorf("walio: truncated data length at block %d", i)
			}
			dataLen := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
			offset += 4
			if offset+dataLen > len(data) {
				return nil, fmt.Errorf("walio: truncated data at block %d", i)
			}
			ref.Data = append([]byte(nil), data[offset:offset+dataLen]...)
			offset += dataLen
		}

		r.Blocks = append(r.Blocks, ref)
	}

	return r, nil
}
