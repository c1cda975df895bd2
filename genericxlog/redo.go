package genericxlog

import (
	"encoding/binary"
	"fmt"

	"pageengine/storage/page"
)

// ApplyRedo reconstructs the post-image of a page by replaying a
// differential instruction stream (as produced by encode) against its
// pre-image. Every COPY instruction writes its literal payload at the
// cursor; every MOVE instruction copies length bytes from the pre-image
// starting at its encoded source offset. Mirrors applyPageRedo.
//
// Any malformed stream (truncated header, length running past BlockSize, a
// MOVE source out of range) is a corruption condition — class 3 in the
// error model, fatal to the recovering process, never silently tolerated.
func ApplyRedo(dst *page.Page, pre *page.Page, data []byte) error {
	cursor := 0
	offset := 0

	for offset < len(data) {
		if offset+2 > len(data) {
			return fmt.Errorf("genericxlog: truncated instruction header at offset %d", offset)
		}
		lengthField := binary.LittleEndian.Uint16(data[offset : offset+2])
		offset += 2
		length := int(lengthField & lengthMask)

		if cursor+length > BlockSize {
			return fmt.Errorf("genericxlog: instruction at offset %d overruns page (cursor=%d, length=%d)", offset, cursor, length)
		}

		if lengthField&moveFlag != 0 {
			if offset+2 > len(data) {
				return fmt.Errorf("genericxlog: truncated move source at offset %d", offset)
			}
			source := int(binary.LittleEndian.Uint16(data[offset : offset+2]))
			offset += 2
			if source+length > BlockSize {
				return fmt.Errorf("genericxlog: move source %d+%d out of range", source, length)
			}
			copy(dst[cursor:cursor+length], pre[source:source+length])
		} else {
			if offset+length > len(data) {
				return fmt.Errorf("genericxlog: truncated copy payload at offset %d", offset)
			}
			copy(dst[cursor:cursor+length], data[offset:offset+length])
			offset += length
		}
		cursor += length
	}

	if cursor != BlockSize {
		return fmt.Errorf("genericxlog: instruction stream covered %d of %d bytes", cursor, BlockSize)
	}
	return nil
}
