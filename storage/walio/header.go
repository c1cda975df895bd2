package walio

import "encoding/binary"

// Fragment header layout: every block begins (after its CRC) with a
// fixed header describing how
// much of a Record's serialized bytes live in this block and whether more
// fragments follow in subsequent blocks.
const (
	payloadSizeSize = 8
	fragTypeSize    = 1
	logNumberSize   = 8

	payloadSizeStart = 0
	fragTypeStart    = payloadSizeStart + payloadSizeSize
	logNumberStart   = fragTypeStart + fragTypeSize

	headerTotalSize = payloadSizeSize + fragTypeSize + logNumberSize
)

// Fragment types.
const (
	fragmentFirst  = 1
	fragmentMiddle = 2
	fragmentLast   = 3
	fragmentFull   = 4
)

type fragmentHeader struct {
	payloadSize uint64
	fragType    byte
	logNumber   uint64
}

func (h fragmentHeader) serialize() []byte {
	data := make([]byte, headerTotalSize)
	binary.LittleEndian.PutUint64(data[payloadSizeStart:payloadSizeStart+payloadSizeSize], h.payloadSize)
	data[fragTypeStart] = h.fragType
	binary.LittleEndian.PutUint64(data[logNumberStart:logNumberStart+logNumberSize], h.logNumber)
	return data
}

func deserializeFragmentHeader(data []byte) (fragmentHeader, bool) {
	if len(data) < headerTotalSize {
		return fragmentHeader{}, false
	}
	return fragmentHeader{
		payloadSize: binary.LittleEndian.Uint64(data[payloadSizeStart : payloadSizeStart+payloadSizeSize]),
		fragType:    data[fragTypeStart],
		logNumber:   binary.LittleEndian.Uint64(data[logNumberStart : logNumberStart+logNumberSize]),
	}, true
}
