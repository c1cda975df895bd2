// Package bloom implements a Bloom-signature index access method: pages of
// fixed-width signature tuples that support fast "definitely absent" /
// "maybe present" membership tests without a full heap scan. Grounded on
// contrib/bloom (blutils.c, blinsert.c): the meta page carrying options and
// a free-list of not-yet-full data pages, and data pages of packed
// BloomFormTuple-style records. Generalized from PostgreSQL's Datum/Relation
// machinery to plain []byte column values, and from direct page-pointer
// casts to explicit (de)serialization, since Go has no struct-overlay onto
// a byte array.
//
// Every page mutation runs through a genericxlog.Transaction, so the index
// is crash-safe the same way any generic-XLOG-backed access method is: a
// recovering process replays the WAL and lands on the exact byte image that
// was committed, never a half-written page.
package bloom

import (
	"encoding/binary"
	"fmt"

	"pageengine/storage/page"
)

// magicNumber identifies a page as belonging to a bloom index, mirroring
// BLOOM_MAGICK_NUMBER.
const magicNumber = 0x6c6f6f62 // "bool" in little-endian bytes

// metaPageBlock is the fixed block index of the meta page, mirroring
// BLOOM_METAPAGE_BLKNO.
const metaPageBlock = 0

// maxColumns bounds the number of columns a bloom index can sign, mirroring
// INDEX_MAX_KEYS's role in BloomOptions.
const maxColumns = 8

// freeListCapacity bounds how many not-full data pages the meta page tracks
// at once, mirroring BloomMetaPageData.notFullPage's fixed array.
const freeListCapacity = 64

// signWordSize is the width, in bytes, of one signature word (SignType).
const signWordSize = 2
const bitsPerSignWord = signWordSize * 8

// lsnReserved is the byte span every page.Page reserves for its LSN stamp;
// every bloom page layout starts past it.
const lsnReserved = 8

// Options configures a bloom index's signature shape, mirroring
// BloomOptions: how many signature words per tuple, and how many bits of
// each column's value get set in that signature.
type Options struct {
	SignWords     int
	BitsPerColumn []int // length = number of indexed columns, <= maxColumns
}

// DefaultOptions returns the same defaults makeDefaultBloomOptions applies
// when an index is created without explicit reloptions: a 5-word signature
// and 2 bits per column.
func DefaultOptions(numColumns int) Options {
	bits := make([]int, numColumns)
	for i := range bits {
		bits[i] = 2
	}
	return Options{SignWords: 5, BitsPerColumn: bits}
}

func (o Options) signatureBytes() int { return o.SignWords * signWordSize }

func (o Options) validate() error {
	if o.SignWords <= 0 {
		return fmt.Errorf("bloom: SignWords must be positive")
	}
	if len(o.BitsPerColumn) == 0 || len(o.BitsPerColumn) > maxColumns {
		return fmt.Errorf("bloom: column count must be in [1,%d]", maxColumns)
	}
	maxBits := o.SignWords * bitsPerSignWord
	for i, b := range o.BitsPerColumn {
		if b <= 0 || b >= maxBits {
			return fmt.Errorf("bloom: column %d bit count %d out of range [1,%d)", i, b, maxBits)
		}
	}
	return nil
}

// TupleID identifies the heap row a signature was built from. Opaque to
// this package: callers supply whatever addressing scheme their heap uses.
type TupleID struct {
	BlockIndex uint64
	Offset     uint16
}

func (t TupleID) serialize(dst []byte) {
	binary.LittleEndian.PutUint64(dst[0:8], t.BlockIndex)
	binary.LittleEndian.PutUint16(dst[8:10], t.Offset)
}

func deserializeTupleID(src []byte) TupleID {
	return TupleID{
		BlockIndex: binary.LittleEndian.Uint64(src[0:8]),
		Offset:     binary.LittleEndian.Uint16(src[8:10]),
	}
}

const tupleIDSize = 10

// metaPageData is the decoded contents of the meta page, mirroring
// BloomMetaPageData: the signature options plus a circular free-list of
// block indices known to have spare tuple slots.
type metaPageData struct {
	options      Options
	notFullPage  []uint64
	start, end   int // free-list window: entries [start,end) are valid
}

const (
	metaMagicOffset     = lsnReserved
	metaSignWordsOffset = metaMagicOffset + 4
	metaNumColsOffset   = metaSignWordsOffset + 4
	metaBitsOffset      = metaNumColsOffset + 4
	metaStartOffset     = metaBitsOffset + maxColumns*4
	metaEndOffset       = metaStartOffset + 4
	metaListOffset      = metaEndOffset + 4
)

func encodeMetaPage(img *page.Page, meta metaPageData) {
	binary.LittleEndian.PutUint32(img[metaMagicOffset:], magicNumber)
	binary.LittleEndian.PutUint32(img[metaSignWordsOffset:], uint32(meta.options.SignWords))
	binary.LittleEndian.PutUint32(img[metaNumColsOffset:], uint32(len(meta.options.BitsPerColumn)))
	for i, b := range meta.options.BitsPerColumn {
		binary.LittleEndian.PutUint32(img[metaBitsOffset+i*4:], uint32(b))
	}
	binary.LittleEndian.PutUint32(img[metaStartOffset:], uint32(meta.start))
	binary.LittleEndian.PutUint32(img[metaEndOffset:], uint32(meta.end))
	for i, blk := range meta.notFullPage {
		binary.LittleEndian.PutUint64(img[metaListOffset+i*8:], blk)
	}
}

func decodeMetaPage(img *page.Page) (metaPageData, error) {
	if binary.LittleEndian.Uint32(img[metaMagicOffset:]) != magicNumber {
		return metaPageData{}, fmt.Errorf("bloom: not a bloom index meta page")
	}
	numCols := int(binary.LittleEndian.Uint32(img[metaNumColsOffset:]))
	opts := Options{
		SignWords:     int(binary.LittleEndian.Uint32(img[metaSignWordsOffset:])),
		BitsPerColumn: make([]int, numCols),
	}
	for i := range opts.BitsPerColumn {
		opts.BitsPerColumn[i] = int(binary.LittleEndian.Uint32(img[metaBitsOffset+i*4:]))
	}
	meta := metaPageData{
		options: opts,
		start:   int(binary.LittleEndian.Uint32(img[metaStartOffset:])),
		end:     int(binary.LittleEndian.Uint32(img[metaEndOffset:])),
	}
	meta.notFullPage = make([]uint64, freeListCapacity)
	for i := range meta.notFullPage {
		meta.notFullPage[i] = binary.LittleEndian.Uint64(img[metaListOffset+i*8:])
	}
	return meta, nil
}

// dataPageHeader is the opaque header at the front of every non-meta page,
// mirroring BloomPageOpaqueData.
type dataPageHeader struct {
	maxOffset uint16
}

const (
	dataHeaderOffset    = lsnReserved
	dataMaxOffsetOffset = dataHeaderOffset
	dataTuplesOffset    = dataHeaderOffset + 2
)

func encodeDataHeader(img *page.Page, h dataPageHeader) {
	binary.LittleEndian.PutUint16(img[dataMaxOffsetOffset:], h.maxOffset)
}

func decodeDataHeader(img *page.Page) dataPageHeader {
	return dataPageHeader{maxOffset: binary.LittleEndian.Uint16(img[dataMaxOffsetOffset:])}
}

func tupleSize(opts Options) int { return tupleIDSize + opts.signatureBytes() }

func tuplesPerPage(opts Options) int {
	return (page.Size - dataTuplesOffset) / tupleSize(opts)
}

func tupleOffset(opts Options, index int) int {
	return dataTuplesOffset + index*tupleSize(opts)
}

// writeTuple packs id and sign into slot index within img's tuple area.
func writeTuple(img *page.Page, opts Options, index int, id TupleID, sign []byte) {
	off := tupleOffset(opts, index)
	id.serialize(img[off : off+tupleIDSize])
	copy(img[off+tupleIDSize:off+tupleSize(opts)], sign)
}

func readTuple(img *page.Page, opts Options, index int) (TupleID, []byte) {
	off := tupleOffset(opts, index)
	id := deserializeTupleID(img[off : off+tupleIDSize])
	sign := make([]byte, opts.signatureBytes())
	copy(sign, img[off+tupleIDSize:off+tupleSize(opts)])
	return id, sign
}

// signatureContains reports whether every set bit of needle is also set in
// haystack, i.e. haystack is a candidate match for the query signature.
func signatureContains(haystack, needle []byte) bool {
	for i := range needle {
		if haystack[i]&needle[i] != needle[i] {
			return false
		}
	}
	return true
}
