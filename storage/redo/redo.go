// Package redo implements the recovery-side counterpart to storage/walio: it
// walks the WAL log files a Writer produced and replays every record through
// a resourcemgr.Registry, reconstructing the on-disk pages exactly as
// generic_redo reconstructs them during PostgreSQL crash recovery, by
// generalizing a block-scanning recovery walk from memtable records to
// resource-manager records.
package redo

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
	"os"
	"regexp"
	"strconv"

	"github.com/pkg/errors"

	"pageengine/genericxlog"
	"pageengine/internal/logging"
	"pageengine/resourcemgr"
	"pageengine/storage/bufmgr"
	"pageengine/storage/page"
	"pageengine/storage/walio"
)

var log = logging.Component("redo")

var logFileName = regexp.MustCompile(`^wal_(\d+)\.log$`)

// headerTotalSize must track storage/walio's fragment header width; kept in
// sync by hand since the header layout itself is unexported there.
const headerTotalSize = 17

// fragment type tags, matching storage/walio's unexported constants.
const (
	fragmentFirst  = 1
	fragmentMiddle = 2
	fragmentLast   = 3
	fragmentFull   = 4
)

// crcSize must track storage/walio's own block checksum width; kept in
// sync by hand for the same reason as the fragment header constants above.
const crcSize = 4

// errCorruptBlock mirrors storage/walio's own integrity-check failure.
var errCorruptBlock = errors.New("redo: block failed integrity check")

// checkBlockIntegrity re-verifies a block's leading CRC the same way
// storage/walio stamped it, since the check lives on the read side and
// walio's own helper is unexported.
func checkBlockIntegrity(block []byte) error {
	if len(block) < crcSize {
		return errors.New("redo: block shorter than checksum width")
	}
	stored := binary.LittleEndian.Uint32(block[:crcSize])
	computed := crc32.ChecksumIEEE(block[crcSize:])
	if stored != computed {
		return errCorruptBlock
	}
	return nil
}

// Reader replays the WAL rooted at a logs directory.
type Reader struct {
	logsDir   string
	blockSize uint64
}

// NewReader builds a Reader over the given logs directory. blockSize must
// match the Config.BlockSize the Writer that produced the logs used.
func NewReader(logsDir string, blockSize uint64) *Reader {
	return &Reader{logsDir: logsDir, blockSize: blockSize}
}

// position tracks where replay currently is in the logical WAL stream.
type position struct {
	logIndex   uint64
	blockIndex uint64
	offset     uint64
}

// Replay scans every log file in the reader's directory in order and
// replays each record it contains through registry, applying page changes
// via mgr. Returns the LSN immediately past the last record replayed, or
// genericxlog.InvalidLSN if the log directory held no records.
func (r *Reader) Replay(mgr *bufmgr.Manager, registry *resourcemgr.Registry) (page.LSN, error) {
	firstLog, lastLog, lastLogBlocks, err := r.scanLogRange()
	if err != nil {
		return genericxlog.InvalidLSN, err
	}
	if lastLog == 0 {
		return genericxlog.InvalidLSN, nil
	}

	logCapacity := lastLogBlocks
	if firstLog != lastLog {
		logCapacity = r.blockCount(firstLog)
	}

	pos := &position{logIndex: firstLog, blockIndex: 0, offset: crcSize}
	fragmentBuffer := make([]byte, 0, r.blockSize)
	var replayed uint64
	var lastLSN page.LSN

	for pos.logIndex <= lastLog {
		endBlock := logCapacity
		if pos.logIndex == lastLog {
			endBlock = lastLogBlocks
		}

		for pos.blockIndex < endBlock {
			block, err := r.readBlock(pos.logIndex, pos.blockIndex)
			if err != nil {
				return genericxlog.InvalidLSN, err
			}

			n, err := r.processBlock(block, &fragmentBuffer, pos, mgr, registry)
			if err != nil {
				return genericxlog.InvalidLSN, err
			}
			replayed += uint64(n)
			if n > 0 {
				blocksSoFar := (pos.logIndex-firstLog)*logCapacity + pos.blockIndex
				lastLSN = page.LSN(blocksSoFar*r.blockSize + pos.offset)
			}

			pos.blockIndex++
			pos.offset = crcSize
		}
		pos.logIndex++
		pos.blockIndex = 0
	}

	log.WithField("records", replayed).Info("wal replay complete")
	return lastLSN, nil
}

// scanLogRange finds the lowest and highest wal_N.log indices present, and
// how many full blockSize blocks the highest one holds, mirroring
// reloadWAL's directory scan.
func (r *Reader) scanLogRange() (first, last, lastBlocks uint64, err error) {
	entries, err := os.ReadDir(r.logsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, 0, nil
		}
		return 0, 0, 0, errors.Wrap(err, "redo: read logs dir")
	}

	minIdx := uint64(math.MaxUint64)
	maxIdx := uint64(0)
	found := false

	for _, e := range entries {
		m := logFileName.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		num, convErr := strconv.ParseUint(m[1], 10, 64)
		if convErr != nil {
			continue
		}
		found = true
		if num < minIdx {
			minIdx = num
		}
		if num > maxIdx {
			maxIdx = num
		}
	}
	if !found {
		return 0, 0, 0, nil
	}

	return minIdx, maxIdx, r.blockCount(maxIdx), nil
}

func (r *Reader) blockCount(logIndex uint64) uint64 {
	info, err := os.Stat(fmt.Sprintf("%s/wal_%d.log", r.logsDir, logIndex))
	if err != nil {
		return 0
	}
	return uint64(info.Size()) / r.blockSize
}

func (r *Reader) readBlock(logIndex, blockIndex uint64) ([]byte, error) {
	path := fmt.Sprintf("%s/wal_%d.log", r.logsDir, logIndex)
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "redo: open %s", path)
	}
	defer f.Close()

	block := make([]byte, r.blockSize)
	if _, err := f.ReadAt(block, int64(blockIndex)*int64(r.blockSize)); err != nil {
		return nil, errors.Wrapf(err, "redo: read block %d of %s", blockIndex, path)
	}
	if err := checkBlockIntegrity(block); err != nil {
		return nil, errors.Wrapf(err, "redo: corrupt block %d of %s", blockIndex, path)
	}
	return block, nil
}

// processBlock walks one block's fragment headers, replaying every complete
// record it finds (possibly spanning earlier blocks via fragmentBuffer) and
// returns how many records were replayed.
func (r *Reader) processBlock(block []byte, fragmentBuffer *[]byte, pos *position, mgr *bufmgr.Manager, registry *resourcemgr.Registry) (int, error) {
	offset := int(pos.offset)
	replayed := 0

	for offset < len(block) {
		remaining := block[offset:]
		if isZero(remaining) {
			*fragmentBuffer = (*fragmentBuffer)[:0]
			break
		}

		if offset+headerTotalSize > len(block) {
			return replayed, fmt.Errorf("redo: truncated fragment header at offset %d", offset)
		}
		payloadSize := binary.LittleEndian.Uint64(block[offset : offset+8])
		fragType := block[offset+8]
		offset += headerTotalSize

		if offset+int(payloadSize) > len(block) {
			return replayed, fmt.Errorf("redo: fragment payload overruns block at offset %d", offset)
		}
		payload := block[offset : offset+int(payloadSize)]
		offset += int(payloadSize)
		pos.offset = uint64(offset)

		switch fragType {
		case fragmentFull:
			if err := replay(payload, mgr, registry); err != nil {
				return replayed, err
			}
			replayed++
		case fragmentFirst, fragmentMiddle:
			*fragmentBuffer = append(*fragmentBuffer, payload...)
		case fragmentLast:
			*fragmentBuffer = append(*fragmentBuffer, payload...)
			full := append([]byte(nil), *fragmentBuffer...)
			*fragmentBuffer = (*fragmentBuffer)[:0]
			if err := replay(full, mgr, registry); err != nil {
				return replayed, err
			}
			replayed++
		default:
			return replayed, fmt.Errorf("redo: unknown fragment type %d", fragType)
		}
	}
	return replayed, nil
}

func replay(payload []byte, mgr *bufmgr.Manager, registry *resourcemgr.Registry) error {
	record, err := walio.Deserialize(payload)
	if err != nil {
		return errors.Wrap(err, "redo: deserialize record")
	}
	if err := registry.Redo(mgr, record); err != nil {
		return errors.Wrap(err, "redo: replay record")
	}
	return nil
}

func isZero(b []byte) bool {
	return bytes.Equal(b, make([]byte, len(b)))
}
