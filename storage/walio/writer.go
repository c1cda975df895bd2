package walio

import (
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/pkg/errors"

	"pageengine/genericxlog"
	"pageengine/internal/logging"
	"pageengine/storage/page"
)

var log = logging.Component("walio")

// Writer is the concrete genericxlog.WALInserter: it accumulates block
// registrations for one Finish call between BeginInsert and Insert, then
// serializes them as a Record and appends it to the WAL, fragmenting across
// fixed-size, CRC-guarded blocks. Not safe for concurrent Insert calls from different
// transactions; genericxlog's own single-threaded-per-context rule keeps
// that true in practice, so Writer only serializes its own block I/O.
type Writer struct {
	mu sync.Mutex

	logsDir   string
	blockSize uint64
	logSize   uint64 // blocks per log file

	lastBlock              []byte
	offsetInBlock          uint64
	blocksWrittenInLastLog uint64
	firstLogIndex          uint64
	lastLogIndex           uint64

	pending []BlockRef
}

// Config bundles the on-disk sizing the WAL is built with.
type Config struct {
	LogsDir   string
	BlockSize uint64
	LogSize   uint64 // blocks per log file
}

// New creates a Writer rooted at cfg.LogsDir, creating the directory and
// starting a fresh log if none exists.
func New(cfg Config) (*Writer, error) {
	if err := os.MkdirAll(cfg.LogsDir, 0755); err != nil {
		return nil, errors.Wrap(err, "walio: create logs dir")
	}
	w := &Writer{
		logsDir:       cfg.LogsDir,
		blockSize:     cfg.BlockSize,
		logSize:       cfg.LogSize,
		lastBlock:     make([]byte, cfg.BlockSize),
		offsetInBlock: crcSize,
		firstLogIndex: 1,
		lastLogIndex:  1,
	}
	return w, nil
}

func (w *Writer) logPath(logIndex uint64) string {
	return fmt.Sprintf("%s/wal_%d.log", w.logsDir, logIndex)
}

// BeginInsert resets the set of pending block registrations for a new
// record, mirroring XLogBeginInsert.
func (w *Writer) BeginInsert() {
	w.pending = w.pending[:0]
}

// RegisterBuffer stages buf's block for the in-progress record. When
// forceImage is set, the page's current contents (already the post-image,
// since genericxlog calls this after its commit-protocol swap) are captured
// as a full-page image; otherwise the differential data arrives separately
// via RegisterBufData.
func (w *Writer) RegisterBuffer(blockID int, buf genericxlog.Buffer, forceImage bool) {
	ref := BlockRef{
		BlockID:    blockID,
		Location:   buf.Location(),
		ForceImage: forceImage,
	}
	if forceImage {
		ref.FullImage = *buf.GetPage()
	}
	w.pending = append(w.pending, ref)
}

// RegisterBufData attaches differential data to a previously staged block.
func (w *Writer) RegisterBufData(blockID int, data []byte) {
	for i := range w.pending {
		if w.pending[i].BlockID == blockID {
			w.pending[i].Data = append([]byte(nil), data...)
			return
		}
	}
}

// Insert serializes the staged Record and appends it to the WAL, returning
// the LSN taken as the current byte offset into the logical WAL stream
// before the record is appended; a record that does not fit in the current
// block starts at the next block instead. The same LSN is embedded in
// the serialized record itself, so a replaying reader can compare it
// against a page's current LSN without having to recompute stream
// positions.
func (w *Writer) Insert(resourceManagerID uint8, info uint8) (page.LSN, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	lsn := w.currentLSN()
	record := &Record{ResourceManagerID: resourceManagerID, Info: info, LSN: lsn, Blocks: w.pending}
	payload := record.Serialize()

	if _, err := w.writeRecord(payload); err != nil {
		return genericxlog.InvalidLSN, err
	}
	log.WithField("blocks", len(record.Blocks)).Debug("wal record inserted")
	return lsn, nil
}

func (w *Writer) currentLSN() page.LSN {
	blocksSoFar := (w.lastLogIndex - w.firstLogIndex) * w.logSize + w.blocksWrittenInLastLog
	return page.LSN(blocksSoFar*w.blockSize + w.offsetInBlock)
}

func (w *Writer) writeRecord(payload []byte) (page.LSN, error) {
	spaceNeeded := headerTotalSize + len(payload)

	if int(w.blockSize-w.offsetInBlock) < spaceNeeded {
		if err := w.flushBlock(); err != nil {
			return genericxlog.InvalidLSN, err
		}
		w.makeNewBlock()

		if spaceNeeded > int(w.blockSize) {
			if err := w.writeFragmented(payload); err != nil {
				return genericxlog.InvalidLSN, err
			}
			return w.currentLSN(), nil
		}
	}
	if err := w.writeToBlock(payload, fragmentFull); err != nil {
		return genericxlog.InvalidLSN, err
	}
	return w.currentLSN(), nil
}

func (w *Writer) writeFragmented(payload []byte) error {
	maxPayload := int(w.blockSize) - headerTotalSize - crcSize
	numFragments := int(math.Ceil(float64(len(payload)) / float64(maxPayload)))

	offset := 0
	for i := 0; i < numFragments; i++ {
		size := maxPayload
		if remaining := len(payload) - offset; remaining < size {
			size = remaining
		}
		fragment := payload[offset : offset+size]
		offset += size

		fragType := byte(fragmentMiddle)
		switch i {
		case 0:
			fragType = fragmentFirst
		case numFragments - 1:
			fragType = fragmentLast
		}
		if err := w.writeToBlock(fragment, fragType); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeToBlock(payload []byte, fragType byte) error {
	hdr := fragmentHeader{payloadSize: uint64(len(payload)), fragType: fragType, logNumber: w.lastLogIndex}.serialize()
	total := headerTotalSize + len(payload)

	if int(w.offsetInBlock)+total > int(w.blockSize) {
		return errors.New("walio: record does not fit in remaining block space")
	}

	copy(w.lastBlock[w.offsetInBlock:], hdr)
	copy(w.lastBlock[int(w.offsetInBlock)+headerTotalSize:], payload)
	w.offsetInBlock += uint64(total)

	if w.offsetInBlock == w.blockSize {
		if err := w.flushBlock(); err != nil {
			return err
		}
		w.makeNewBlock()
	}
	return nil
}

func (w *Writer) flushBlock() error {
	framed := addCRCToBlockData(w.lastBlock)
	f, err := os.OpenFile(w.logPath(w.lastLogIndex), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return errors.Wrap(err, "walio: open log file")
	}
	defer f.Close()

	offset := int64(w.blocksWrittenInLastLog) * int64(w.blockSize)
	if _, err := f.WriteAt(framed, offset); err != nil {
		return errors.Wrap(err, "walio: write block")
	}
	w.blocksWrittenInLastLog++
	return nil
}

func (w *Writer) makeNewBlock() {
	w.lastBlock = make([]byte, w.blockSize)
	w.offsetInBlock = crcSize

	if w.blocksWrittenInLastLog >= w.logSize {
		w.lastLogIndex++
		w.blocksWrittenInLastLog = 0
	}
}

// Close flushes any partially-written block so the WAL is durable up to the
// last completed record. The last, still-open block is only guaranteed
// durable after this call, a deliberate performance/durability tradeoff
// for the tail block.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushBlock()
}
