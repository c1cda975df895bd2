// Package genericxlog implements a general mechanism for describing
// in-place modifications to fixed-size disk pages, recording them to a
// write-ahead log as a minimal differential record, and replaying them
// deterministically during crash recovery, while correctly accounting for
// intra-page data movement.
//
// Grounded on PostgreSQL's generic_xlog.c. Where the original carried
// process-wide globals (one status variable, one slot array), this package
// models the same state machine as an explicit Transaction value owned by
// whatever the caller treats as one logical execution context, per the
// "process-wide vs per-context state" guidance that comes with this design:
// state and contracts are unchanged, only the ownership model is made
// explicit.
package genericxlog

import (
	"encoding/binary"
	"errors"

	"pageengine/storage/page"
)

// Tunable constants, fixed at compile time.
const (
	BlockSize       = page.Size
	MaxRegions      = 256
	MatchThreshold  = 16
	MaxPages        = 3
	moveFlag        = 0x8000
	lengthMask      = 0x7FFF
)

// ResourceManagerID is the resource manager id this package registers
// itself under with the WAL framework, mirroring RM_GENERIC_ID.
const ResourceManagerID uint8 = 20

// InvalidLSN is returned by Finish on the unlogged path, and by Finish
// itself when it errors.
const InvalidLSN = page.Invalid

// Status is the transaction controller's lifecycle state.
type Status int

const (
	NotStarted Status = iota
	Logged
	Unlogged
)

// Sentinel errors for contract violations: these are programmer errors,
// not I/O failures, so they carry no wrapped cause.
var (
	ErrAlreadyStarted    = errors.New("genericxlog: transaction already started")
	ErrNotStarted        = errors.New("genericxlog: transaction not started")
	ErrDuplicateBuffer   = errors.New("genericxlog: buffer already registered")
	ErrTooManyBuffers    = errors.New("genericxlog: maximum number of registered buffers exceeded")
	ErrUnregisteredImage = errors.New("genericxlog: image does not belong to this transaction")
	ErrOutOfRange        = errors.New("genericxlog: memmove source or destination outside page")
)

// Buffer is the narrow slice of the buffer manager's interface genericxlog
// consumes: the page it holds, its address for WAL addressing, and the
// ability to flag itself dirty. Locking and pinning stay the caller's
// responsibility; the controller never blocks.
type Buffer interface {
	GetPage() *page.Page
	Location() page.BlockLocation
	MarkDirty()
}

// WALInserter is the narrow slice of the WAL writer's interface genericxlog
// consumes, mirroring XLogBeginInsert/XLogRegisterBuffer/
// XLogRegisterBufData/XLogInsert.
type WALInserter interface {
	BeginInsert()
	RegisterBuffer(blockID int, buf Buffer, forceImage bool)
	RegisterBufData(blockID int, data []byte)
	Insert(resourceManagerID uint8, info uint8) (page.LSN, error)
}

type region struct {
	dstOffset uint16
	srcOffset uint16
	length    uint16
}

type pageSlot struct {
	buffer       Buffer
	image        page.Page
	regions      [MaxRegions]region
	regionsCount int
	overflow     bool
	data         []byte
	fullImage    bool
}

func (s *pageSlot) reset(buf Buffer) {
	s.buffer = buf
	s.image = *buf.GetPage()
	s.regions[0] = region{dstOffset: 0, srcOffset: 0, length: BlockSize}
	s.regionsCount = 1
	s.overflow = false
	s.data = s.data[:0]
	s.fullImage = false
}

// Transaction is one generic XLOG execution context: a single-threaded,
// cooperative controller over a fixed table of page slots.
// A Transaction is not safe for concurrent use; exactly one Start/Register.../
// Finish-or-Abort sequence may be in flight on it at a time.
type Transaction struct {
	status Status
	pages  [MaxPages]pageSlot
	wal    WALInserter
}

// NewTransaction creates a Transaction bound to the given WAL inserter.
func NewTransaction(wal WALInserter) *Transaction {
	return &Transaction{wal: wal, status: NotStarted}
}

// Status reports the controller's current lifecycle state.
func (t *Transaction) Status() Status { return t.status }

// Start begins a new transaction. walLogged selects Logged mode (the
// relation is WAL-logged) or Unlogged mode (skip WAL entirely on Finish).
func (t *Transaction) Start(walLogged bool) error {
	if t.status != NotStarted {
		return ErrAlreadyStarted
	}
	if walLogged {
		t.status = Logged
	} else {
		t.status = Unlogged
	}
	for i := range t.pages {
		t.pages[i].buffer = nil
	}
	return nil
}

// Register enrolls buf in the transaction and returns a writable working
// image the caller may mutate directly, routing any intra-page relocation
// through Memmove. isNew marks a newly allocated page, forcing a full-page
// image at Finish instead of a differential record.
func (t *Transaction) Register(buf Buffer, isNew bool) (*page.Page, error) {
	if t.status == NotStarted {
		return nil, ErrNotStarted
	}
	for i := range t.pages {
		if t.pages[i].buffer == nil {
			t.pages[i].reset(buf)
			t.pages[i].fullImage = isNew
			return &t.pages[i].image, nil
		}
		if t.pages[i].buffer == buf {
			return nil, ErrDuplicateBuffer
		}
	}
	return nil, ErrTooManyBuffers
}

func (t *Transaction) slotForImage(img *page.Page) *pageSlot {
	for i := range t.pages {
		if t.pages[i].buffer != nil && img == &t.pages[i].image {
			return &t.pages[i]
		}
	}
	return nil
}

// Memmove relocates length bytes from src to dst within img (a working image
// previously returned by Register), keeping the slot's region map coherent
// so the differential encoder can still recognize the moved bytes and emit a
// MOVE instruction instead of logging them as new content.
func (t *Transaction) Memmove(img *page.Page, dst, src, length int) error {
	if t.status == NotStarted {
		return ErrNotStarted
	}
	slot := t.slotForImage(img)
	if slot == nil {
		return ErrUnregisteredImage
	}
	if dst < 0 || src < 0 || length < 0 ||
		dst+length > BlockSize || src+length > BlockSize {
		return ErrOutOfRange
	}
	if length == 0 {
		return nil
	}

	if !slot.overflow && !slot.fullImage {
		memoryMove(slot, uint16(dst), uint16(src), uint16(length))
	}
	copy(img[dst:dst+length], img[src:src+length])
	return nil
}

// Finish commits the transaction: in Logged mode it installs the post-images
// onto their buffers, inserts one WAL record covering every registered page,
// stamps the returned LSN, and marks buffers dirty. These steps run without a
// critical section: if the WAL insert fails, Finish returns the error with
// the post-images already installed on the buffers, unstamped and not marked
// dirty. In Unlogged mode it installs images without touching the WAL.
// Either way it resets the controller to NotStarted.
func (t *Transaction) Finish() (page.LSN, error) {
	defer func() { t.status = NotStarted }()

	switch t.status {
	case Logged:
		return t.finishLogged()
	case Unlogged:
		t.finishUnlogged()
		return InvalidLSN, nil
	default:
		return InvalidLSN, ErrNotStarted
	}
}

func (t *Transaction) finishLogged() (page.LSN, error) {
	t.wal.BeginInsert()

	for i := range t.pages {
		slot := &t.pages[i]
		if slot.buffer == nil {
			continue
		}

		// Swap: the buffer's current contents (the pre-image, since the
		// caller only ever mutated slot.image) move onto slot.image, and
		// the mutated working copy is installed onto the buffer. The
		// buffer now holds the post-image the encoder will walk; slot.image
		// holds the pre-image the encoder matches runs against.
		post := slot.image
		slot.image = *slot.buffer.GetPage()
		*slot.buffer.GetPage() = post

		if slot.fullImage {
			t.wal.RegisterBuffer(i, slot.buffer, true)
		} else {
			t.wal.RegisterBuffer(i, slot.buffer, false)
			slot.encode()
			t.wal.RegisterBufData(i, slot.data)
		}
	}

	lsn, err := t.wal.Insert(ResourceManagerID, 0)
	if err != nil {
		return InvalidLSN, err
	}

	for i := range t.pages {
		slot := &t.pages[i]
		if slot.buffer == nil {
			continue
		}
		page.SetLSN(slot.buffer.GetPage(), lsn)
		slot.buffer.MarkDirty()
	}
	return lsn, nil
}

func (t *Transaction) finishUnlogged() {
	for i := range t.pages {
		slot := &t.pages[i]
		if slot.buffer == nil {
			continue
		}
		*slot.buffer.GetPage() = slot.image
		slot.buffer.MarkDirty()
	}
}

// Abort discards all working images without touching any buffer.
func (t *Transaction) Abort() error {
	if t.status == NotStarted {
		return ErrNotStarted
	}
	t.status = NotStarted
	return nil
}

func putLength(data []byte, length uint16, flagged bool) []byte {
	if flagged {
		length |= moveFlag
	}
	var hdr [2]byte
	binary.LittleEndian.PutUint16(hdr[:], length)
	return append(data, hdr[:]...)
}
