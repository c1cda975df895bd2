// Package bufmgr implements the buffer manager consumed by genericxlog:
// BufferGetPage, BufferIsInvalid, BufferGetBlockNumber, MarkBufferDirty,
// PageSetLSN, plus a per-buffer Lock/Unlock content lock that callers take
// themselves (genericxlog never locks a buffer).
//
// A singleton manager with a per-file sync.RWMutex and an LRU-backed read
// path, generalized from opaque byte blocks to fixed-size page images
// addressed by BlockLocation.
package bufmgr

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"

	"pageengine/internal/logging"
	"pageengine/storage/page"
)

var log = logging.Component("bufmgr")

// InvalidBuffer is returned by GetPage on failure; genericxlog treats it the
// way PostgreSQL treats InvalidBuffer.
var InvalidBuffer *Buffer = nil

// Buffer is a handle on a cached page image; GetPage hands it out unlocked
// and there is no pin count. The generic XLOG
// transaction controller holds one of these per registered page for the
// duration of a transaction.
type Buffer struct {
	loc      page.BlockLocation
	data     *page.Page
	dirty    bool
	mu       sync.Mutex
	manager  *Manager
}

// GetPage returns the page image behind this buffer. Callers must hold the
// buffer's lock (via Lock/Unlock) before mutating the returned page.
func (b *Buffer) GetPage() *page.Page {
	return b.data
}

// Lock acquires the buffer's content lock, mirroring LockBuffer(buf,
// BUFFER_LOCK_EXCLUSIVE).
func (b *Buffer) Lock() { b.mu.Lock() }

// Unlock releases the buffer's content lock.
func (b *Buffer) Unlock() { b.mu.Unlock() }

// MarkDirty flags buf for write-back. Satisfies genericxlog.Buffer directly;
// MarkBufferDirty below is the PostgreSQL-style free function callers use.
func (b *Buffer) MarkDirty() { b.dirty = true }

// IsInvalid reports whether buf is the invalid buffer sentinel.
func IsInvalid(buf *Buffer) bool { return buf == nil }

// BlockNumber returns the block index this buffer is pinned to.
func (b *Buffer) BlockNumber() uint64 { return b.loc.BlockIndex }

// Location returns the file + block-index address this buffer is pinned to,
// used by the WAL writer to address block references in a record.
func (b *Buffer) Location() page.BlockLocation { return b.loc }

// Manager is the singleton buffer manager: it owns an LRU page cache and a
// per-file mutex table, keyed on whole pages instead of raw blocks.
type Manager struct {
	cache       *pageCache
	fileMutexes sync.Map // file path -> *sync.RWMutex
}

var (
	defaultInstance *Manager
	defaultOnce     sync.Once
)

// Default returns the process-wide buffer manager singleton, created with a
// cache capacity of 128 pages on first use. Callers in this module,
// cmd/pagectl included, construct their own Manager via New instead.
func Default() *Manager {
	defaultOnce.Do(func() {
		defaultInstance = New(128)
	})
	return defaultInstance
}

// New creates a buffer manager with the given page-cache capacity.
func New(cacheCapacity int) *Manager {
	return &Manager{cache: newPageCache(cacheCapacity)}
}

func (m *Manager) fileMutex(path string) *sync.RWMutex {
	if mu, ok := m.fileMutexes.Load(path); ok {
		return mu.(*sync.RWMutex)
	}
	mu := &sync.RWMutex{}
	actual, _ := m.fileMutexes.LoadOrStore(path, mu)
	return actual.(*sync.RWMutex)
}

// GetPage returns the buffer for loc, reading it from disk (or
// creating a zero page, if create is true and the file is shorter than
// loc.BlockIndex+1 pages) on a cache miss.
func (m *Manager) GetPage(loc page.BlockLocation, create bool) (*Buffer, error) {
	if img, ok := m.cache.get(loc); ok {
		return &Buffer{loc: loc, data: img, manager: m}, nil
	}

	mu := m.fileMutex(loc.FilePath)
	mu.Lock()
	defer mu.Unlock()

	if img, ok := m.cache.get(loc); ok {
		return &Buffer{loc: loc, data: img, manager: m}, nil
	}

	img, err := readPageFromDisk(loc, create)
	if err != nil {
		return nil, errors.Wrapf(err, "bufmgr: read page %s", loc)
	}
	m.cache.put(loc, img)
	log.WithField("block", loc).Debug("paged in")
	return &Buffer{loc: loc, data: img, manager: m}, nil
}

// MarkBufferDirty flags buf for write-back. Generic redo calls this after
// applying a record to buf; genericxlog's Finish calls the equivalent
// MarkDirty method on each registered buffer after inserting the WAL record.
func MarkBufferDirty(buf *Buffer) {
	buf.MarkDirty()
}

// PageSetLSN stamps lsn into buf's page header.
func PageSetLSN(buf *Buffer, lsn page.LSN) {
	page.SetLSN(buf.data, lsn)
}

// PageGetLSN reads the LSN currently stamped into buf's page header, for
// comparison against a WAL record's LSN before redo applies it.
func PageGetLSN(buf *Buffer) page.LSN {
	return page.GetLSN(buf.data)
}

// FlushBuffer writes a dirty buffer back to disk and clears its dirty flag.
// Not part of genericxlog's consumed interface directly, but required for
// the WAL to have a durable end state to recover to.
func (m *Manager) FlushBuffer(buf *Buffer) error {
	if !buf.dirty {
		return nil
	}
	mu := m.fileMutex(buf.loc.FilePath)
	mu.Lock()
	defer mu.Unlock()

	if err := writePageToDisk(buf.loc, buf.data); err != nil {
		return errors.Wrapf(err, "bufmgr: flush page %s", buf.loc)
	}
	buf.dirty = false
	m.cache.put(buf.loc, buf.data)
	log.WithField("block", buf.loc).Debug("flushed")
	return nil
}

// Evict drops loc from the cache without flushing, so the next GetPage for
// loc re-reads it from disk.
func (m *Manager) Evict(loc page.BlockLocation) {
	m.cache.remove(loc)
}

// BlockCount returns how many whole pages filePath currently holds, so
// callers extending a relation (like the bloom access method allocating a
// fresh data page) know the next free block index. A missing file holds
// zero pages.
func (m *Manager) BlockCount(filePath string) (uint64, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return uint64(info.Size()) / page.Size, nil
}

func readPageFromDisk(loc page.BlockLocation, create bool) (*page.Page, error) {
	f, err := os.OpenFile(loc.FilePath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	offset := int64(loc.BlockIndex) * page.Size
	var img page.Page
	n, err := f.ReadAt(img[:], offset)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if n < page.Size && !create {
		return nil, errors.Errorf("short read at block %d: got %d bytes", loc.BlockIndex, n)
	}
	return &img, nil
}

func writePageToDisk(loc page.BlockLocation, img *page.Page) error {
	f, err := os.OpenFile(loc.FilePath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	offset := int64(loc.BlockIndex) * page.Size
	_, err = f.WriteAt(img[:], offset)
	return err
}
