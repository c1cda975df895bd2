package bloom

import (
	"fmt"

	"pageengine/genericxlog"
	"pageengine/internal/logging"
	"pageengine/storage/bufmgr"
	"pageengine/storage/page"
)

var log = logging.Component("bloom")

// Index is one bloom index relation: a meta page at block 0 followed by
// data pages of packed signature tuples. All structural changes run through
// a genericxlog.Transaction, so Index needs nothing of its own for crash
// recovery beyond replaying the WAL the usual way.
//
// Simplification versus blinsert.c: PostgreSQL updates the meta page's
// free-list pointer in a separate critical section from the data page write
// it follows, so a concurrent backend can observe the free-list without
// waiting on the data page's content lock. This package always has at most
// one Transaction in flight per Index (genericxlog.Transaction is not safe
// for concurrent use anyway), so there is no such concurrent reader to
// protect against; Insert folds both pages into one Transaction/Finish when
// it is allocating a new page.
type Index struct {
	path string
	mgr  *bufmgr.Manager
	tx   *genericxlog.Transaction
}

// Open attaches to an existing bloom index file.
func Open(path string, mgr *bufmgr.Manager, wal genericxlog.WALInserter) *Index {
	return &Index{path: path, mgr: mgr, tx: genericxlog.NewTransaction(wal)}
}

// Create initializes a new, empty bloom index at path, mirroring blbuild's
// meta-page setup when there are no rows to bulk-load yet.
func Create(path string, mgr *bufmgr.Manager, wal genericxlog.WALInserter, opts Options) (*Index, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	idx := Open(path, mgr, wal)

	if n, err := mgr.BlockCount(path); err != nil {
		return nil, err
	} else if n != 0 {
		return nil, fmt.Errorf("bloom: %s already contains data", path)
	}

	metaBuf, err := mgr.GetPage(idx.loc(metaPageBlock), true)
	if err != nil {
		return nil, err
	}

	if err := idx.tx.Start(true); err != nil {
		return nil, err
	}
	img, err := idx.tx.Register(metaBuf, true)
	if err != nil {
		idx.tx.Abort()
		return nil, err
	}
	encodeMetaPage(img, metaPageData{options: opts, notFullPage: make([]uint64, freeListCapacity)})

	if _, err := idx.tx.Finish(); err != nil {
		return nil, err
	}
	if err := mgr.FlushBuffer(metaBuf); err != nil {
		return nil, err
	}
	log.WithField("path", path).Info("bloom index created")
	return idx, nil
}

func (idx *Index) loc(block uint64) page.BlockLocation {
	return page.BlockLocation{FilePath: idx.path, BlockIndex: block}
}

func (idx *Index) readMeta() (metaPageData, *bufmgr.Buffer, error) {
	buf, err := idx.mgr.GetPage(idx.loc(metaPageBlock), false)
	if err != nil {
		return metaPageData{}, nil, err
	}
	meta, err := decodeMetaPage(buf.GetPage())
	if err != nil {
		return metaPageData{}, nil, err
	}
	return meta, buf, nil
}

func (idx *Index) writeMeta(buf *bufmgr.Buffer, meta metaPageData) error {
	if err := idx.tx.Start(true); err != nil {
		return err
	}
	img, err := idx.tx.Register(buf, false)
	if err != nil {
		idx.tx.Abort()
		return err
	}
	encodeMetaPage(img, meta)
	if _, err := idx.tx.Finish(); err != nil {
		return err
	}
	return idx.mgr.FlushBuffer(buf)
}

// Insert signs values and adds (id, signature) to the index, reusing a
// not-full data page from the meta page's free list when one is available
// and allocating a fresh page otherwise. Mirrors blinsert.
func (idx *Index) Insert(id TupleID, values [][]byte) error {
	meta, metaBuf, err := idx.readMeta()
	if err != nil {
		return err
	}
	opts := meta.options
	if len(values) != len(opts.BitsPerColumn) {
		return fmt.Errorf("bloom: index has %d columns, got %d values", len(opts.BitsPerColumn), len(values))
	}
	sign := buildSignature(opts, values)
	capacity := tuplesPerPage(opts)

	for meta.start < meta.end {
		blk := meta.notFullPage[meta.start%freeListCapacity]
		dataBuf, err := idx.mgr.GetPage(idx.loc(blk), false)
		if err != nil {
			return err
		}

		if err := idx.tx.Start(true); err != nil {
			return err
		}
		dataImg, err := idx.tx.Register(dataBuf, false)
		if err != nil {
			idx.tx.Abort()
			return err
		}
		hdr := decodeDataHeader(dataImg)

		if int(hdr.maxOffset) >= capacity {
			idx.tx.Abort()
			meta.start++
			continue
		}

		writeTuple(dataImg, opts, int(hdr.maxOffset), id, sign)
		hdr.maxOffset++
		encodeDataHeader(dataImg, hdr)

		if _, err := idx.tx.Finish(); err != nil {
			return err
		}
		if err := idx.mgr.FlushBuffer(dataBuf); err != nil {
			return err
		}

		if int(hdr.maxOffset) >= capacity {
			meta.start++
			return idx.writeMeta(metaBuf, meta)
		}
		return nil
	}

	newBlock, err := idx.mgr.BlockCount(idx.path)
	if err != nil {
		return err
	}
	dataBuf, err := idx.mgr.GetPage(idx.loc(newBlock), true)
	if err != nil {
		return err
	}

	if err := idx.tx.Start(true); err != nil {
		return err
	}
	dataImg, err := idx.tx.Register(dataBuf, true)
	if err != nil {
		idx.tx.Abort()
		return err
	}
	writeTuple(dataImg, opts, 0, id, sign)
	encodeDataHeader(dataImg, dataPageHeader{maxOffset: 1})

	metaImg, err := idx.tx.Register(metaBuf, false)
	if err != nil {
		idx.tx.Abort()
		return err
	}
	if capacity > 1 {
		meta.notFullPage[meta.end%freeListCapacity] = newBlock
		meta.end++
	}
	encodeMetaPage(metaImg, meta)

	if _, err := idx.tx.Finish(); err != nil {
		return err
	}
	if err := idx.mgr.FlushBuffer(dataBuf); err != nil {
		return err
	}
	return idx.mgr.FlushBuffer(metaBuf)
}

// Row bundles one heap tuple's identity and column values for Build.
type Row struct {
	ID     TupleID
	Values [][]byte
}

// Build bulk-loads rows into a freshly created index. Mirrors blbuild's
// overall shape (meta page first, then one tuple at a time); drops the
// single build-local page staging buffer blbuild uses to avoid registering
// a WAL record per tuple during a bulk load, since that optimization only
// affects write amplification, not the on-disk result.
func Build(path string, mgr *bufmgr.Manager, wal genericxlog.WALInserter, opts Options, rows []Row) (*Index, error) {
	idx, err := Create(path, mgr, wal, opts)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := idx.Insert(row.ID, row.Values); err != nil {
			return nil, fmt.Errorf("bloom: build: %w", err)
		}
	}
	log.WithField("rows", len(rows)).Info("bloom index build complete")
	return idx, nil
}

// Scan returns every tuple id whose signature is a superset of query's,
// i.e. every row that might match an equality probe on the non-nil columns
// of query. Like contrib/bloom, this is always a full index scan: the
// access method has no ordering and no exact lookup, only "possibly equal."
func (idx *Index) Scan(query [][]byte) ([]TupleID, error) {
	meta, _, err := idx.readMeta()
	if err != nil {
		return nil, err
	}
	opts := meta.options
	if len(query) != len(opts.BitsPerColumn) {
		return nil, fmt.Errorf("bloom: index has %d columns, got %d query values", len(opts.BitsPerColumn), len(query))
	}
	querySign := buildSignature(opts, query)

	total, err := idx.mgr.BlockCount(idx.path)
	if err != nil {
		return nil, err
	}

	var matches []TupleID
	for blk := uint64(1); blk < total; blk++ {
		buf, err := idx.mgr.GetPage(idx.loc(blk), false)
		if err != nil {
			return nil, err
		}
		img := buf.GetPage()
		hdr := decodeDataHeader(img)
		for i := 0; i < int(hdr.maxOffset); i++ {
			id, sign := readTuple(img, opts, i)
			if signatureContains(sign, querySign) {
				matches = append(matches, id)
			}
		}
	}
	return matches, nil
}
