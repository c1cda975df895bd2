package bloom

import (
	"path/filepath"
	"testing"

	"pageengine/storage/bufmgr"
	"pageengine/storage/walio"
)

func newTestStack(t *testing.T) (*bufmgr.Manager, *walio.Writer) {
	t.Helper()
	mgr := bufmgr.New(64)
	wal, err := walio.New(walio.Config{
		LogsDir:   filepath.Join(t.TempDir(), "wal"),
		BlockSize: 8192,
		LogSize:   16,
	})
	if err != nil {
		t.Fatal(err)
	}
	return mgr, wal
}

func TestOptionsValidate(t *testing.T) {
	valid := DefaultOptions(2)
	if err := valid.validate(); err != nil {
		t.Fatalf("expected default options to validate, got %v", err)
	}

	noColumns := Options{SignWords: 5}
	if err := noColumns.validate(); err == nil {
		t.Fatal("expected an error for zero columns")
	}

	tooManyColumns := Options{SignWords: 5, BitsPerColumn: make([]int, maxColumns+1)}
	if err := tooManyColumns.validate(); err == nil {
		t.Fatal("expected an error for too many columns")
	}

	zeroSignWords := Options{SignWords: 0, BitsPerColumn: []int{2}}
	if err := zeroSignWords.validate(); err == nil {
		t.Fatal("expected an error for zero sign words")
	}
}

func TestCreateRefusesNonEmptyFile(t *testing.T) {
	mgr, wal := newTestStack(t)
	path := filepath.Join(t.TempDir(), "idx.bloom")

	if _, err := Create(path, mgr, wal, DefaultOptions(1)); err != nil {
		t.Fatal(err)
	}
	if _, err := Create(path, mgr, wal, DefaultOptions(1)); err == nil {
		t.Fatal("expected Create to refuse an already-populated file")
	}
}

func TestInsertAndScanSingleColumn(t *testing.T) {
	mgr, wal := newTestStack(t)
	path := filepath.Join(t.TempDir(), "idx.bloom")

	idx, err := Create(path, mgr, wal, DefaultOptions(1))
	if err != nil {
		t.Fatal(err)
	}

	rows := []Row{
		{ID: TupleID{BlockIndex: 1, Offset: 1}, Values: [][]byte{[]byte("alice")}},
		{ID: TupleID{BlockIndex: 1, Offset: 2}, Values: [][]byte{[]byte("bob")}},
		{ID: TupleID{BlockIndex: 2, Offset: 1}, Values: [][]byte{[]byte("carol")}},
	}
	for _, r := range rows {
		if err := idx.Insert(r.ID, r.Values); err != nil {
			t.Fatal(err)
		}
	}

	matches, err := idx.Scan([][]byte{[]byte("bob")})
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, m := range matches {
		if m == (TupleID{BlockIndex: 1, Offset: 2}) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the bob tuple among matches, got %+v", matches)
	}
}

func TestBuildBulkLoadsAllRows(t *testing.T) {
	mgr, wal := newTestStack(t)
	path := filepath.Join(t.TempDir(), "idx.bloom")
	opts := DefaultOptions(2)

	var rows []Row
	for i := 0; i < 300; i++ {
		rows = append(rows, Row{
			ID:     TupleID{BlockIndex: uint64(i), Offset: uint16(i % 10)},
			Values: [][]byte{[]byte("a"), nil},
		})
	}

	idx, err := Build(path, mgr, wal, opts, rows)
	if err != nil {
		t.Fatal(err)
	}

	matches, err := idx.Scan([][]byte{[]byte("a"), nil})
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) < len(rows) {
		t.Fatalf("expected at least %d matches (no false negatives), got %d", len(rows), len(matches))
	}
}

func TestSignatureContains(t *testing.T) {
	haystack := []byte{0b1111, 0b0000}
	needle := []byte{0b0101, 0b0000}
	if !signatureContains(haystack, needle) {
		t.Fatal("expected haystack to contain needle")
	}
	missingBit := []byte{0b1000, 0b0001}
	if signatureContains(haystack, missingBit) {
		t.Fatal("expected haystack not to contain a needle with an unset bit")
	}
}

func TestInsertRejectsWrongColumnCount(t *testing.T) {
	mgr, wal := newTestStack(t)
	path := filepath.Join(t.TempDir(), "idx.bloom")

	idx, err := Create(path, mgr, wal, DefaultOptions(2))
	if err != nil {
		t.Fatal(err)
	}
	err = idx.Insert(TupleID{}, [][]byte{[]byte("only one")})
	if err == nil {
		t.Fatal("expected an error inserting the wrong number of column values")
	}
}
