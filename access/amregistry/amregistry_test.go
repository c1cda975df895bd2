package amregistry

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := Open(filepath.Join(t.TempDir(), "pg_am.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { reg.Close() })
	return reg
}

func bloomHandler() Routine {
	return Routine{Name: "bloom", CanMultiCol: true, AmOptionalKey: true}
}

func TestCreateLookupRoundTrip(t *testing.T) {
	reg := newTestRegistry(t)
	reg.RegisterHandler("bloom", bloomHandler)

	id, err := reg.Create("my_idx", "bloom")
	if err != nil {
		t.Fatal(err)
	}
	if id == uuid.Nil {
		t.Fatal("expected a non-nil access method id")
	}

	routine, err := reg.Lookup("my_idx")
	if err != nil {
		t.Fatal(err)
	}
	if routine.ID != id {
		t.Fatalf("expected looked-up routine id %s, got %s", id, routine.ID)
	}
	if routine.Name != "bloom" || !routine.CanMultiCol {
		t.Fatalf("unexpected routine: %+v", routine)
	}
}

func TestCreateRejectsUnknownHandler(t *testing.T) {
	reg := newTestRegistry(t)
	if _, err := reg.Create("my_idx", "nonexistent"); err == nil {
		t.Fatal("expected an error for an unregistered handler")
	}
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	reg := newTestRegistry(t)
	reg.RegisterHandler("bloom", bloomHandler)

	if _, err := reg.Create("my_idx", "bloom"); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Create("my_idx", "bloom"); err == nil {
		t.Fatal("expected an error creating a duplicate access method name")
	}
}

func TestRemoveAndList(t *testing.T) {
	reg := newTestRegistry(t)
	reg.RegisterHandler("bloom", bloomHandler)

	if _, err := reg.Create("idx_a", "bloom"); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Create("idx_b", "bloom"); err != nil {
		t.Fatal(err)
	}

	names, err := reg.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 registered access methods, got %v", names)
	}

	if err := reg.Remove("idx_a"); err != nil {
		t.Fatal(err)
	}
	if err := reg.Remove("idx_a"); err == nil {
		t.Fatal("expected an error removing an already-removed access method")
	}

	names, err = reg.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "idx_b" {
		t.Fatalf("expected only idx_b to remain, got %v", names)
	}
}

func TestLookupUnknownName(t *testing.T) {
	reg := newTestRegistry(t)
	if _, err := reg.Lookup("missing"); err == nil {
		t.Fatal("expected an error looking up an unregistered access method")
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pg_am.db")

	reg, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	reg.RegisterHandler("bloom", bloomHandler)
	if _, err := reg.Create("durable_idx", "bloom"); err != nil {
		t.Fatal(err)
	}
	if err := reg.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	reopened.RegisterHandler("bloom", bloomHandler)

	names, err := reopened.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "durable_idx" {
		t.Fatalf("expected durable_idx to survive reopen, got %v", names)
	}
}
