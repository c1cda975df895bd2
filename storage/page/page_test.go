package page

import "testing"

func TestSetAndGetLSN(t *testing.T) {
	var p Page
	SetLSN(&p, LSN(0x0102030405060708))
	if got := GetLSN(&p); got != LSN(0x0102030405060708) {
		t.Fatalf("expected LSN to round-trip, got %x", got)
	}
}

func TestZeroPageHasInvalidLSN(t *testing.T) {
	var p Page
	if got := GetLSN(&p); got != Invalid {
		t.Fatalf("expected a fresh zero page to read back Invalid, got %d", got)
	}
}

func TestBlockLocationString(t *testing.T) {
	loc := BlockLocation{FilePath: "rel.dat", BlockIndex: 5}
	if got, want := loc.String(), "rel.dat:5"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
