package membind

import (
	"testing"

	"github.com/openxvc/xvcd/internal/regio"
)

func TestMemReadWrite(t *testing.T) {
	b := New(regio.OpenBytes(make([]byte, 64)), 0xcafe)

	if err := b.memWrite(0x10, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("memWrite error: %v", err)
	}

	got, err := b.memRead(0x10, 4)
	if err != nil {
		t.Fatalf("memRead error: %v", err)
	}
	if string(got) != string([]byte{1, 2, 3, 4}) {
		t.Fatalf("memRead = %v, want [1 2 3 4]", got)
	}
}

func TestMemReadOutOfBounds(t *testing.T) {
	b := New(regio.OpenBytes(make([]byte, 16)), 0)
	if _, err := b.memRead(12, 8); err == nil {
		t.Fatal("expected out-of-bounds memRead to error")
	}
}

func TestMemWriteOutOfBounds(t *testing.T) {
	b := New(regio.OpenBytes(make([]byte, 16)), 0)
	if err := b.memWrite(12, []byte{1, 2, 3, 4, 5, 6, 7, 8}); err == nil {
		t.Fatal("expected out-of-bounds memWrite to error")
	}
}

func TestIdcode(t *testing.T) {
	b := New(regio.OpenBytes(make([]byte, 16)), 0xcafe)
	if got := b.Idcode(); got != 0xcafe {
		t.Fatalf("Idcode() = 0x%x, want 0xcafe", got)
	}
}
