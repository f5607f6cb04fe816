package page

import (
	"testing"

	"github.com/neuroquantum/neuroquantumdb/internal/common"
)

func TestNewPageRoundTripsHeader(t *testing.T) {
	p := New(42, TypeBTreeLeaf)
	if p.PageID() != 42 {
		t.Fatalf("PageID() = %d, want 42", p.PageID())
	}
	if p.Type() != TypeBTreeLeaf {
		t.Fatalf("Type() = %v, want %v", p.Type(), TypeBTreeLeaf)
	}
	if p.LSN() != 0 {
		t.Fatalf("LSN() = %d, want 0", p.LSN())
	}
	if !p.VerifyChecksum() {
		t.Fatal("freshly created page should verify its own checksum")
	}
}

func TestSetPayloadUpdatesChecksum(t *testing.T) {
	p := New(1, TypeData)
	p.SetPayload([]byte("hello"))
	if !p.VerifyChecksum() {
		t.Fatal("checksum should verify after SetPayload")
	}
	got := p.Payload()[:5]
	if string(got) != "hello" {
		t.Fatalf("Payload() = %q, want %q", got, "hello")
	}
	// the rest of the payload must be zeroed
	for i, b := range p.Payload()[5:] {
		if b != 0 {
			t.Fatalf("payload byte %d = %d, want 0", i+5, b)
		}
	}
}

func TestSetPayloadPanicsOnOversize(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("SetPayload should panic when payload exceeds PayloadCapacity")
		}
	}()
	p := New(1, TypeData)
	p.SetPayload(make([]byte, PayloadCapacity+1))
}

func TestSetLSNRejectsNonMonotone(t *testing.T) {
	p := New(1, TypeData)
	p.SetLSN(10)
	defer func() {
		if recover() == nil {
			t.Fatal("SetLSN should panic on a decreasing LSN")
		}
	}()
	p.SetLSN(5)
}

func TestForceLSNBypassesMonotonicity(t *testing.T) {
	p := New(1, TypeData)
	p.SetLSN(10)
	p.ForceLSN(3) // recovery path: must not panic
	if p.LSN() != 3 {
		t.Fatalf("LSN() = %d, want 3", p.LSN())
	}
}

func TestLoadDetectsCorruption(t *testing.T) {
	p := New(7, TypeData)
	p.SetPayload([]byte("payload"))
	raw := p.Bytes()

	corrupted := make([]byte, Size)
	copy(corrupted, raw)
	corrupted[HeaderSize] ^= 0xFF // flip a payload byte without updating the checksum

	_, err := Load(corrupted)
	if err == nil {
		t.Fatal("Load should reject a page whose checksum no longer matches")
	}
	kind, ok := common.KindOf(err)
	if !ok || kind != common.KindCorruptState {
		t.Fatalf("Load error kind = (%v, %v), want (%v, true)", kind, ok, common.KindCorruptState)
	}
}

func TestLoadRejectsWrongSize(t *testing.T) {
	_, err := Load(make([]byte, Size-1))
	if err == nil {
		t.Fatal("Load should reject a buffer that isn't exactly Size bytes")
	}
}

func TestLoadRoundTrip(t *testing.T) {
	p := New(99, TypeBTreeInternal)
	p.SetPayload([]byte("round trip me"))
	loaded, err := Load(p.Bytes())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.PageID() != 99 || loaded.Type() != TypeBTreeInternal {
		t.Fatalf("loaded page header mismatch: id=%d type=%v", loaded.PageID(), loaded.Type())
	}
}

func TestCloneIsIndependent(t *testing.T) {
	p := New(1, TypeData)
	p.SetPayload([]byte("original"))
	clone := p.Clone()
	clone.SetPayload([]byte("changed"))
	if string(p.Payload()[:8]) != "original" {
		t.Fatal("mutating a clone should not affect the original page")
	}
}
