package common

import (
	"errors"
	"testing"
)

func TestNewError(t *testing.T) {
	err := New(KindNotFound, "table %s missing", "users")
	if err.Kind != KindNotFound {
		t.Fatalf("Kind = %v, want %v", err.Kind, KindNotFound)
	}
	if err.Retriable {
		t.Fatal("New() should not be retriable")
	}
	want := "not_found: table users missing"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindIOError, cause, "flushing page %d", 7)
	if !errors.Is(err, cause) {
		t.Fatal("errors.Is should see through Wrap to the cause")
	}
	if errors.Unwrap(err) != cause {
		t.Fatal("Unwrap should return the original cause")
	}
}

func TestRetryMarksRetriable(t *testing.T) {
	err := Retry(KindConcurrencyError, "deadlock detected, aborting txn %d", 3)
	if !err.Retriable {
		t.Fatal("Retry() should mark the error retriable")
	}
}

func TestErrorIsMatchesByKindOnly(t *testing.T) {
	a := New(KindNotFound, "a")
	b := New(KindNotFound, "totally different message")
	c := New(KindIOError, "a")

	if !errors.Is(a, b) {
		t.Fatal("two errors of the same Kind should match via Is, regardless of message")
	}
	if errors.Is(a, c) {
		t.Fatal("errors of different Kind should not match via Is")
	}
}

func TestKindOf(t *testing.T) {
	err := New(KindAlreadyExists, "dup")
	kind, ok := KindOf(err)
	if !ok || kind != KindAlreadyExists {
		t.Fatalf("KindOf = (%v, %v), want (%v, true)", kind, ok, KindAlreadyExists)
	}

	_, ok = KindOf(errors.New("plain error"))
	if ok {
		t.Fatal("KindOf should report false for a non-*Error")
	}
}

func TestKindOfThroughWrappedStandardError(t *testing.T) {
	inner := New(KindCorruptState, "bad checksum")
	outer := errors.Join(errors.New("context"), inner)
	kind, ok := KindOf(outer)
	if !ok || kind != KindCorruptState {
		t.Fatalf("KindOf through errors.Join = (%v, %v), want (%v, true)", kind, ok, KindCorruptState)
	}
}
