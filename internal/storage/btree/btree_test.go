package btree

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/neuroquantum/neuroquantumdb/internal/buffer"
	"github.com/neuroquantum/neuroquantumdb/internal/common"
	"github.com/neuroquantum/neuroquantumdb/internal/storage/pager"
)

func newTestPool(t *testing.T) *buffer.Pool {
	t.Helper()
	p, err := pager.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("pager.Open: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return buffer.New(p, 256, buffer.NewLRUPolicy(), nil)
}

func newTestTree(t *testing.T, opts Options) *Tree {
	t.Helper()
	tree, _, err := Create(newTestPool(t), opts)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return tree
}

func TestInsertAndSearch(t *testing.T) {
	tree := newTestTree(t, Options{})
	if err := tree.Insert([]byte("a"), 1); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	val, ok, err := tree.Search([]byte("a"))
	if err != nil || !ok || val != 1 {
		t.Fatalf("Search(a) = (%d, %v, %v), want (1, true, nil)", val, ok, err)
	}
}

func TestSearchMissingKey(t *testing.T) {
	tree := newTestTree(t, Options{})
	_, ok, err := tree.Search([]byte("missing"))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if ok {
		t.Fatal("Search should report ok=false for a missing key")
	}
}

func TestInsertDuplicateKeyFails(t *testing.T) {
	tree := newTestTree(t, Options{})
	if err := tree.Insert([]byte("a"), 1); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	err := tree.Insert([]byte("a"), 2)
	if !errors.Is(err, common.ErrDuplicateKey) {
		t.Fatalf("Insert duplicate = %v, want ErrDuplicateKey", err)
	}
}

func TestUpsertOverwrites(t *testing.T) {
	tree := newTestTree(t, Options{})
	if err := tree.Insert([]byte("a"), 1); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tree.Upsert([]byte("a"), 42); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	val, ok, err := tree.Search([]byte("a"))
	if err != nil || !ok || val != 42 {
		t.Fatalf("Search after Upsert = (%d, %v, %v), want (42, true, nil)", val, ok, err)
	}
}

func TestInsertEmptyKeyRejected(t *testing.T) {
	tree := newTestTree(t, Options{})
	if err := tree.Insert(nil, 1); !errors.Is(err, common.ErrKeyEmpty) {
		t.Fatalf("Insert(nil) = %v, want ErrKeyEmpty", err)
	}
}

func TestDeleteRemovesKey(t *testing.T) {
	tree := newTestTree(t, Options{})
	if err := tree.Insert([]byte("a"), 1); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tree.Delete([]byte("a")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, ok, err := tree.Search([]byte("a"))
	if err != nil || ok {
		t.Fatalf("Search after Delete = (ok=%v, err=%v), want (false, nil)", ok, err)
	}
}

// TestSplitsAndMergesUnderSmallFanout drives enough inserts and deletes with
// a tiny MaxEntries to force node splits, a multi-level tree, and underflow
// rebalancing on delete — not just leaf-only behavior.
func TestSplitsAndMergesUnderSmallFanout(t *testing.T) {
	tree := newTestTree(t, Options{MaxEntries: 4})

	const n = 200
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		if err := tree.Insert(key, uint64(i)); err != nil {
			t.Fatalf("Insert %s: %v", key, err)
		}
	}
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		val, ok, err := tree.Search(key)
		if err != nil || !ok || val != uint64(i) {
			t.Fatalf("Search %s = (%d, %v, %v), want (%d, true, nil)", key, val, ok, err, i)
		}
	}

	// Delete every third key and confirm the rest survive a rebalance.
	for i := 0; i < n; i += 3 {
		key := []byte(fmt.Sprintf("key-%04d", i))
		if err := tree.Delete(key); err != nil {
			t.Fatalf("Delete %s: %v", key, err)
		}
	}
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		_, ok, err := tree.Search(key)
		if err != nil {
			t.Fatalf("Search %s after deletes: %v", key, err)
		}
		wantOK := i%3 != 0
		if ok != wantOK {
			t.Fatalf("Search %s after deletes: ok=%v, want %v", key, ok, wantOK)
		}
	}
}

func TestRangeScanOrderedAndBounded(t *testing.T) {
	tree := newTestTree(t, Options{MaxEntries: 4})
	keys := []string{"a", "b", "c", "d", "e", "f", "g"}
	for i, k := range keys {
		if err := tree.Insert([]byte(k), uint64(i)); err != nil {
			t.Fatalf("Insert %s: %v", k, err)
		}
	}

	it, err := tree.RangeScan([]byte("b"), []byte("f"))
	if err != nil {
		t.Fatalf("RangeScan: %v", err)
	}
	var got []string
	for it.Next() {
		got = append(got, string(it.Key()))
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterator error: %v", err)
	}
	want := []string{"b", "c", "d", "e"}
	if len(got) != len(want) {
		t.Fatalf("RangeScan keys = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("RangeScan keys = %v, want %v", got, want)
		}
	}
}

func TestRangeScanUnboundedSpansWholeTree(t *testing.T) {
	tree := newTestTree(t, Options{MaxEntries: 4})
	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("k%03d", i))
		if err := tree.Insert(key, uint64(i)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	it, err := tree.RangeScan(nil, nil)
	if err != nil {
		t.Fatalf("RangeScan: %v", err)
	}
	count := 0
	var prev []byte
	for it.Next() {
		if prev != nil && string(it.Key()) <= string(prev) {
			t.Fatalf("RangeScan not in ascending order at %q after %q", it.Key(), prev)
		}
		prev = append([]byte(nil), it.Key()...)
		count++
	}
	if count != 50 {
		t.Fatalf("RangeScan count = %d, want 50", count)
	}
}

func TestCompressedNodesRoundTrip(t *testing.T) {
	tree := newTestTree(t, Options{MaxEntries: 4, Compress: true})
	const n = 60
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("compressed-%04d", i))
		if err := tree.Insert(key, uint64(i)); err != nil {
			t.Fatalf("Insert %s: %v", key, err)
		}
	}
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("compressed-%04d", i))
		val, ok, err := tree.Search(key)
		if err != nil || !ok || val != uint64(i) {
			t.Fatalf("Search %s = (%d, %v, %v), want (%d, true, nil)", key, val, ok, err, i)
		}
	}
}

func TestReattachToExistingRoot(t *testing.T) {
	pool := newTestPool(t)

	tree, rootID, err := Create(pool, Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := tree.Insert([]byte("x"), 7); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	reattached := New(pool, tree.RootPageID(), Options{})
	if reattached.RootPageID() != rootID && reattached.RootPageID() != tree.RootPageID() {
		t.Fatalf("reattached root = %d", reattached.RootPageID())
	}
	val, ok, err := reattached.Search([]byte("x"))
	if err != nil || !ok || val != 7 {
		t.Fatalf("Search on reattached tree = (%d, %v, %v), want (7, true, nil)", val, ok, err)
	}
}
