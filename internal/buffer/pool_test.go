package buffer

import (
	"path/filepath"
	"testing"

	"github.com/neuroquantum/neuroquantumdb/internal/common"
	"github.com/neuroquantum/neuroquantumdb/internal/storage/page"
	"github.com/neuroquantum/neuroquantumdb/internal/storage/pager"
)

func newTestPool(t *testing.T, capacity int) (*Pool, *pager.Pager) {
	t.Helper()
	p, err := pager.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("pager.Open: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return New(p, capacity, NewLRUPolicy(), nil), p
}

func allocate(t *testing.T, p *pager.Pager) uint64 {
	t.Helper()
	pg, err := p.AllocatePage(page.TypeData)
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	return pg.PageID()
}

func TestAutoTuneCapacityClampsToBounds(t *testing.T) {
	if got := AutoTuneCapacity(0); got != MinFrames {
		t.Fatalf("AutoTuneCapacity(0) = %d, want %d", got, MinFrames)
	}
	if got := AutoTuneCapacity(1 << 62); got != MaxFrames {
		t.Fatalf("AutoTuneCapacity(huge) = %d, want %d", got, MaxFrames)
	}
}

func TestFetchPageMissThenHit(t *testing.T) {
	pool, pg := newTestPool(t, 10)
	id := allocate(t, pg)

	if _, err := pool.FetchPage(id); err != nil {
		t.Fatalf("FetchPage (miss): %v", err)
	}
	if _, err := pool.FetchPage(id); err != nil {
		t.Fatalf("FetchPage (hit): %v", err)
	}
	stats := pool.Stats()
	if stats.CacheMisses != 1 || stats.CacheHits != 1 {
		t.Fatalf("Stats = %+v, want 1 miss and 1 hit", stats)
	}
}

func TestUnpinRejectsNonResidentPage(t *testing.T) {
	pool, _ := newTestPool(t, 10)
	err := pool.UnpinPage(999, false)
	if kind, ok := common.KindOf(err); !ok || kind != common.KindInvalidInput {
		t.Fatalf("UnpinPage error kind = (%v, %v), want (%v, true)", kind, ok, common.KindInvalidInput)
	}
}

func TestUnpinRejectsOverUnpin(t *testing.T) {
	pool, pg := newTestPool(t, 10)
	id := allocate(t, pg)
	if _, err := pool.FetchPage(id); err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if err := pool.UnpinPage(id, false); err != nil {
		t.Fatalf("UnpinPage: %v", err)
	}
	err := pool.UnpinPage(id, false)
	if kind, ok := common.KindOf(err); !ok || kind != common.KindInvalidInput {
		t.Fatalf("second UnpinPage error kind = (%v, %v), want (%v, true)", kind, ok, common.KindInvalidInput)
	}
}

func TestEvictionSkipsPinnedPages(t *testing.T) {
	pool, pg := newTestPool(t, 1)
	pinned := allocate(t, pg)
	if _, err := pool.FetchPage(pinned); err != nil {
		t.Fatalf("FetchPage pinned: %v", err)
	}
	// still pinned; fetching a second page should fail since nothing is evictable
	other := allocate(t, pg)
	_, err := pool.FetchPage(other)
	if kind, ok := common.KindOf(err); !ok || kind != common.KindConcurrencyError {
		t.Fatalf("FetchPage with no evictable frame error kind = (%v, %v), want (%v, true)", kind, ok, common.KindConcurrencyError)
	}
}

func TestEvictionReplacesUnpinnedPage(t *testing.T) {
	pool, pg := newTestPool(t, 1)
	first := allocate(t, pg)
	if _, err := pool.FetchPage(first); err != nil {
		t.Fatalf("FetchPage first: %v", err)
	}
	if err := pool.UnpinPage(first, false); err != nil {
		t.Fatalf("UnpinPage: %v", err)
	}

	second := allocate(t, pg)
	if _, err := pool.FetchPage(second); err != nil {
		t.Fatalf("FetchPage second after eviction: %v", err)
	}
	stats := pool.Stats()
	if stats.NumPages != 1 {
		t.Fatalf("NumPages = %d, want 1 (capacity is 1)", stats.NumPages)
	}
}

func TestFlushPageWritesDirtyPageThroughPager(t *testing.T) {
	pool, pg := newTestPool(t, 10)
	id := allocate(t, pg)
	fetched, err := pool.FetchPage(id)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	fetched.SetPayload([]byte("dirty content"))
	if err := pool.UnpinPage(id, true); err != nil {
		t.Fatalf("UnpinPage: %v", err)
	}
	if err := pool.FlushPage(id); err != nil {
		t.Fatalf("FlushPage: %v", err)
	}

	onDisk, err := pg.ReadPage(id)
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if string(onDisk.Payload()[:13]) != "dirty content" {
		t.Fatalf("on-disk payload = %q, want %q", onDisk.Payload()[:13], "dirty content")
	}
}

func TestDirtyCountTracksUnflushedPages(t *testing.T) {
	pool, pg := newTestPool(t, 10)
	id := allocate(t, pg)
	fetched, err := pool.FetchPage(id)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	fetched.SetPayload([]byte("x"))
	if err := pool.UnpinPage(id, true); err != nil {
		t.Fatalf("UnpinPage: %v", err)
	}
	if pool.DirtyCount() != 1 {
		t.Fatalf("DirtyCount = %d, want 1", pool.DirtyCount())
	}
	if err := pool.FlushAll(); err != nil {
		t.Fatalf("FlushAll: %v", err)
	}
	if pool.DirtyCount() != 0 {
		t.Fatalf("DirtyCount after FlushAll = %d, want 0", pool.DirtyCount())
	}
}

func TestAllocatePageReturnsPinnedResidentFrame(t *testing.T) {
	pool, pg := newTestPool(t, 10)
	allocated, err := pool.AllocatePage(page.TypeData)
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	allocated.SetPayload([]byte("fresh"))
	if err := pool.UnpinPage(allocated.PageID(), true); err != nil {
		t.Fatalf("UnpinPage: %v", err)
	}
	if err := pool.FlushPage(allocated.PageID()); err != nil {
		t.Fatalf("FlushPage: %v", err)
	}
	onDisk, err := pg.ReadPage(allocated.PageID())
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if string(onDisk.Payload()[:5]) != "fresh" {
		t.Fatalf("on-disk payload = %q, want %q", onDisk.Payload()[:5], "fresh")
	}
}

func TestFreePageEvictsResidentFrame(t *testing.T) {
	pool, pg := newTestPool(t, 10)
	id := allocate(t, pg)
	if _, err := pool.FetchPage(id); err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if err := pool.UnpinPage(id, false); err != nil {
		t.Fatalf("UnpinPage: %v", err)
	}
	if err := pool.FreePage(id); err != nil {
		t.Fatalf("FreePage: %v", err)
	}
	if pool.Stats().NumPages != 0 {
		t.Fatalf("NumPages after FreePage = %d, want 0", pool.Stats().NumPages)
	}
}
