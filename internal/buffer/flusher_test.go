package buffer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/neuroquantum/neuroquantumdb/internal/storage/page"
	"github.com/neuroquantum/neuroquantumdb/internal/storage/pager"
	"github.com/rs/zerolog"
)

func TestFlusherFlushesOnceDirtyCrossesMaxDirty(t *testing.T) {
	p, err := pager.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("pager.Open: %v", err)
	}
	defer p.Close()

	pool := New(p, 10, NewLRUPolicy(), nil)
	pool.maxDirty = 1 // force the flusher to trip on a single dirty page

	pg, err := p.AllocatePage(page.TypeData)
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	fetched, err := pool.FetchPage(pg.PageID())
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	fetched.SetPayload([]byte("flush me"))
	if err := pool.UnpinPage(pg.PageID(), true); err != nil {
		t.Fatalf("UnpinPage: %v", err)
	}

	f := NewFlusher(pool, 5*time.Millisecond, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	deadline := time.After(200 * time.Millisecond)
	for pool.DirtyCount() != 0 {
		select {
		case <-deadline:
			t.Fatal("flusher never cleared the dirty page in time")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestSupervisorStopWaitsForFlusherExit(t *testing.T) {
	p, err := pager.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("pager.Open: %v", err)
	}
	defer p.Close()

	pool := New(p, 10, NewLRUPolicy(), nil)
	f := NewFlusher(pool, 5*time.Millisecond, zerolog.Nop())
	sup := StartSupervisor(context.Background(), f)
	if err := sup.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
