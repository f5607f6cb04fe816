package wal

import (
	"testing"
)

func openTemp(t *testing.T, maxSegmentSize int64) *WAL {
	t.Helper()
	w, err := Open(t.TempDir(), maxSegmentSize)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func TestAppendAndIterateFrom(t *testing.T) {
	w := openTemp(t, DefaultMaxSegmentSize)

	records := []Record{
		{LSN: 1, TxnID: 1, Kind: KindBegin, PageID: 1},
		{LSN: 2, TxnID: 1, Kind: KindUpdate, PageID: 1, BeforeImage: []byte("before"), AfterImage: []byte("after")},
		{LSN: 3, TxnID: 1, Kind: KindCommit, PageID: 1},
	}
	for _, r := range records {
		if err := w.Append(r); err != nil {
			t.Fatalf("Append lsn %d: %v", r.LSN, err)
		}
	}
	if err := w.SyncThrough(3); err != nil {
		t.Fatalf("SyncThrough: %v", err)
	}

	it, err := w.IterateFrom(0)
	if err != nil {
		t.Fatalf("IterateFrom: %v", err)
	}
	defer it.Close()

	var got []Record
	for it.Next() {
		got = append(got, it.Record())
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterator error: %v", err)
	}
	if len(got) != len(records) {
		t.Fatalf("got %d records, want %d", len(got), len(records))
	}
	for i, r := range got {
		if r.LSN != records[i].LSN || r.Kind != records[i].Kind {
			t.Fatalf("record %d = %+v, want %+v", i, r, records[i])
		}
	}
	if string(got[1].BeforeImage) != "before" || string(got[1].AfterImage) != "after" {
		t.Fatalf("record 1 images = %q/%q", got[1].BeforeImage, got[1].AfterImage)
	}
}

func TestIterateFromSkipsOlderLSNs(t *testing.T) {
	w := openTemp(t, DefaultMaxSegmentSize)
	for lsn := uint64(1); lsn <= 5; lsn++ {
		if err := w.Append(Record{LSN: lsn, Kind: KindUpdate}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	it, err := w.IterateFrom(3)
	if err != nil {
		t.Fatalf("IterateFrom: %v", err)
	}
	defer it.Close()

	var lsns []uint64
	for it.Next() {
		lsns = append(lsns, it.Record().LSN)
	}
	want := []uint64{3, 4, 5}
	if len(lsns) != len(want) {
		t.Fatalf("lsns = %v, want %v", lsns, want)
	}
	for i := range want {
		if lsns[i] != want[i] {
			t.Fatalf("lsns = %v, want %v", lsns, want)
		}
	}
}

func TestSegmentRollover(t *testing.T) {
	// A tiny max segment size forces a roll after the first record.
	w := openTemp(t, recordHeaderSize+8)

	if err := w.Append(Record{LSN: 1, Kind: KindUpdate, AfterImage: []byte("1234")}); err != nil {
		t.Fatalf("Append 1: %v", err)
	}
	if err := w.Append(Record{LSN: 2, Kind: KindUpdate, AfterImage: []byte("5678")}); err != nil {
		t.Fatalf("Append 2: %v", err)
	}

	it, err := w.IterateFrom(0)
	if err != nil {
		t.Fatalf("IterateFrom: %v", err)
	}
	defer it.Close()
	count := 0
	for it.Next() {
		count++
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterator error across rolled segments: %v", err)
	}
	if count != 2 {
		t.Fatalf("count across rolled segments = %d, want 2", count)
	}
}

func TestReopenPositionsAtNewestSegment(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, DefaultMaxSegmentSize)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := w.Append(Record{LSN: 1, Kind: KindUpdate}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(dir, DefaultMaxSegmentSize)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if err := reopened.Append(Record{LSN: 2, Kind: KindUpdate}); err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}

	it, err := reopened.IterateFrom(0)
	if err != nil {
		t.Fatalf("IterateFrom: %v", err)
	}
	defer it.Close()
	var lsns []uint64
	for it.Next() {
		lsns = append(lsns, it.Record().LSN)
	}
	if len(lsns) != 2 || lsns[0] != 1 || lsns[1] != 2 {
		t.Fatalf("lsns after reopen = %v, want [1 2]", lsns)
	}
}

func TestCheckpointAppendsRecord(t *testing.T) {
	w := openTemp(t, DefaultMaxSegmentSize)
	if err := w.Checkpoint(42); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	it, err := w.IterateFrom(0)
	if err != nil {
		t.Fatalf("IterateFrom: %v", err)
	}
	defer it.Close()
	if !it.Next() {
		t.Fatal("expected a checkpoint record")
	}
	if it.Record().Kind != KindCheckpoint {
		t.Fatalf("Kind = %v, want KindCheckpoint", it.Record().Kind)
	}
}
