// Package wal implements the segmented, ARIES-style write-ahead log: the
// durability boundary every storage mutation must cross before its effect
// is visible to a reader (spec §4.B).
package wal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/neuroquantum/neuroquantumdb/internal/common"
)

// Kind enumerates the ARIES log record types (spec §4.B).
type Kind byte

const (
	KindBegin Kind = iota
	KindUpdate
	KindCommit
	KindAbort
	KindCheckpoint
)

// DefaultMaxSegmentSize is the rollover threshold for a WAL segment file
// (spec §4.B: default 16 MiB).
const DefaultMaxSegmentSize = 16 * 1024 * 1024

// segmentFilePattern names segment files wal_{segment_index:020}.log,
// zero-padded to 20 digits so lexical and numeric ordering agree.
const segmentFilePattern = "wal_%020d.log"

// Record is one physical-plus-logical WAL entry: the page a mutation
// touched, its image before and after, tagged with the transaction and
// kind that produced it (spec §4.B).
type Record struct {
	LSN         uint64
	TxnID       uint64
	Kind        Kind
	PageID      uint64
	BeforeImage []byte
	AfterImage  []byte
}

// recordHeaderSize is the fixed portion preceding the variable-length
// before/after images: LSN(8) TxnID(8) Kind(1) PageID(8) BeforeLen(4)
// AfterLen(4).
const recordHeaderSize = 8 + 8 + 1 + 8 + 4 + 4

func encodeRecord(r Record) []byte {
	size := recordHeaderSize + len(r.BeforeImage) + len(r.AfterImage) + 4 // + checksum
	buf := make([]byte, size)
	binary.BigEndian.PutUint64(buf[0:8], r.LSN)
	binary.BigEndian.PutUint64(buf[8:16], r.TxnID)
	buf[16] = byte(r.Kind)
	binary.BigEndian.PutUint64(buf[17:25], r.PageID)
	binary.BigEndian.PutUint32(buf[25:29], uint32(len(r.BeforeImage)))
	binary.BigEndian.PutUint32(buf[29:33], uint32(len(r.AfterImage)))
	off := recordHeaderSize
	off += copy(buf[off:], r.BeforeImage)
	off += copy(buf[off:], r.AfterImage)
	h := crc32.NewIEEE()
	h.Write(buf[:off])
	binary.BigEndian.PutUint32(buf[off:], h.Sum32())
	return buf
}

// decodeRecord parses a single record from a reader, returning io.EOF if no
// more bytes remain, io.ErrUnexpectedEOF if the fixed header is cut short,
// and a KindCorruptState error if the checksum fails or the body or checksum
// is truncated (spec §4.B: a torn final write is a recovery
// stop-point, not a fatal error for the segment as a whole).
func decodeRecord(r *bufio.Reader) (Record, int, error) {
	header := make([]byte, recordHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return Record{}, 0, err
	}
	rec := Record{
		LSN:    binary.BigEndian.Uint64(header[0:8]),
		TxnID:  binary.BigEndian.Uint64(header[8:16]),
		Kind:   Kind(header[16]),
		PageID: binary.BigEndian.Uint64(header[17:25]),
	}
	beforeLen := binary.BigEndian.Uint32(header[25:29])
	afterLen := binary.BigEndian.Uint32(header[29:33])

	body := make([]byte, int(beforeLen)+int(afterLen))
	if _, err := io.ReadFull(r, body); err != nil {
		return Record{}, 0, common.New(common.KindCorruptState, "wal: truncated record body: %v", err)
	}
	rec.BeforeImage = body[:beforeLen]
	rec.AfterImage = body[beforeLen:]

	checksumBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, checksumBuf); err != nil {
		return Record{}, 0, common.New(common.KindCorruptState, "wal: truncated record checksum: %v", err)
	}
	want := binary.BigEndian.Uint32(checksumBuf)

	h := crc32.NewIEEE()
	h.Write(header)
	h.Write(body)
	if h.Sum32() != want {
		return Record{}, 0, common.New(common.KindCorruptState, "wal: checksum mismatch at lsn %d", rec.LSN)
	}

	total := recordHeaderSize + len(body) + 4
	return rec, total, nil
}

// WAL manages an ordered sequence of segment files in a directory.
type WAL struct {
	mu             sync.Mutex
	dir            string
	maxSegmentSize int64

	segmentIndex int64
	file         *os.File
	offset       int64
}

// Open opens (or creates) the WAL directory, positioning at the end of the
// newest segment.
func Open(dir string, maxSegmentSize int64) (*WAL, error) {
	if maxSegmentSize <= 0 {
		maxSegmentSize = DefaultMaxSegmentSize
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, common.Wrap(common.KindIOError, err, "create wal dir")
	}
	w := &WAL{dir: dir, maxSegmentSize: maxSegmentSize}

	indices, err := segmentIndices(dir)
	if err != nil {
		return nil, err
	}
	if len(indices) == 0 {
		if err := w.openSegment(0, true); err != nil {
			return nil, err
		}
		return w, nil
	}
	last := indices[len(indices)-1]
	if err := w.openSegment(last, false); err != nil {
		return nil, err
	}
	return w, nil
}

func segmentIndices(dir string) ([]int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, common.Wrap(common.KindIOError, err, "list wal dir")
	}
	var indices []int64
	for _, e := range entries {
		var idx int64
		if _, err := fmt.Sscanf(e.Name(), "wal_%020d.log", &idx); err == nil {
			indices = append(indices, idx)
		}
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	return indices, nil
}

func segmentPath(dir string, idx int64) string {
	return filepath.Join(dir, fmt.Sprintf(segmentFilePattern, idx))
}

func (w *WAL) openSegment(idx int64, create bool) error {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE | os.O_EXCL
	} else {
		flags |= os.O_CREATE
	}
	file, err := os.OpenFile(segmentPath(w.dir, idx), flags, 0600)
	if err != nil {
		return common.Wrap(common.KindIOError, err, "open wal segment %d", idx)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return common.Wrap(common.KindIOError, err, "stat wal segment %d", idx)
	}
	w.file = file
	w.segmentIndex = idx
	w.offset = stat.Size()
	return nil
}

func (w *WAL) rollIfNeeded(nextLen int64) error {
	if w.offset+nextLen <= w.maxSegmentSize {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		return common.Wrap(common.KindIOError, err, "fsync wal segment before roll")
	}
	if err := w.file.Close(); err != nil {
		return common.Wrap(common.KindIOError, err, "close wal segment before roll")
	}
	return w.openSegment(w.segmentIndex+1, true)
}

// Append writes a record to the current segment, rolling to a new segment
// first if it would not fit. It does not fsync; durability is established
// by SyncThrough (spec §4.B: "fsync-before-commit").
func (w *WAL) Append(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	encoded := encodeRecord(rec)
	if err := w.rollIfNeeded(int64(len(encoded))); err != nil {
		return err
	}
	n, err := w.file.WriteAt(encoded, w.offset)
	if err != nil {
		return common.Wrap(common.KindIOError, err, "append wal record lsn %d", rec.LSN)
	}
	w.offset += int64(n)
	return nil
}

// SyncThrough fsyncs the current segment file, establishing durability for
// every record appended so far (spec §4.B: commit must not return success
// until its record, and everything before it, is fsynced).
func (w *WAL) SyncThrough(_ uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Sync(); err != nil {
		return common.Wrap(common.KindIOError, err, "fsync wal")
	}
	return nil
}

// Checkpoint fsyncs everything appended so far, then appends a Checkpoint
// record carrying lsn. It returns only an error; the appended record itself
// is not fsynced by this call.
func (w *WAL) Checkpoint(lsn uint64) error {
	if err := w.SyncThrough(lsn); err != nil {
		return err
	}
	return w.Append(Record{LSN: lsn, Kind: KindCheckpoint})
}

// Close fsyncs and closes the current segment.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Sync(); err != nil {
		return common.Wrap(common.KindIOError, err, "fsync wal on close")
	}
	if err := w.file.Close(); err != nil {
		return common.Wrap(common.KindIOError, err, "close wal on close")
	}
	return nil
}

// Iterator streams records across segments in LSN order starting at the
// first record with LSN >= from (spec §4.B recovery scan).
type Iterator struct {
	dir     string
	indices []int64
	segPos  int
	from    uint64

	file   *os.File
	reader *bufio.Reader
	done   bool

	cur Record
	err error
}

// IterateFrom returns an Iterator over every segment in the directory,
// skipping records whose LSN is below from.
func (w *WAL) IterateFrom(from uint64) (*Iterator, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	// Ensure a reader sees everything written so far.
	if err := w.file.Sync(); err != nil {
		return nil, common.Wrap(common.KindIOError, err, "fsync wal before scan")
	}
	indices, err := segmentIndices(w.dir)
	if err != nil {
		return nil, err
	}
	it := &Iterator{dir: w.dir, indices: indices, from: from}
	if err := it.openNextSegment(); err != nil && err != io.EOF {
		return nil, err
	}
	return it, nil
}

func (it *Iterator) openNextSegment() error {
	if it.file != nil {
		it.file.Close()
		it.file = nil
	}
	if it.segPos >= len(it.indices) {
		it.done = true
		return io.EOF
	}
	idx := it.indices[it.segPos]
	it.segPos++
	file, err := os.Open(segmentPath(it.dir, idx))
	if err != nil {
		return common.Wrap(common.KindIOError, err, "open wal segment %d for scan", idx)
	}
	it.file = file
	it.reader = bufio.NewReader(file)
	return nil
}

// Next advances the iterator. It returns false when the log is exhausted or
// an error occurred (check Err).
func (it *Iterator) Next() bool {
	for {
		if it.done {
			return false
		}
		rec, _, err := decodeRecord(it.reader)
		if err == io.EOF {
			if openErr := it.openNextSegment(); openErr != nil {
				return false
			}
			continue
		}
		if err != nil {
			it.err = err
			it.done = true
			return false
		}
		if rec.LSN < it.from {
			continue
		}
		it.cur = rec
		return true
	}
}

func (it *Iterator) Record() Record { return it.cur }

func (it *Iterator) Err() error { return it.err }

func (it *Iterator) Close() error {
	if it.file != nil {
		return it.file.Close()
	}
	return nil
}
