// Package pager implements the fixed-size page file: allocation, the
// free list, checksum-verified reads, and fsync (spec §4.A). It performs
// no caching of its own — caching, pinning and eviction belong to the
// buffer pool (spec §4.E), which wraps a Pager.
package pager

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/neuroquantum/neuroquantumdb/internal/common"
	"github.com/neuroquantum/neuroquantumdb/internal/storage/page"
)

// metaMagic identifies a NeuroQuantumDB database file (spec §6 Meta page).
const metaMagic = 0x4E51_4442 // "NQDB"

const metaVersion = 1

// Meta is the page-0 Meta page payload (spec §6):
// {magic, version, page_size, root_catalog_page_id, free_list_head_page_id,
//  next_txn_id, next_lsn}.
type Meta struct {
	Magic             uint32
	Version           uint16
	PageSize          uint16
	RootCatalogPageID uint64
	FreeListHead      uint64
	NextTxnID         uint64
	NextLSN           uint64
}

const (
	metaOffMagic    = 0
	metaOffVersion  = 4
	metaOffPageSize = 6
	metaOffRoot     = 8
	metaOffFreeList = 16
	metaOffNextTxn  = 24
	metaOffNextLSN  = 32
)

func (m *Meta) encode() []byte {
	buf := make([]byte, 40)
	binary.BigEndian.PutUint32(buf[metaOffMagic:], m.Magic)
	binary.BigEndian.PutUint16(buf[metaOffVersion:], m.Version)
	binary.BigEndian.PutUint16(buf[metaOffPageSize:], m.PageSize)
	binary.BigEndian.PutUint64(buf[metaOffRoot:], m.RootCatalogPageID)
	binary.BigEndian.PutUint64(buf[metaOffFreeList:], m.FreeListHead)
	binary.BigEndian.PutUint64(buf[metaOffNextTxn:], m.NextTxnID)
	binary.BigEndian.PutUint64(buf[metaOffNextLSN:], m.NextLSN)
	return buf
}

func decodeMeta(buf []byte) (*Meta, error) {
	if len(buf) < 40 {
		return nil, common.New(common.KindCorruptState, "meta page truncated")
	}
	m := &Meta{
		Magic:             binary.BigEndian.Uint32(buf[metaOffMagic:]),
		Version:           binary.BigEndian.Uint16(buf[metaOffVersion:]),
		PageSize:          binary.BigEndian.Uint16(buf[metaOffPageSize:]),
		RootCatalogPageID: binary.BigEndian.Uint64(buf[metaOffRoot:]),
		FreeListHead:      binary.BigEndian.Uint64(buf[metaOffFreeList:]),
		NextTxnID:         binary.BigEndian.Uint64(buf[metaOffNextTxn:]),
		NextLSN:           binary.BigEndian.Uint64(buf[metaOffNextLSN:]),
	}
	if m.Magic != metaMagic {
		return nil, common.New(common.KindCorruptState, "invalid database file: bad magic")
	}
	return m, nil
}

// Pager owns the single page file for a database directory.
type Pager struct {
	mu       sync.Mutex
	file     *os.File
	meta     *Meta
	numPages uint64
	closed   bool
}

const metaPageID = 0

// Open opens (creating if necessary) the page file at path.
func Open(path string) (*Pager, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0600)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, common.Wrap(common.KindIOError, err, "open pager file")
		}
		return create(path)
	}
	return load(file)
}

func create(path string) (*Pager, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, common.Wrap(common.KindIOError, err, "create pager file")
	}
	p := &Pager{
		file: file,
		meta: &Meta{
			Magic:             metaMagic,
			Version:           metaVersion,
			PageSize:          page.Size,
			RootCatalogPageID: 0,
			FreeListHead:      0,
			NextTxnID:         1,
			NextLSN:           1,
		},
		numPages: 1,
	}
	metaPage := page.New(metaPageID, page.TypeMeta)
	metaPage.SetPayload(p.meta.encode())
	if err := p.writePage(metaPage); err != nil {
		file.Close()
		os.Remove(path)
		return nil, err
	}
	return p, nil
}

func load(file *os.File) (*Pager, error) {
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, common.Wrap(common.KindIOError, err, "stat pager file")
	}
	numPages := uint64(stat.Size() / page.Size)
	p := &Pager{file: file, numPages: numPages}

	buf := make([]byte, page.Size)
	if _, err := file.ReadAt(buf, 0); err != nil {
		file.Close()
		return nil, common.Wrap(common.KindIOError, err, "read meta page")
	}
	metaPage, err := page.Load(buf)
	if err != nil {
		file.Close()
		return nil, err
	}
	meta, err := decodeMeta(metaPage.Payload())
	if err != nil {
		file.Close()
		return nil, err
	}
	p.meta = meta
	return p, nil
}

// AllocatePage pops a free-list entry or extends the file by one page, and
// returns a zeroed page of the given type (spec §4.A).
func (p *Pager) AllocatePage(typ page.Type) (*page.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, common.New(common.KindShutdown, "pager is closed")
	}

	if p.meta.FreeListHead != 0 {
		id := p.meta.FreeListHead
		freed, err := p.readPageLocked(id)
		if err != nil {
			return nil, err
		}
		// The freed page threads the next free page id through the first
		// 8 bytes of its payload (spec §4.A: "freed pages are threaded
		// through their header").
		next := binary.BigEndian.Uint64(freed.Payload()[:8])
		p.meta.FreeListHead = next
		pg := page.New(id, typ)
		if err := p.writePageLocked(pg); err != nil {
			return nil, err
		}
		if err := p.writeMetaLocked(); err != nil {
			return nil, err
		}
		return pg, nil
	}

	id := p.numPages
	p.numPages++
	pg := page.New(id, typ)
	if err := p.writePageLocked(pg); err != nil {
		return nil, err
	}
	return pg, nil
}

// FreePage marks a page Free and threads it onto the free list.
func (p *Pager) FreePage(id uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return common.New(common.KindShutdown, "pager is closed")
	}
	pg := page.New(id, page.TypeFree)
	next := make([]byte, page.PayloadCapacity)
	binary.BigEndian.PutUint64(next[:8], p.meta.FreeListHead)
	pg.SetPayload(next)
	if err := p.writePageLocked(pg); err != nil {
		return err
	}
	p.meta.FreeListHead = id
	return p.writeMetaLocked()
}

// ReadPage reads and checksum-verifies a page (spec §4.A: CorruptPage on
// mismatch, surfaced via common.KindCorruptState).
func (p *Pager) ReadPage(id uint64) (*page.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, common.New(common.KindShutdown, "pager is closed")
	}
	return p.readPageLocked(id)
}

func (p *Pager) readPageLocked(id uint64) (*page.Page, error) {
	if id >= p.numPages {
		return nil, common.New(common.KindNotFound, "page %d out of bounds", id)
	}
	buf := make([]byte, page.Size)
	if _, err := p.file.ReadAt(buf, int64(id)*page.Size); err != nil {
		return nil, common.Wrap(common.KindIOError, err, "read page %d", id)
	}
	return page.Load(buf)
}

// WritePage recomputes the checksum and writes the block; it does not
// fsync (spec §4.A).
func (p *Pager) WritePage(pg *page.Page) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return common.New(common.KindShutdown, "pager is closed")
	}
	return p.writePageLocked(pg)
}

func (p *Pager) writePageLocked(pg *page.Page) error {
	pg.UpdateChecksum()
	return p.writePage(pg)
}

func (p *Pager) writePage(pg *page.Page) error {
	if _, err := p.file.WriteAt(pg.Bytes(), int64(pg.PageID())*page.Size); err != nil {
		return common.Wrap(common.KindIOError, err, "write page %d", pg.PageID())
	}
	return nil
}

func (p *Pager) writeMetaLocked() error {
	metaPage := page.New(metaPageID, page.TypeMeta)
	metaPage.SetPayload(p.meta.encode())
	return p.writePage(metaPage)
}

// Sync fsyncs the file (spec §4.A).
func (p *Pager) Sync() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return common.New(common.KindShutdown, "pager is closed")
	}
	if err := p.writeMetaLocked(); err != nil {
		return err
	}
	if err := p.file.Sync(); err != nil {
		return common.Wrap(common.KindIOError, err, "fsync pager file")
	}
	return nil
}

// RootCatalogPageID / SetRootCatalogPageID manage the catalog root used by
// the row store to find its table metadata (spec §4.D).
func (p *Pager) RootCatalogPageID() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.meta.RootCatalogPageID
}

func (p *Pager) SetRootCatalogPageID(id uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.meta.RootCatalogPageID = id
	return p.writeMetaLocked()
}

// NextTxnID / NextLSN are monotonic generators persisted in the Meta page.
func (p *Pager) NextTxnID() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.meta.NextTxnID
	p.meta.NextTxnID++
	return id
}

func (p *Pager) ReserveLSN() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	lsn := p.meta.NextLSN
	p.meta.NextLSN++
	return lsn
}

// ObserveLSN advances the persisted NextLSN counter past lsn, used by
// recovery to keep the generator ahead of replayed records.
func (p *Pager) ObserveLSN(lsn uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if lsn >= p.meta.NextLSN {
		p.meta.NextLSN = lsn + 1
	}
}

// ObserveTxnID advances the persisted NextTxnID counter past id, mirroring
// ObserveLSN: a transaction id recovered from the WAL must never be
// reissued to a new transaction after restart.
func (p *Pager) ObserveTxnID(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id >= p.meta.NextTxnID {
		p.meta.NextTxnID = id + 1
	}
}

func (p *Pager) NumPages() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numPages
}

func (p *Pager) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if err := p.writeMetaLocked(); err != nil {
		return err
	}
	if err := p.file.Sync(); err != nil {
		return common.Wrap(common.KindIOError, err, "fsync on close")
	}
	if err := p.file.Close(); err != nil {
		return common.Wrap(common.KindIOError, err, "close pager file")
	}
	return nil
}
