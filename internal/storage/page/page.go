// Package page implements the fixed-size on-disk page: the unit of I/O,
// buffer-pool caching and checksum verification (spec §3, §4.A).
package page

import (
	"encoding/binary"
	"hash/crc32"
)

// Size is the build-time page size constant (default 4 KiB, spec §4.A).
const Size = 4096

// Type enumerates the page kinds carried in the page header (spec §3).
type Type byte

const (
	TypeMeta Type = iota
	TypeData
	TypeBTreeInternal
	TypeBTreeLeaf
	TypeFree
)

// Header layout, fixed width, written at the start of every page:
//
//	[PageID(8)][Type(1)][LSN(8)][Checksum(4)] = 21 bytes
const (
	HeaderSize       = 21
	offsetPageID     = 0
	offsetType       = 8
	offsetLSN        = 9
	offsetChecksum   = 17
	PayloadCapacity  = Size - HeaderSize
)

// Page is a fixed Size-byte block: header plus payload region. It carries
// no caching or pinning state of its own — that belongs to the buffer pool
// (spec §4.E); Page is purely the wire/disk representation (spec §4.A).
type Page struct {
	data [Size]byte
}

// New allocates a zeroed page of the given id and type, with LSN 0 and a
// freshly computed checksum over the zero payload.
func New(id uint64, typ Type) *Page {
	p := &Page{}
	p.SetPageID(id)
	p.SetType(typ)
	p.SetLSN(0)
	p.UpdateChecksum()
	return p
}

// Load parses a page from a raw Size-byte disk block and verifies its
// checksum, returning a CorruptPage-class error on mismatch (spec §4.A,
// Testable Property 3).
func Load(data []byte) (*Page, error) {
	if len(data) != Size {
		return nil, errInvalidSize(len(data))
	}
	p := &Page{}
	copy(p.data[:], data)
	if !p.VerifyChecksum() {
		return nil, errCorrupt(p.PageID())
	}
	return p, nil
}

func (p *Page) PageID() uint64 {
	return binary.BigEndian.Uint64(p.data[offsetPageID:])
}

func (p *Page) SetPageID(id uint64) {
	binary.BigEndian.PutUint64(p.data[offsetPageID:], id)
}

func (p *Page) Type() Type { return Type(p.data[offsetType]) }

func (p *Page) SetType(t Type) { p.data[offsetType] = byte(t) }

func (p *Page) LSN() uint64 {
	return binary.BigEndian.Uint64(p.data[offsetLSN:])
}

// SetLSN records the LSN of the WAL record that most recently dirtied this
// page. Invariant (spec §3): LSN is monotone non-decreasing per page.
func (p *Page) SetLSN(lsn uint64) {
	if lsn < p.LSN() {
		panic("page: LSN must be monotone non-decreasing")
	}
	binary.BigEndian.PutUint64(p.data[offsetLSN:], lsn)
}

// ForceLSN sets the LSN without the monotonicity check — used only by
// recovery when replaying a page to a historical state.
func (p *Page) ForceLSN(lsn uint64) {
	binary.BigEndian.PutUint64(p.data[offsetLSN:], lsn)
}

func (p *Page) Checksum() uint32 {
	return binary.BigEndian.Uint32(p.data[offsetChecksum:])
}

// Payload returns the mutable payload region following the header.
func (p *Page) Payload() []byte {
	return p.data[HeaderSize:]
}

// SetPayload overwrites the payload region (must be <= PayloadCapacity
// bytes; the remainder is zeroed) and recomputes the checksum.
func (p *Page) SetPayload(b []byte) {
	if len(b) > PayloadCapacity {
		panic("page: payload exceeds page capacity")
	}
	payload := p.data[HeaderSize:]
	n := copy(payload, b)
	for i := n; i < len(payload); i++ {
		payload[i] = 0
	}
	p.UpdateChecksum()
}

// computeChecksum hashes header-minus-checksum plus payload with a 32-bit
// non-cryptographic hash (spec §4.A numeric policy: "CRC32" satisfies this
// exactly, and is what the teacher's btree/wal.go already reaches for).
func (p *Page) computeChecksum() uint32 {
	h := crc32.NewIEEE()
	h.Write(p.data[:offsetChecksum])
	h.Write(p.data[offsetChecksum+4:])
	return h.Sum32()
}

// UpdateChecksum recomputes and stores the checksum; callers must call
// this after any payload or header mutation other than SetPayload (which
// calls it for you).
func (p *Page) UpdateChecksum() {
	binary.BigEndian.PutUint32(p.data[offsetChecksum:], p.computeChecksum())
}

// VerifyChecksum reports whether the stored checksum matches the current
// contents (Testable Property 3).
func (p *Page) VerifyChecksum() bool {
	return p.Checksum() == p.computeChecksum()
}

// Bytes returns the raw Size-byte block for disk I/O.
func (p *Page) Bytes() []byte { return p.data[:] }

// Clone returns an independent copy of the page.
func (p *Page) Clone() *Page {
	c := &Page{}
	copy(c.data[:], p.data[:])
	return c
}
