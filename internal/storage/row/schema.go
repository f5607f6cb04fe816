// Package row implements the row store (spec §4.D): table schema catalog,
// tagged-field row serialization, auto-increment id assignment, and the
// CRUD primitives (insert_row/select_rows/update_rows/delete_rows/
// create_table/drop_table/flush_to_disk) the executor drives.
package row

import (
	"encoding/binary"

	"github.com/neuroquantum/neuroquantumdb/internal/common"
)

// ColumnType enumerates the scalar types a column may hold.
type ColumnType byte

const (
	TypeInt64 ColumnType = iota
	TypeFloat64
	TypeBool
	TypeText
	TypeBlob
)

// ColumnDef describes one column of a table.
type ColumnDef struct {
	Name       string
	Type       ColumnType
	Nullable   bool
	Unique     bool
	PrimaryKey bool
}

// IDStrategy controls how a row's primary key is produced when not supplied
// explicitly by the caller.
type IDStrategy byte

const (
	IDManual IDStrategy = iota
	IDAutoIncrement
)

// Schema is a table's catalog entry.
type Schema struct {
	Name              string
	Columns           []ColumnDef
	IDStrategy        IDStrategy
	RowTreeRootPageID uint64
	NextAutoIncrement uint64
}

func (s *Schema) primaryKeyColumn() (ColumnDef, bool) {
	for _, c := range s.Columns {
		if c.PrimaryKey {
			return c, true
		}
	}
	return ColumnDef{}, false
}

func (s *Schema) column(name string) (ColumnDef, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDef{}, false
}

// encodeSchema/decodeSchema persist a Schema as a catalog row page payload.
func encodeSchema(s *Schema) []byte {
	buf := make([]byte, 0, 256)
	buf = appendString(buf, s.Name)
	buf = append(buf, byte(s.IDStrategy))
	buf = appendUint64(buf, s.RowTreeRootPageID)
	buf = appendUint64(buf, s.NextAutoIncrement)
	buf = appendUint32(buf, uint32(len(s.Columns)))
	for _, c := range s.Columns {
		buf = appendString(buf, c.Name)
		buf = append(buf, byte(c.Type))
		buf = appendBool(buf, c.Nullable)
		buf = appendBool(buf, c.Unique)
		buf = appendBool(buf, c.PrimaryKey)
	}
	return buf
}

func decodeSchema(buf []byte) (*Schema, error) {
	r := &reader{buf: buf}
	name, err := r.string()
	if err != nil {
		return nil, err
	}
	idByte, err := r.byte_()
	if err != nil {
		return nil, err
	}
	rootID, err := r.uint64()
	if err != nil {
		return nil, err
	}
	nextAuto, err := r.uint64()
	if err != nil {
		return nil, err
	}
	numCols, err := r.uint32()
	if err != nil {
		return nil, err
	}
	s := &Schema{Name: name, IDStrategy: IDStrategy(idByte), RowTreeRootPageID: rootID, NextAutoIncrement: nextAuto}
	for i := uint32(0); i < numCols; i++ {
		cname, err := r.string()
		if err != nil {
			return nil, err
		}
		ctype, err := r.byte_()
		if err != nil {
			return nil, err
		}
		nullable, err := r.bool_()
		if err != nil {
			return nil, err
		}
		unique, err := r.bool_()
		if err != nil {
			return nil, err
		}
		pk, err := r.bool_()
		if err != nil {
			return nil, err
		}
		s.Columns = append(s.Columns, ColumnDef{Name: cname, Type: ColumnType(ctype), Nullable: nullable, Unique: unique, PrimaryKey: pk})
	}
	return s, nil
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendBool(buf []byte, b bool) []byte {
	if b {
		return append(buf, 1)
	}
	return append(buf, 0)
}

func appendString(buf []byte, s string) []byte {
	buf = appendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return common.New(common.KindCorruptState, "row: truncated catalog record")
	}
	return nil
}

func (r *reader) byte_() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) bool_() (bool, error) {
	b, err := r.byte_()
	return b != 0, err
}

func (r *reader) uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) uint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) string() (string, error) {
	n, err := r.uint32()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := append([]byte(nil), r.buf[r.pos:r.pos+n]...)
	r.pos += n
	return b, nil
}
