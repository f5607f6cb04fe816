package row

import (
	"encoding/binary"
	"math"

	"github.com/neuroquantum/neuroquantumdb/internal/common"
)

// Row is a decoded record, keyed by column name. Values are one of int64,
// float64, bool, string, []byte, or nil.
type Row map[string]any

// Codec is the capability interface plugged into a Store to control how
// rows are serialized to page bytes (spec §4.D / §9 RowCodec plug-in
// point). The core engine is fully correct with the default IdentityCodec
// and zero plug-ins.
type Codec interface {
	Encode(schema *Schema, r Row) ([]byte, error)
	Decode(schema *Schema, data []byte) (Row, error)
}

// IdentityCodec serializes each column in schema order as a null flag
// followed by a type-tagged value: fixed-width for Int64/Float64/Bool,
// uint32-length-prefixed for Text/Blob.
type IdentityCodec struct{}

func (IdentityCodec) Encode(schema *Schema, r Row) ([]byte, error) {
	buf := make([]byte, 0, 128)
	for _, col := range schema.Columns {
		v, present := r[col.Name]
		if !present || v == nil {
			if !col.Nullable {
				return nil, errMissingColumn(col.Name)
			}
			buf = append(buf, 0)
			continue
		}
		buf = append(buf, 1)
		encoded, err := encodeValue(col, v)
		if err != nil {
			return nil, err
		}
		buf = append(buf, encoded...)
	}
	return buf, nil
}

func (IdentityCodec) Decode(schema *Schema, data []byte) (Row, error) {
	r := &reader{buf: data}
	out := make(Row, len(schema.Columns))
	for _, col := range schema.Columns {
		flag, err := r.byte_()
		if err != nil {
			return nil, err
		}
		if flag == 0 {
			out[col.Name] = nil
			continue
		}
		v, err := decodeValue(r, col)
		if err != nil {
			return nil, err
		}
		out[col.Name] = v
	}
	return out, nil
}

func encodeValue(col ColumnDef, v any) ([]byte, error) {
	switch col.Type {
	case TypeInt64:
		i, ok := asInt64(v)
		if !ok {
			return nil, errTypeMismatch(col.Name, "int64", v)
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(i))
		return buf, nil
	case TypeFloat64:
		f, ok := v.(float64)
		if !ok {
			return nil, errTypeMismatch(col.Name, "float64", v)
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, math.Float64bits(f))
		return buf, nil
	case TypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, errTypeMismatch(col.Name, "bool", v)
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case TypeText:
		s, ok := v.(string)
		if !ok {
			return nil, errTypeMismatch(col.Name, "string", v)
		}
		return appendString(nil, s), nil
	case TypeBlob:
		b, ok := v.([]byte)
		if !ok {
			return nil, errTypeMismatch(col.Name, "[]byte", v)
		}
		return appendString(nil, string(b)), nil
	default:
		return nil, common.New(common.KindCorruptState, "row: unknown column type %d", col.Type)
	}
}

func decodeValue(r *reader, col ColumnDef) (any, error) {
	switch col.Type {
	case TypeInt64:
		u, err := r.uint64()
		if err != nil {
			return nil, err
		}
		return int64(u), nil
	case TypeFloat64:
		u, err := r.uint64()
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(u), nil
	case TypeBool:
		return r.bool_()
	case TypeText:
		return r.string()
	case TypeBlob:
		n, err := r.uint32()
		if err != nil {
			return nil, err
		}
		return r.bytes(int(n))
	default:
		return nil, common.New(common.KindCorruptState, "row: unknown column type %d", col.Type)
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

// EncodeKey renders a column value into its sort-order-preserving B+ tree
// key bytes. Int64 is bias-shifted so two's-complement ordering matches
// numeric ordering.
func EncodeKey(col ColumnDef, v any) ([]byte, error) {
	switch col.Type {
	case TypeInt64:
		i, ok := asInt64(v)
		if !ok {
			return nil, errTypeMismatch(col.Name, "int64", v)
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(i)^(1<<63))
		return buf, nil
	case TypeText:
		s, ok := v.(string)
		if !ok {
			return nil, errTypeMismatch(col.Name, "string", v)
		}
		return []byte(s), nil
	case TypeBlob:
		b, ok := v.([]byte)
		if !ok {
			return nil, errTypeMismatch(col.Name, "[]byte", v)
		}
		return b, nil
	default:
		return nil, common.New(common.KindInvalidInput, "row: column %q cannot be a primary key", col.Name)
	}
}
