package row

import "github.com/neuroquantum/neuroquantumdb/internal/common"

// DNACodec wraps IdentityCodec's tagged-field bytes in a reversible
// nucleotide representation: each byte becomes four bases (A/C/G/T, one per
// 2-bit group). It exists to exercise the RowCodec plug-in point (spec §9)
// with something more interesting than the identity transform; the core
// engine runs unmodified with IdentityCodec and never requires this one.
type DNACodec struct {
	inner Codec
}

func NewDNACodec() DNACodec {
	return DNACodec{inner: IdentityCodec{}}
}

var basesByPair = [4]byte{'A', 'C', 'G', 'T'}

var pairByBase = map[byte]byte{'A': 0, 'C': 1, 'G': 2, 'T': 3}

func (d DNACodec) Encode(schema *Schema, r Row) ([]byte, error) {
	raw, err := d.inner.Encode(schema, r)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(raw)*4)
	for _, b := range raw {
		out = append(out,
			basesByPair[(b>>6)&0x3],
			basesByPair[(b>>4)&0x3],
			basesByPair[(b>>2)&0x3],
			basesByPair[b&0x3],
		)
	}
	return out, nil
}

func (d DNACodec) Decode(schema *Schema, data []byte) (Row, error) {
	if len(data)%4 != 0 {
		return nil, common.New(common.KindCorruptState, "row: dna-encoded payload length %d not a multiple of 4", len(data))
	}
	raw := make([]byte, 0, len(data)/4)
	for i := 0; i < len(data); i += 4 {
		var b byte
		for j := 0; j < 4; j++ {
			pair, ok := pairByBase[data[i+j]]
			if !ok {
				return nil, common.New(common.KindCorruptState, "row: invalid base %q in dna-encoded payload", data[i+j])
			}
			b = (b << 2) | pair
		}
		raw = append(raw, b)
	}
	return d.inner.Decode(schema, raw)
}

var _ Codec = DNACodec{}
