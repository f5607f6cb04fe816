package btree

import "github.com/neuroquantum/neuroquantumdb/internal/common"

// Encode serializes a node to a byte slice suitable for a page payload:
// a Kind tag byte followed by a kind-specific varint-framed body. Mirrors
// the teacher's cell-based page encoding in spirit (tag + varint-length
// fields) but is written against the four explicit Node variants rather
// than a single generic cell format.
func Encode(n Node) []byte {
	buf := make([]byte, 0, 256)
	switch v := n.(type) {
	case *LeafNode:
		buf = append(buf, byte(KindLeaf))
		buf = appendUvarint(buf, v.NextLeaf_)
		buf = appendUvarint(buf, uint64(len(v.Keys)))
		for i, k := range v.Keys {
			buf = appendUvarint(buf, uint64(len(k)))
			buf = append(buf, k...)
			buf = appendUvarint(buf, v.Values[i])
		}
	case *InternalNode:
		buf = append(buf, byte(KindInternal))
		buf = appendUvarint(buf, uint64(len(v.Keys)))
		for _, k := range v.Keys {
			buf = appendUvarint(buf, uint64(len(k)))
			buf = append(buf, k...)
		}
		for _, c := range v.Children {
			buf = appendUvarint(buf, c)
		}
	case *CompressedLeafNode:
		buf = append(buf, byte(KindCompressedLeaf))
		buf = appendUvarint(buf, v.NextLeaf_)
		buf = appendUvarint(buf, uint64(len(v.Prefix)))
		buf = append(buf, v.Prefix...)
		buf = appendUvarint(buf, uint64(len(v.Suffixes)))
		for i, s := range v.Suffixes {
			buf = appendUvarint(buf, uint64(len(s)))
			buf = append(buf, s...)
			buf = appendUvarint(buf, v.Values[i])
		}
	case *CompressedInternalNode:
		buf = append(buf, byte(KindCompressedInternal))
		n := v.Len()
		buf = appendUvarint(buf, uint64(n))
		if n > 0 {
			buf = appendUvarint(buf, uint64(len(v.FirstKey)))
			buf = append(buf, v.FirstKey...)
			for _, d := range v.Deltas {
				buf = appendUvarint(buf, uint64(d.SharedPrefixLen))
				buf = appendUvarint(buf, uint64(len(d.Suffix)))
				buf = append(buf, d.Suffix...)
			}
		}
		for _, c := range v.Children {
			buf = appendUvarint(buf, c)
		}
	}
	return buf
}

func appendUvarint(buf []byte, x uint64) []byte {
	var tmp [10]byte
	n := putUvarint(tmp[:], x)
	return append(buf, tmp[:n]...)
}

// Decode parses a node previously written by Encode.
func Decode(buf []byte) (Node, error) {
	if len(buf) == 0 {
		return nil, common.New(common.KindCorruptState, "btree: empty node payload")
	}
	kind := Kind(buf[0])
	rest := buf[1:]
	switch kind {
	case KindLeaf:
		return decodeLeaf(rest)
	case KindInternal:
		return decodeInternal(rest)
	case KindCompressedLeaf:
		return decodeCompressedLeaf(rest)
	case KindCompressedInternal:
		return decodeCompressedInternal(rest)
	default:
		return nil, common.New(common.KindCorruptState, "btree: unknown node kind %d", kind)
	}
}

type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) uvarint() (uint64, error) {
	x, n := uvarint(c.buf[c.pos:])
	if n <= 0 {
		return 0, common.New(common.KindCorruptState, "btree: malformed varint")
	}
	c.pos += n
	return x, nil
}

func (c *cursor) bytes(n int) ([]byte, error) {
	if c.pos+n > len(c.buf) {
		return nil, common.New(common.KindCorruptState, "btree: truncated node payload")
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func decodeLeaf(buf []byte) (*LeafNode, error) {
	c := &cursor{buf: buf}
	nextLeaf, err := c.uvarint()
	if err != nil {
		return nil, err
	}
	count, err := c.uvarint()
	if err != nil {
		return nil, err
	}
	n := &LeafNode{NextLeaf_: nextLeaf}
	for i := uint64(0); i < count; i++ {
		klen, err := c.uvarint()
		if err != nil {
			return nil, err
		}
		key, err := c.bytesCopy(int(klen))
		if err != nil {
			return nil, err
		}
		val, err := c.uvarint()
		if err != nil {
			return nil, err
		}
		n.Keys = append(n.Keys, key)
		n.Values = append(n.Values, val)
	}
	return n, nil
}

func decodeInternal(buf []byte) (*InternalNode, error) {
	c := &cursor{buf: buf}
	count, err := c.uvarint()
	if err != nil {
		return nil, err
	}
	n := &InternalNode{}
	for i := uint64(0); i < count; i++ {
		klen, err := c.uvarint()
		if err != nil {
			return nil, err
		}
		key, err := c.bytesCopy(int(klen))
		if err != nil {
			return nil, err
		}
		n.Keys = append(n.Keys, key)
	}
	for i := uint64(0); i <= count; i++ {
		child, err := c.uvarint()
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
	}
	return n, nil
}

func decodeCompressedLeaf(buf []byte) (*CompressedLeafNode, error) {
	c := &cursor{buf: buf}
	nextLeaf, err := c.uvarint()
	if err != nil {
		return nil, err
	}
	plen, err := c.uvarint()
	if err != nil {
		return nil, err
	}
	prefix, err := c.bytesCopy(int(plen))
	if err != nil {
		return nil, err
	}
	count, err := c.uvarint()
	if err != nil {
		return nil, err
	}
	n := &CompressedLeafNode{Prefix: prefix, NextLeaf_: nextLeaf}
	for i := uint64(0); i < count; i++ {
		slen, err := c.uvarint()
		if err != nil {
			return nil, err
		}
		suffix, err := c.bytesCopy(int(slen))
		if err != nil {
			return nil, err
		}
		val, err := c.uvarint()
		if err != nil {
			return nil, err
		}
		n.Suffixes = append(n.Suffixes, suffix)
		n.Values = append(n.Values, val)
	}
	return n, nil
}

func decodeCompressedInternal(buf []byte) (*CompressedInternalNode, error) {
	c := &cursor{buf: buf}
	count, err := c.uvarint()
	if err != nil {
		return nil, err
	}
	n := &CompressedInternalNode{}
	if count > 0 {
		klen, err := c.uvarint()
		if err != nil {
			return nil, err
		}
		first, err := c.bytesCopy(int(klen))
		if err != nil {
			return nil, err
		}
		n.FirstKey = first
		for i := uint64(1); i < count; i++ {
			shared, err := c.uvarint()
			if err != nil {
				return nil, err
			}
			slen, err := c.uvarint()
			if err != nil {
				return nil, err
			}
			suffix, err := c.bytesCopy(int(slen))
			if err != nil {
				return nil, err
			}
			n.Deltas = append(n.Deltas, KeyDelta{SharedPrefixLen: int(shared), Suffix: suffix})
		}
	}
	numChildren := count + 1
	for i := uint64(0); i < numChildren; i++ {
		child, err := c.uvarint()
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
	}
	return n, nil
}

func (c *cursor) bytesCopy(n int) ([]byte, error) {
	b, err := c.bytes(n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}
