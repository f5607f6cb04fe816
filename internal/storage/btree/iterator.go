package btree

import "bytes"

// RangeIterator walks leaf entries in key order by following the leaf
// chain, so a scan never has to revisit internal nodes once it reaches its
// starting leaf (spec §4.C). It does not implement common.Iterator because
// B+ tree values are row locators (uint64), not serialized row bytes; the
// row store wraps this iterator to produce a common.Iterator over decoded
// rows.
type RangeIterator struct {
	tree *Tree
	end  []byte // exclusive upper bound, nil = unbounded

	leaf   Leaf
	idx    int
	err    error
	done   bool
	curKey []byte
	curVal uint64
}

// RangeScan returns an iterator over [start, end). A nil start scans from
// the smallest key; a nil end scans to the largest key.
func (t *Tree) RangeScan(start, end []byte) (*RangeIterator, error) {
	id := t.rootPageID
	for {
		node, err := t.fetch(id)
		if err != nil {
			return nil, err
		}
		if leaf, ok := TryAsLeaf(node); ok {
			idx := 0
			if start != nil {
				idx = leafLowerBound(leaf, start)
			}
			return &RangeIterator{tree: t, end: end, leaf: leaf, idx: idx - 1}, nil
		}
		in, _ := TryAsInternal(node)
		childIdx := 0
		if start != nil {
			childIdx = internalChildFor(in, start)
		}
		id = in.ChildAt(childIdx)
	}
}

func leafLowerBound(l Leaf, key []byte) int {
	lo, hi := 0, l.Len()
	for lo < hi {
		mid := (lo + hi) / 2
		if bytes.Compare(l.KeyAt(mid), key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Next advances to the next entry, returning false at end-of-range or on
// error (check Err()).
func (it *RangeIterator) Next() bool {
	if it.done {
		return false
	}
	for {
		it.idx++
		if it.idx >= it.leaf.Len() {
			next := it.leaf.NextLeaf()
			if next == 0 {
				it.done = true
				return false
			}
			node, err := it.tree.fetch(next)
			if err != nil {
				it.err = err
				it.done = true
				return false
			}
			leaf, ok := TryAsLeaf(node)
			if !ok {
				it.err = errNotALeaf(next)
				it.done = true
				return false
			}
			it.leaf = leaf
			it.idx = -1
			continue
		}
		key := it.leaf.KeyAt(it.idx)
		if it.end != nil && bytes.Compare(key, it.end) >= 0 {
			it.done = true
			return false
		}
		it.curKey = key
		it.curVal = it.leaf.ValueAt(it.idx)
		return true
	}
}

func (it *RangeIterator) Key() []byte    { return it.curKey }
func (it *RangeIterator) Value() uint64  { return it.curVal }
func (it *RangeIterator) Err() error     { return it.err }
func (it *RangeIterator) Close() error   { return nil }
