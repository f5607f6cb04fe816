package btree

import (
	"bytes"

	"github.com/neuroquantum/neuroquantumdb/internal/buffer"
	"github.com/neuroquantum/neuroquantumdb/internal/common"
	"github.com/neuroquantum/neuroquantumdb/internal/storage/page"
)

// Options configures a Tree's node-splitting policy.
type Options struct {
	// MaxEntries bounds the number of keys a node may hold before it is
	// split, independent of the hard page-capacity bound.
	MaxEntries int
	// Compress, when true, serializes leaves and internal nodes using
	// their compressed variant (spec §4.C).
	Compress bool
}

// DefaultMaxEntries is a conservative bound for typical small keys; actual
// splits also trigger earlier if the encoded node would exceed page
// capacity.
const DefaultMaxEntries = 128

// MinEntries is the per-node floor below which delete triggers a borrow or
// merge (spec §4.C underflow handling); kept at a small constant since the
// hard limit is the encoded-size/MaxEntries split trigger, not a fixed
// fanout.
const MinEntries = 2

// Tree is a B+ tree over the page store, keyed by []byte with uint64 row
// locator values. It holds no node cache of its own — every page it
// touches is pinned and unpinned through the buffer pool (spec §4.E),
// which owns residency and eviction.
type Tree struct {
	pool    *buffer.Pool
	latches *LatchManager
	opts    Options

	rootPageID uint64
}

// New attaches a Tree to an existing root page id (e.g. read from a table's
// catalog entry).
func New(pool *buffer.Pool, rootPageID uint64, opts Options) *Tree {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	return &Tree{pool: pool, latches: NewLatchManager(), opts: opts, rootPageID: rootPageID}
}

// Create allocates a fresh empty tree (a single empty leaf as root) and
// returns it along with the root page id the caller must persist.
func Create(pool *buffer.Pool, opts Options) (*Tree, uint64, error) {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	t := &Tree{pool: pool, latches: NewLatchManager(), opts: opts}
	rootID, err := t.storeNew(&LeafNode{})
	if err != nil {
		return nil, 0, err
	}
	t.rootPageID = rootID
	return t, rootID, nil
}

// RootPageID returns the current root page id; it can change across
// Insert/Delete calls that split or collapse the root.
func (t *Tree) RootPageID() uint64 { return t.rootPageID }

func (t *Tree) fetch(id uint64) (Node, error) {
	pg, err := t.pool.FetchPage(id)
	if err != nil {
		return nil, err
	}
	n, err := Decode(pg.Payload())
	if uerr := t.pool.UnpinPage(id, false); uerr != nil && err == nil {
		err = uerr
	}
	return n, err
}

func (t *Tree) store(id uint64, n Node) error {
	pg, err := t.pool.FetchPage(id)
	if err != nil {
		return err
	}
	pg.SetType(pageTypeFor(n))
	encoded := Encode(t.maybeCompress(n))
	if len(encoded) > page.PayloadCapacity {
		_ = t.pool.UnpinPage(id, false)
		return common.New(common.KindCorruptState, "btree: node %d exceeds page capacity (%d bytes)", id, len(encoded))
	}
	pg.SetPayload(encoded)
	return t.pool.UnpinPage(id, true)
}

func (t *Tree) storeNew(n Node) (uint64, error) {
	pg, err := t.pool.AllocatePage(pageTypeFor(n))
	if err != nil {
		return 0, err
	}
	encoded := Encode(t.maybeCompress(n))
	if len(encoded) > page.PayloadCapacity {
		_ = t.pool.UnpinPage(pg.PageID(), false)
		return 0, common.New(common.KindCorruptState, "btree: new node exceeds page capacity (%d bytes)", len(encoded))
	}
	pg.SetPayload(encoded)
	if err := t.pool.UnpinPage(pg.PageID(), true); err != nil {
		return 0, err
	}
	return pg.PageID(), nil
}

func pageTypeFor(n Node) page.Type {
	if n.IsLeaf() {
		return page.TypeBTreeLeaf
	}
	return page.TypeBTreeInternal
}

// maybeCompress converts a structurally-mutated (always uncompressed in
// memory) node to its compressed variant if the tree's policy calls for it.
func (t *Tree) maybeCompress(n Node) Node {
	if !t.opts.Compress {
		return n
	}
	switch v := n.(type) {
	case *LeafNode:
		return CompressLeaf(v.Keys, v.Values, v.NextLeaf_)
	case *InternalNode:
		return CompressInternal(v.Keys, v.Children)
	default:
		return n
	}
}

// asMutableLeaf returns a plain *LeafNode with independent slices, whether
// the stored node was compressed or not, so callers can mutate it freely.
func asMutableLeaf(n Node) *LeafNode {
	switch v := n.(type) {
	case *LeafNode:
		return &LeafNode{Keys: append([][]byte(nil), v.Keys...), Values: append([]uint64(nil), v.Values...), NextLeaf_: v.NextLeaf_}
	case *CompressedLeafNode:
		keys, values := v.DecompressLeaf()
		return &LeafNode{Keys: keys, Values: values, NextLeaf_: v.NextLeaf_}
	default:
		return &LeafNode{}
	}
}

func asMutableInternal(n Node) *InternalNode {
	switch v := n.(type) {
	case *InternalNode:
		return &InternalNode{Keys: append([][]byte(nil), v.Keys...), Children: append([]uint64(nil), v.Children...)}
	case *CompressedInternalNode:
		return &InternalNode{Keys: v.DecompressInternal(), Children: append([]uint64(nil), v.Children...)}
	default:
		return &InternalNode{}
	}
}

// Search looks up key, returning (value, true) if present.
func (t *Tree) Search(key []byte) (uint64, bool, error) {
	if len(key) == 0 {
		return 0, false, common.ErrKeyEmpty
	}
	id := t.rootPageID
	for {
		node, err := t.fetch(id)
		if err != nil {
			return 0, false, err
		}
		if leaf, ok := TryAsLeaf(node); ok {
			for i := 0; i < leaf.Len(); i++ {
				if bytes.Equal(leaf.KeyAt(i), key) {
					return leaf.ValueAt(i), true, nil
				}
			}
			return 0, false, nil
		}
		in, _ := TryAsInternal(node)
		idx := internalChildFor(in, key)
		id = in.ChildAt(idx)
	}
}

func internalChildFor(in Internal, key []byte) int {
	lo, hi := 0, in.Len()
	for lo < hi {
		mid := (lo + hi) / 2
		if bytes.Compare(key, in.KeyAt(mid)) < 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// Upsert inserts key/value, overwriting any existing value for key.
func (t *Tree) Upsert(key []byte, value uint64) error {
	return t.insert(key, value, true)
}

// Insert inserts key/value, failing with common.ErrDuplicateKey if key is
// already present.
func (t *Tree) Insert(key []byte, value uint64) error {
	return t.insert(key, value, false)
}

func (t *Tree) insert(key []byte, value uint64, upsert bool) error {
	if len(key) == 0 {
		return common.ErrKeyEmpty
	}
	latch := t.latches.GetLatch(t.rootPageID)
	latch.Lock(LatchWrite)
	defer latch.Unlock(LatchWrite)

	rightID, midKey, err := t.insertRec(t.rootPageID, key, value, upsert)
	if err != nil {
		return err
	}
	if rightID != 0 {
		newRoot := &InternalNode{Keys: [][]byte{midKey}, Children: []uint64{t.rootPageID, rightID}}
		newRootID, err := t.storeNew(newRoot)
		if err != nil {
			return err
		}
		t.rootPageID = newRootID
	}
	return nil
}

// insertRec inserts into the subtree rooted at pageID. If the node at
// pageID splits, it returns the new right sibling's page id and the
// separator key; otherwise rightID is 0.
func (t *Tree) insertRec(pageID uint64, key []byte, value uint64, upsert bool) (rightID uint64, midKey []byte, err error) {
	node, err := t.fetch(pageID)
	if err != nil {
		return 0, nil, err
	}

	if _, ok := TryAsLeaf(node); ok {
		leaf := asMutableLeaf(node)
		idx, found := leaf.Search(key)
		if found {
			if !upsert {
				return 0, nil, common.ErrDuplicateKey
			}
			leaf.Values[idx] = value
		} else {
			leaf.Keys = append(leaf.Keys, nil)
			copy(leaf.Keys[idx+1:], leaf.Keys[idx:])
			leaf.Keys[idx] = key
			leaf.Values = append(leaf.Values, 0)
			copy(leaf.Values[idx+1:], leaf.Values[idx:])
			leaf.Values[idx] = value
		}

		if !t.leafNeedsSplit(leaf) {
			return 0, nil, t.store(pageID, leaf)
		}
		left, right := splitLeaf(leaf)
		rightPageID, err := t.storeNew(right)
		if err != nil {
			return 0, nil, err
		}
		left.NextLeaf_ = rightPageID
		if err := t.store(pageID, left); err != nil {
			return 0, nil, err
		}
		return rightPageID, right.Keys[0], nil
	}

	in := asMutableInternal(node)
	idx := childIndexFor(in, key)
	childID := in.Children[idx]
	childRightID, childMidKey, err := t.insertRec(childID, key, value, upsert)
	if err != nil {
		return 0, nil, err
	}
	if childRightID == 0 {
		return 0, nil, nil
	}

	in.Keys = append(in.Keys, nil)
	copy(in.Keys[idx+1:], in.Keys[idx:])
	in.Keys[idx] = childMidKey
	in.Children = append(in.Children, 0)
	copy(in.Children[idx+2:], in.Children[idx+1:])
	in.Children[idx+1] = childRightID

	if !t.internalNeedsSplit(in) {
		return 0, nil, t.store(pageID, in)
	}
	left, right, sep := splitInternal(in)
	rightPageID, err := t.storeNew(right)
	if err != nil {
		return 0, nil, err
	}
	if err := t.store(pageID, left); err != nil {
		return 0, nil, err
	}
	return rightPageID, sep, nil
}

func childIndexFor(in *InternalNode, key []byte) int {
	lo, hi := 0, len(in.Keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if bytes.Compare(key, in.Keys[mid]) < 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

func (t *Tree) leafNeedsSplit(l *LeafNode) bool {
	if len(l.Keys) > t.opts.MaxEntries {
		return true
	}
	return len(Encode(t.maybeCompress(l))) > page.PayloadCapacity
}

func (t *Tree) internalNeedsSplit(in *InternalNode) bool {
	if len(in.Keys) > t.opts.MaxEntries {
		return true
	}
	return len(Encode(t.maybeCompress(in))) > page.PayloadCapacity
}

// Delete removes key, returning common.ErrKeyNotFound if absent.
func (t *Tree) Delete(key []byte) error {
	if len(key) == 0 {
		return common.ErrKeyEmpty
	}
	latch := t.latches.GetLatch(t.rootPageID)
	latch.Lock(LatchWrite)
	defer latch.Unlock(LatchWrite)

	_, err := t.deleteRec(t.rootPageID, key)
	if err != nil {
		return err
	}

	root, err := t.fetch(t.rootPageID)
	if err != nil {
		return err
	}
	if in, ok := TryAsInternal(root); ok && in.Len() == 0 {
		t.rootPageID = in.ChildAt(0)
	}
	return nil
}

// deleteRec removes key from the subtree at pageID, rebalancing any child
// that underflows by borrowing from (or merging with) its left sibling when
// possible, falling back to the right sibling (spec: left-sibling
// preference tie-break). It reports whether pageID's own node is now
// underflowing, letting the caller decide how to rebalance it.
func (t *Tree) deleteRec(pageID uint64, key []byte) (underflow bool, err error) {
	node, err := t.fetch(pageID)
	if err != nil {
		return false, err
	}

	if _, ok := TryAsLeaf(node); ok {
		leaf := asMutableLeaf(node)
		idx, found := leaf.Search(key)
		if !found {
			return false, common.ErrKeyNotFound
		}
		leaf.Keys = append(leaf.Keys[:idx], leaf.Keys[idx+1:]...)
		leaf.Values = append(leaf.Values[:idx], leaf.Values[idx+1:]...)
		if err := t.store(pageID, leaf); err != nil {
			return false, err
		}
		return len(leaf.Keys) < MinEntries, nil
	}

	in := asMutableInternal(node)
	idx := childIndexFor(in, key)
	childUnderflow, err := t.deleteRec(in.Children[idx], key)
	if err != nil {
		return false, err
	}
	if !childUnderflow {
		return false, nil
	}

	if err := t.rebalanceChild(pageID, in, idx); err != nil {
		return false, err
	}
	return len(in.Keys) < MinEntries, nil
}
