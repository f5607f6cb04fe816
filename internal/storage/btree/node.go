// Package btree implements the ordered map Key=[]byte -> Value=uint64 (a
// row locator) backing the row store (spec §4.C), as four logical node
// variants sharing one on-disk page: uncompressed/compressed leaf and
// uncompressed/compressed internal. All four represent the same logical
// structure; callers that need to tell "is this a leaf" from "is this
// internal" use the safe TryAsLeaf/TryAsInternal downcasts below rather
// than a type switch, so a new node variant can't silently fall through a
// caller that forgot to handle it.
package btree

import "bytes"

// Kind tags which of the four node variants a page holds.
type Kind byte

const (
	KindLeaf Kind = iota
	KindInternal
	KindCompressedLeaf
	KindCompressedInternal
)

// Node is implemented by all four node variants.
type Node interface {
	Kind() Kind
	IsLeaf() bool
}

// Leaf is the normalized read view shared by LeafNode and
// CompressedLeafNode. Compressed variants reconstruct full keys on demand;
// callers never need to know which kind they're looking at.
type Leaf interface {
	Node
	Len() int
	KeyAt(i int) []byte
	ValueAt(i int) uint64
	NextLeaf() uint64
}

// Internal is the normalized read view shared by InternalNode and
// CompressedInternalNode. There are Len() separator keys and Len()+1
// children; ChildAt(i) holds keys in [KeyAt(i-1), KeyAt(i)) using KeyAt(-1)
// and KeyAt(Len()) as -inf/+inf sentinels.
type Internal interface {
	Node
	Len() int
	KeyAt(i int) []byte
	ChildAt(i int) uint64
}

// TryAsLeaf safely downcasts n to Leaf, succeeding for both leaf variants
// and failing (without panicking) for internal nodes.
func TryAsLeaf(n Node) (Leaf, bool) {
	l, ok := n.(Leaf)
	return l, ok
}

// TryAsInternal safely downcasts n to Internal.
func TryAsInternal(n Node) (Internal, bool) {
	in, ok := n.(Internal)
	return in, ok
}

// --- uncompressed leaf ---

// LeafNode stores keys and values verbatim, plus the page id of the next
// leaf in key order (0 means "no next leaf") so range scans need not
// revisit internal nodes (spec §4.C leaf-chain requirement).
type LeafNode struct {
	Keys     [][]byte
	Values   []uint64
	NextLeaf_ uint64
}

func (n *LeafNode) Kind() Kind        { return KindLeaf }
func (n *LeafNode) IsLeaf() bool      { return true }
func (n *LeafNode) Len() int          { return len(n.Keys) }
func (n *LeafNode) KeyAt(i int) []byte { return n.Keys[i] }
func (n *LeafNode) ValueAt(i int) uint64 { return n.Values[i] }
func (n *LeafNode) NextLeaf() uint64   { return n.NextLeaf_ }

// Search returns (index, true) if key is present, else (insertion point,
// false), by binary search over the sorted key slice.
func (n *LeafNode) Search(key []byte) (int, bool) {
	lo, hi := 0, len(n.Keys)
	for lo < hi {
		mid := (lo + hi) / 2
		c := bytes.Compare(n.Keys[mid], key)
		if c == 0 {
			return mid, true
		}
		if c < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, false
}

// --- uncompressed internal ---

// InternalNode stores separator keys and child page ids verbatim.
type InternalNode struct {
	Keys     [][]byte
	Children []uint64
}

func (n *InternalNode) Kind() Kind          { return KindInternal }
func (n *InternalNode) IsLeaf() bool        { return false }
func (n *InternalNode) Len() int            { return len(n.Keys) }
func (n *InternalNode) KeyAt(i int) []byte  { return n.Keys[i] }
func (n *InternalNode) ChildAt(i int) uint64 { return n.Children[i] }

// ChildFor returns the index of the child that would hold key.
func (n *InternalNode) ChildFor(key []byte) int {
	lo, hi := 0, len(n.Keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if bytes.Compare(key, n.Keys[mid]) < 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// --- compressed leaf ---

// CompressedLeafNode stores the longest common prefix of every key once,
// plus per-entry suffixes (spec §4.C leaf compression). Insert/delete
// recompute the prefix and every suffix from the full decompressed key set
// (Open Question decision: simplest strategy that keeps the round-trip law
// unconditionally true, rather than porting the original's narrower
// incremental recomputation).
type CompressedLeafNode struct {
	Prefix    []byte
	Suffixes  [][]byte
	Values    []uint64
	NextLeaf_ uint64
}

func (n *CompressedLeafNode) Kind() Kind        { return KindCompressedLeaf }
func (n *CompressedLeafNode) IsLeaf() bool      { return true }
func (n *CompressedLeafNode) Len() int          { return len(n.Suffixes) }
func (n *CompressedLeafNode) NextLeaf() uint64  { return n.NextLeaf_ }

func (n *CompressedLeafNode) KeyAt(i int) []byte {
	full := make([]byte, 0, len(n.Prefix)+len(n.Suffixes[i]))
	full = append(full, n.Prefix...)
	full = append(full, n.Suffixes[i]...)
	return full
}

func (n *CompressedLeafNode) ValueAt(i int) uint64 { return n.Values[i] }

// CompressLeaf builds a CompressedLeafNode from a full key/value/next-leaf
// set, recomputing the shared prefix from scratch.
func CompressLeaf(keys [][]byte, values []uint64, nextLeaf uint64) *CompressedLeafNode {
	prefix := commonPrefix(keys)
	suffixes := make([][]byte, len(keys))
	for i, k := range keys {
		suffixes[i] = append([]byte(nil), k[len(prefix):]...)
	}
	return &CompressedLeafNode{Prefix: prefix, Suffixes: suffixes, Values: values, NextLeaf_: nextLeaf}
}

// DecompressLeaf materializes every full key, for callers (e.g. insert)
// that need to mutate the logical key set before recompressing.
func (n *CompressedLeafNode) DecompressLeaf() ([][]byte, []uint64) {
	keys := make([][]byte, n.Len())
	for i := range keys {
		keys[i] = n.KeyAt(i)
	}
	values := append([]uint64(nil), n.Values...)
	return keys, values
}

func commonPrefix(keys [][]byte) []byte {
	if len(keys) == 0 {
		return nil
	}
	prefix := keys[0]
	for _, k := range keys[1:] {
		prefix = sharedPrefix(prefix, k)
		if len(prefix) == 0 {
			break
		}
	}
	return append([]byte(nil), prefix...)
}

func sharedPrefix(a, b []byte) []byte {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}

// --- compressed internal ---

// KeyDelta encodes one separator key as a shared-prefix length against the
// PREVIOUS reconstructed key, plus the literal suffix (spec §4.C: "first
// key full, KeyDelta chain against previous key").
type KeyDelta struct {
	SharedPrefixLen int
	Suffix          []byte
}

// CompressedInternalNode stores its first separator key in full and every
// subsequent key as a KeyDelta chained against its predecessor.
type CompressedInternalNode struct {
	FirstKey []byte
	Deltas   []KeyDelta // len(Deltas) == Len()-1
	Children []uint64
}

func (n *CompressedInternalNode) Kind() Kind   { return KindCompressedInternal }
func (n *CompressedInternalNode) IsLeaf() bool { return false }
func (n *CompressedInternalNode) Len() int {
	if n.FirstKey == nil {
		return 0
	}
	return len(n.Deltas) + 1
}
func (n *CompressedInternalNode) ChildAt(i int) uint64 { return n.Children[i] }

// KeyAt reconstructs separator key i by sequentially applying every delta
// from FirstKey up to (not including) i. This deliberately corrects the
// off-by-one present in the original source's get_full_key, which applied
// one fewer delta than needed for any index past 0 (Open Question #1): the
// loop below walks i deltas, not i-1.
func (n *CompressedInternalNode) KeyAt(idx int) []byte {
	if idx == 0 {
		return append([]byte(nil), n.FirstKey...)
	}
	prev := n.FirstKey
	var cur []byte
	for i := 0; i < idx; i++ {
		d := n.Deltas[i]
		cur = make([]byte, 0, d.SharedPrefixLen+len(d.Suffix))
		cur = append(cur, prev[:d.SharedPrefixLen]...)
		cur = append(cur, d.Suffix...)
		prev = cur
	}
	return cur
}

// CompressInternal builds a CompressedInternalNode from a full separator
// key set, chaining each key's delta against its immediate predecessor.
func CompressInternal(keys [][]byte, children []uint64) *CompressedInternalNode {
	if len(keys) == 0 {
		return &CompressedInternalNode{Children: children}
	}
	n := &CompressedInternalNode{
		FirstKey: append([]byte(nil), keys[0]...),
		Deltas:   make([]KeyDelta, len(keys)-1),
		Children: children,
	}
	for i := 1; i < len(keys); i++ {
		shared := sharedPrefix(keys[i-1], keys[i])
		n.Deltas[i-1] = KeyDelta{
			SharedPrefixLen: len(shared),
			Suffix:          append([]byte(nil), keys[i][len(shared):]...),
		}
	}
	return n
}

// DecompressInternal materializes every full separator key.
func (n *CompressedInternalNode) DecompressInternal() [][]byte {
	keys := make([][]byte, n.Len())
	for i := range keys {
		keys[i] = n.KeyAt(i)
	}
	return keys
}

var (
	_ Leaf     = (*LeafNode)(nil)
	_ Leaf     = (*CompressedLeafNode)(nil)
	_ Internal = (*InternalNode)(nil)
	_ Internal = (*CompressedInternalNode)(nil)
)
