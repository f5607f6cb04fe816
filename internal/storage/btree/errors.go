package btree

import "github.com/neuroquantum/neuroquantumdb/internal/common"

func errNotALeaf(pageID uint64) error {
	return common.New(common.KindCorruptState, "btree: page %d linked as next-leaf is not a leaf", pageID)
}
