package page

import "github.com/neuroquantum/neuroquantumdb/internal/common"

func errInvalidSize(n int) error {
	return common.New(common.KindCorruptState, "invalid page size: got %d bytes, want %d", n, Size)
}

func errCorrupt(id uint64) error {
	return common.New(common.KindCorruptState, "page %d: checksum mismatch", id)
}
