package txn

import "github.com/neuroquantum/neuroquantumdb/internal/common"

func errSavepointNotFound(name string) error {
	return common.New(common.KindInvalidInput, "no such savepoint %q", name)
}
