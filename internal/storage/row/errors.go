package row

import "github.com/neuroquantum/neuroquantumdb/internal/common"

func errTableNotFound(name string) error {
	return common.New(common.KindNotFound, "table %q not found", name)
}

func errTableExists(name string) error {
	return common.New(common.KindAlreadyExists, "table %q already exists", name)
}

func errColumnNotFound(table, column string) error {
	return common.New(common.KindInvalidInput, "table %q has no column %q", table, column)
}

func errMissingColumn(column string) error {
	return common.New(common.KindConstraintViolation, "column %q is not nullable and was not supplied", column)
}

func errTypeMismatch(column, want string, got any) error {
	return common.New(common.KindInvalidInput, "column %q expects %s, got %T", column, want, got)
}

func errUniqueViolation(table, column string) error {
	return common.New(common.KindConstraintViolation, "unique constraint violated on %s.%s", table, column)
}

func errNoPrimaryKey(table string) error {
	return common.New(common.KindInvalidInput, "table %q has no primary key column", table)
}
