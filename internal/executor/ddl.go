package executor

import (
	"strings"

	"github.com/neuroquantum/neuroquantumdb/internal/common"
	"github.com/neuroquantum/neuroquantumdb/internal/sql/ast"
	"github.com/neuroquantum/neuroquantumdb/internal/storage/row"
)

func (e *Executor) executeCreateTable(s *ast.CreateTable) (*Result, error) {
	cols := make([]row.ColumnDef, 0, len(s.Columns))
	idStrategy := row.IDManual
	for _, c := range s.Columns {
		if c.AutoIncrement {
			idStrategy = row.IDAutoIncrement
		}
		cols = append(cols, row.ColumnDef{
			Name:       c.Name,
			Type:       mapColumnType(c.Type),
			Nullable:   c.Nullable,
			Unique:     c.Unique,
			PrimaryKey: c.PrimaryKey,
		})
	}
	err := e.store.CreateTable(s.Table, cols, idStrategy)
	if kind, ok := common.KindOf(err); err != nil && s.IfNotExist && ok && kind == common.KindAlreadyExists {
		return &Result{}, nil
	}
	return &Result{}, err
}

func (e *Executor) executeDropTable(s *ast.DropTable) (*Result, error) {
	err := e.store.DropTable(s.Table)
	if kind, ok := common.KindOf(err); err != nil && s.IfExists && ok && kind == common.KindNotFound {
		return &Result{}, nil
	}
	delete(e.indexes, s.Table)
	return &Result{}, err
}

// executeAlterTable handles the two operations the grammar allows per
// statement: ADD COLUMN and DROP COLUMN. internal/storage/row has no schema
// migration, so both return a KindUnsupported error and no row is rewritten;
// a statement carrying neither operation is rejected as invalid input.
func (e *Executor) executeAlterTable(s *ast.AlterTable) (*Result, error) {
	if s.AddColumn != nil {
		return &Result{}, common.New(common.KindUnsupported, "ALTER TABLE ADD COLUMN requires a schema rewrite the row store does not yet expose")
	}
	if s.DropCol != "" {
		return &Result{}, common.New(common.KindUnsupported, "ALTER TABLE DROP COLUMN requires a schema rewrite the row store does not yet expose")
	}
	return &Result{}, common.New(common.KindInvalidInput, "ALTER TABLE with no operation")
}

func mapColumnType(sqlType string) row.ColumnType {
	switch strings.ToUpper(sqlType) {
	case "INT", "INTEGER", "BIGINT", "SMALLINT":
		return row.TypeInt64
	case "FLOAT", "DOUBLE", "REAL", "DECIMAL", "NUMERIC":
		return row.TypeFloat64
	case "BOOL", "BOOLEAN":
		return row.TypeBool
	case "BLOB", "BYTEA", "BINARY":
		return row.TypeBlob
	default: // TEXT, VARCHAR(n), CHAR(n), ...
		return row.TypeText
	}
}
