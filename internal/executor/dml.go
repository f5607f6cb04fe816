package executor

import (
	"github.com/neuroquantum/neuroquantumdb/internal/sql/ast"
	"github.com/neuroquantum/neuroquantumdb/internal/storage/row"
	"github.com/neuroquantum/neuroquantumdb/internal/storage/wal"
	"github.com/neuroquantum/neuroquantumdb/internal/txn"
)

// withWriteLock brackets fn with a table-level Exclusive intent lock and a
// Begin/Commit (or Abort, on error) pair of WAL markers, consistent with
// the envelope internal/cluster/coordinator's WriteCommand already applies
// at the replication layer. fn receives the txn id to tag its own page
// writes with.
func (e *Executor) withWriteLock(table string, fn func(txnID uint64) error) error {
	t := e.locks.Begin(txn.Serializable)
	if err := e.locks.Lock(t, "table:"+table, txn.Exclusive); err != nil {
		e.locks.Abort(t)
		return err
	}

	txnID := e.store.NextTxnID()
	if err := e.store.AppendWAL(txnID, wal.KindBegin); err != nil {
		e.locks.Abort(t)
		return err
	}

	if err := fn(txnID); err != nil {
		_ = e.store.AppendWAL(txnID, wal.KindAbort)
		_ = e.store.SyncWAL()
		e.locks.Abort(t)
		return err
	}

	if err := e.store.AppendWAL(txnID, wal.KindCommit); err != nil {
		e.locks.Abort(t)
		return err
	}
	if err := e.store.SyncWAL(); err != nil {
		e.locks.Abort(t)
		return err
	}
	return e.locks.Commit(t)
}

func (e *Executor) executeInsert(s *ast.Insert, params Params) (*Result, error) {
	err := e.withWriteLock(s.Table, func(txnID uint64) error {
		for _, tuple := range s.Values {
			r := row.Row{}
			for i, expr := range tuple {
				if i >= len(s.Columns) {
					break
				}
				if _, isDefault := expr.(*ast.Default); isDefault {
					continue
				}
				v, err := e.eval(expr, Row{}, params)
				if err != nil {
					return err
				}
				r[s.Columns[i]] = v
			}
			if err := e.store.InsertRow(txnID, s.Table, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Result{RowsAffected: len(s.Values)}, nil
}

func (e *Executor) executeUpdate(s *ast.Update, params Params) (*Result, error) {
	if s.Where == nil {
		e.log.Warn().Str("table", s.Table).Msg("UPDATE without a WHERE clause affects every row")
	}
	pred, err := e.rowPredicate(s.Table, s.Where, params)
	if err != nil {
		return nil, err
	}
	var n int
	err = e.withWriteLock(s.Table, func(txnID uint64) error {
		var updateErr error
		n, updateErr = e.store.UpdateRows(txnID, row.UpdateQuery{
			Table:     s.Table,
			Predicate: pred,
			Mutate: func(r row.Row) row.Row {
				execRow := Row(r)
				for _, a := range s.Set {
					v, evalErr := e.eval(a.Value, execRow, params)
					if evalErr != nil {
						continue // a SET expression that fails to evaluate leaves its column unchanged
					}
					r[a.Column] = v
				}
				return r
			},
		})
		return updateErr
	})
	if err != nil {
		return nil, err
	}
	return &Result{RowsAffected: n}, nil
}

func (e *Executor) executeDelete(s *ast.Delete, params Params) (*Result, error) {
	if s.Where == nil {
		e.log.Warn().Str("table", s.Table).Msg("DELETE without a WHERE clause removes every row")
	}
	pred, err := e.rowPredicate(s.Table, s.Where, params)
	if err != nil {
		return nil, err
	}
	var n int
	err = e.withWriteLock(s.Table, func(txnID uint64) error {
		var deleteErr error
		n, deleteErr = e.store.DeleteRows(txnID, row.DeleteQuery{Table: s.Table, Predicate: pred})
		return deleteErr
	})
	if err != nil {
		return nil, err
	}
	return &Result{RowsAffected: n}, nil
}

// rowPredicate adapts a WHERE clause into the row.Row predicate UpdateRows/
// DeleteRows expect. A nil where matches every row.
func (e *Executor) rowPredicate(table string, where ast.Expr, params Params) (func(row.Row) bool, error) {
	if where == nil {
		return nil, nil
	}
	return func(r row.Row) bool {
		keep, err := e.evalBool(where, Row(r), params)
		return err == nil && keep
	}, nil
}
