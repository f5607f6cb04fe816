// Package executor evaluates compiled internal/planner plans and the
// non-query statements (DDL, transaction control, PREPARE/EXECUTE) using
// the iterator-pull ("volcano") model (spec §4.H).
package executor

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/neuroquantum/neuroquantumdb/internal/advisor"
	"github.com/neuroquantum/neuroquantumdb/internal/common"
	"github.com/neuroquantum/neuroquantumdb/internal/effects"
	"github.com/neuroquantum/neuroquantumdb/internal/planner"
	"github.com/neuroquantum/neuroquantumdb/internal/sql/ast"
	"github.com/neuroquantum/neuroquantumdb/internal/storage/row"
	"github.com/neuroquantum/neuroquantumdb/internal/txn"
)

// Row is the executor's in-flight tuple representation. Columns are keyed
// both by bare name ("email") and table-qualified name ("users.email");
// after a join, an ambiguous bare key holds the rightmost table's value —
// a documented simplification, not a silent correctness gap (see
// DESIGN.md).
type Row map[string]any

// Result is what Execute returns for any statement.
type Result struct {
	Columns      []string
	Rows         []Row
	RowsAffected int
	Plan         *planner.Plan // set for SELECT and EXPLAIN
}

// Executor ties the planner, row store, and lock manager together.
type Executor struct {
	store    *row.Store
	locks    *txn.Manager
	log      zerolog.Logger
	prepared map[string]*ast.Prepare
	indexes  map[string]map[string]string // table -> column -> index name
	advisor  *advisor.Advisor
	effects  *effects.Dispatcher
}

// SetEffectDispatcher installs the handler registry for effect-layer
// statements (NeuroMatch, QuantumSearch, ... — spec §4.G). Without one,
// every effect statement reports Unsupported.
func (e *Executor) SetEffectDispatcher(d *effects.Dispatcher) { e.effects = d }

// SetAdvisor installs a workload advisor that observes every compiled SELECT
// plan, letting Recommendations later suggest indexes (spec §4.I). A nil
// Executor.advisor (the default) disables observation entirely.
func (e *Executor) SetAdvisor(a *advisor.Advisor) { e.advisor = a }

// Advisor returns the installed workload advisor, or nil if none was set.
func (e *Executor) Advisor() *advisor.Advisor { return e.advisor }

// New builds an Executor over store, using locks for table-level locking and
// log for warning-level safety events (unqualified UPDATE/DELETE, spec
// §4.H).
func New(store *row.Store, locks *txn.Manager, log zerolog.Logger) *Executor {
	return &Executor{
		store:    store,
		locks:    locks,
		log:      log,
		prepared: make(map[string]*ast.Prepare),
		indexes:  make(map[string]map[string]string),
	}
}

// TableRowCount implements planner.Catalog.
func (e *Executor) TableRowCount(table string) int64 {
	rows, err := e.store.SelectRows(row.SelectQuery{Table: table})
	if err != nil {
		return 0
	}
	return int64(len(rows))
}

// IndexFor implements planner.Catalog.
func (e *Executor) IndexFor(table, column string) (string, bool) {
	cols, ok := e.indexes[table]
	if !ok {
		return "", false
	}
	name, ok := cols[column]
	return name, ok
}

// RegisterIndex records that an index exists for table.column, letting the
// planner choose IndexScan over TableScan (spec §4.J, S6). It is called by
// CREATE INDEX and by the index advisor's applied recommendations.
func (e *Executor) RegisterIndex(table, column, name string) {
	if e.indexes[table] == nil {
		e.indexes[table] = make(map[string]string)
	}
	e.indexes[table][column] = name
}

// Execute runs a single parsed statement to completion.
func (e *Executor) Execute(stmt ast.Statement, params Params) (*Result, error) {
	switch s := stmt.(type) {
	case *ast.Select:
		return e.executeSelect(s, params)
	case *ast.Insert:
		return e.executeInsert(s, params)
	case *ast.Update:
		return e.executeUpdate(s, params)
	case *ast.Delete:
		return e.executeDelete(s, params)
	case *ast.CreateTable:
		return e.executeCreateTable(s)
	case *ast.DropTable:
		return e.executeDropTable(s)
	case *ast.AlterTable:
		return e.executeAlterTable(s)
	case *ast.CreateIndex:
		return e.executeCreateIndex(s)
	case *ast.DropIndex:
		return &Result{}, e.dropIndex(s.Name)
	case *ast.TruncateTable:
		err := e.withWriteLock(s.Table, func(txnID uint64) error {
			_, delErr := e.store.DeleteRows(txnID, row.DeleteQuery{Table: s.Table})
			return delErr
		})
		return &Result{}, err
	case *ast.CompressTable:
		return &Result{}, nil // compression is a storage-layer concern; no-op at this layer
	case *ast.Explain:
		return e.executeExplain(s, params)
	case *ast.Analyze:
		return &Result{}, nil
	case *ast.BeginTransaction, *ast.Commit, *ast.Rollback, *ast.Savepoint,
		*ast.RollbackToSavepoint, *ast.ReleaseSavepoint:
		return &Result{}, common.New(common.KindUnsupported, "transaction control statements are driven by the caller's txn.Manager, not Executor.Execute")
	case *ast.Prepare:
		e.prepared[s.Name] = s
		return &Result{}, nil
	case *ast.Execute:
		return e.executePrepared(s, params)
	case *ast.Deallocate:
		delete(e.prepared, s.Name)
		return &Result{}, nil
	case *ast.EffectStatement:
		return e.executeEffect(s)
	default:
		return nil, common.New(common.KindUnsupported, "executor: unhandled statement type %T", stmt)
	}
}

// executeEffect dispatches an effect-layer statement (spec §4.G) to its
// registered handler. With no dispatcher installed, or no handler
// registered for the statement's Kind, it reports Unsupported rather than
// silently succeeding — the core must be correct with zero plug-ins (§1)
// but callers still need to know whether their effect statement actually ran.
func (e *Executor) executeEffect(s *ast.EffectStatement) (*Result, error) {
	if e.effects == nil {
		return nil, common.New(common.KindUnsupported, "effect-layer statement %s has no installed dispatcher", s.Kind)
	}
	rows, handled, err := e.effects.Run(s)
	if err != nil {
		return nil, err
	}
	if !handled {
		return nil, common.New(common.KindUnsupported, "effect-layer statement %s has no registered handler", s.Kind)
	}
	out := make([]Row, 0, len(rows))
	var cols []string
	seen := map[string]bool{}
	for _, r := range rows {
		row := Row(r)
		out = append(out, row)
		for k := range row {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	return &Result{Columns: cols, Rows: out}, nil
}

func (e *Executor) dropIndex(name string) error {
	for table, cols := range e.indexes {
		for col, idxName := range cols {
			if idxName == name {
				delete(e.indexes[table], col)
				return nil
			}
		}
	}
	return common.New(common.KindNotFound, "no such index %q", name)
}

func (e *Executor) executeCreateIndex(s *ast.CreateIndex) (*Result, error) {
	name := s.Name
	if name == "" {
		name = fmt.Sprintf("idx_%s_%s", s.Table, strings.Join(s.Columns, "_"))
	}
	for _, col := range s.Columns {
		e.RegisterIndex(s.Table, col, name)
	}
	return &Result{}, nil
}
