// Package advisor implements the index advisor (spec §4.I): a workload
// sampler that observes every compiled plan and, on request, scores
// candidate indexes for tables that would benefit from one.
package advisor

import (
	"sync"
	"time"

	"github.com/neuroquantum/neuroquantumdb/internal/common"
	"github.com/neuroquantum/neuroquantumdb/internal/planner"
	"github.com/neuroquantum/neuroquantumdb/internal/sql/ast"
)

// Config bounds the advisor's tracking and recommendation output.
type Config struct {
	MinQueryThreshold         int64
	MinImprovementThreshold   float64
	MaxRecommendations        int
	MaxTrackedTables          int
	MaxTrackedColumnsPerTable int
}

// DefaultConfig mirrors the values SPEC_FULL.md's configuration surface
// documents as the advisor's defaults.
func DefaultConfig() Config {
	return Config{
		MinQueryThreshold:         10,
		MinImprovementThreshold:   0.2,
		MaxRecommendations:        20,
		MaxTrackedTables:          200,
		MaxTrackedColumnsPerTable: 64,
	}
}

type columnStats struct {
	whereUses               int64
	whereEqUses             int64
	joinUses                int64
	orderByUses             int64
	groupByUses             int64
	leadingWildcardLikeUses int64
}

type tableStats struct {
	queryCount int64
	fullScans  int64
	lastAccess time.Time
	columns    map[string]*columnStats
}

// IndexCatalog lets Recommendations skip columns that already have an
// index — satisfied by internal/executor's index registry.
type IndexCatalog interface {
	IndexFor(table, column string) (name string, ok bool)
}

// Advisor tracks workload statistics and produces index recommendations.
type Advisor struct {
	mu     sync.Mutex
	clock  common.Clock
	cfg    Config
	tables map[string]*tableStats

	// unqualified is the table that column refs without a table name
	// resolve to while walking a Filter directly over a single TableScan.
	unqualified string
}

func New(cfg Config, clock common.Clock) *Advisor {
	if clock == nil {
		clock = common.RealClock{}
	}
	return &Advisor{cfg: cfg, clock: clock, tables: make(map[string]*tableStats)}
}

// Observe walks a compiled plan's tree, attributing WHERE/JOIN/ORDER BY/
// GROUP BY predicate usage and full-table-scan occurrences to the tables
// and columns it touches.
func (a *Advisor) Observe(plan *planner.Plan) {
	a.mu.Lock()
	defer a.mu.Unlock()
	touched := map[string]bool{}
	a.unqualified = ""
	a.walk(plan.Root, touched)
	now := a.clock.Now()
	for name := range touched {
		t := a.tableFor(name)
		t.queryCount++
		t.lastAccess = now
	}
}

func (a *Advisor) walk(op planner.Op, touched map[string]bool) {
	switch o := op.(type) {
	case *planner.TableScan:
		touched[o.Table] = true
		a.tableFor(o.Table).fullScans++
	case *planner.IndexScan:
		touched[o.Table] = true
	case *planner.Filter:
		a.unqualified = ""
		if scan, ok := o.Input.(*planner.TableScan); ok {
			a.unqualified = scan.Table
		}
		a.recordWhere(o.Pred)
		a.walk(o.Input, touched)
	case *planner.Project:
		a.walk(o.Input, touched)
	case *planner.NestedLoopJoin:
		a.recordJoinCond(o.On)
		a.walk(o.Left, touched)
		a.walk(o.Right, touched)
	case *planner.HashJoin:
		a.recordJoinKey(o.LeftKey)
		a.recordJoinKey(o.RightKey)
		a.walk(o.Left, touched)
		a.walk(o.Right, touched)
	case *planner.MergeJoin:
		a.recordJoinKey(o.LeftKey)
		a.recordJoinKey(o.RightKey)
		a.walk(o.Left, touched)
		a.walk(o.Right, touched)
	case *planner.Sort:
		for _, k := range o.Keys {
			a.recordColumnUse(k.Expr, func(cs *columnStats) { cs.orderByUses++ })
		}
		a.walk(o.Input, touched)
	case *planner.Aggregate:
		for _, g := range o.GroupBy {
			a.recordColumnUse(g, func(cs *columnStats) { cs.groupByUses++ })
		}
		a.walk(o.Input, touched)
	case *planner.WindowAgg:
		a.walk(o.Input, touched)
	case *planner.Limit:
		a.walk(o.Input, touched)
	case *planner.Materialize:
		a.walk(o.Input, touched)
	case *planner.UnionAll:
		a.walk(o.Left, touched)
		a.walk(o.Right, touched)
	}
}

func (a *Advisor) recordWhere(expr ast.Expr) {
	switch v := expr.(type) {
	case *ast.BinaryExpr:
		if v.Op == "AND" || v.Op == "OR" {
			a.recordWhere(v.Left)
			a.recordWhere(v.Right)
			return
		}
		a.recordColumnUse(v.Left, func(cs *columnStats) {
			cs.whereUses++
			if v.Op == "=" {
				cs.whereEqUses++
			}
		})
	case *ast.LikeExpr:
		a.recordColumnUse(v.Operand, func(cs *columnStats) {
			cs.whereUses++
			if lit, ok := v.Pattern.(*ast.Literal); ok {
				if s, ok := lit.Value.(string); ok && len(s) > 0 && s[0] == '%' {
					cs.leadingWildcardLikeUses++
				}
			}
		})
	case *ast.InList:
		a.recordColumnUse(v.Operand, func(cs *columnStats) { cs.whereUses++ })
	case *ast.BetweenExpr:
		a.recordColumnUse(v.Operand, func(cs *columnStats) { cs.whereUses++ })
	case *ast.IsNull:
		a.recordColumnUse(v.Operand, func(cs *columnStats) { cs.whereUses++ })
	}
}

func (a *Advisor) recordJoinCond(on ast.Expr) {
	be, ok := on.(*ast.BinaryExpr)
	if !ok || be.Op != "=" {
		return
	}
	a.recordJoinKey(be.Left)
	a.recordJoinKey(be.Right)
}

func (a *Advisor) recordJoinKey(expr ast.Expr) {
	a.recordColumnUse(expr, func(cs *columnStats) { cs.joinUses++ })
}

func (a *Advisor) recordColumnUse(expr ast.Expr, fn func(*columnStats)) {
	col, ok := expr.(*ast.ColumnRef)
	if !ok {
		return
	}
	table := col.Table
	if table == "" {
		table = a.unqualified
	}
	if table == "" {
		return
	}
	fn(a.columnFor(table, col.Column))
}

func (a *Advisor) tableFor(name string) *tableStats {
	t, ok := a.tables[name]
	if ok {
		return t
	}
	if len(a.tables) >= a.cfg.MaxTrackedTables {
		return &tableStats{columns: map[string]*columnStats{}}
	}
	t = &tableStats{columns: map[string]*columnStats{}}
	a.tables[name] = t
	return t
}

func (a *Advisor) columnFor(table, column string) *columnStats {
	t := a.tableFor(table)
	c, ok := t.columns[column]
	if ok {
		return c
	}
	if len(t.columns) >= a.cfg.MaxTrackedColumnsPerTable {
		return &columnStats{}
	}
	c = &columnStats{}
	t.columns[column] = c
	return c
}
