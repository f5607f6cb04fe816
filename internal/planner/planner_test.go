package planner

import (
	"testing"

	"github.com/neuroquantum/neuroquantumdb/internal/sql/ast"
	"github.com/neuroquantum/neuroquantumdb/internal/sql/parser"
)

type fakeCatalog struct {
	rowCounts map[string]int64
	indexes   map[string]string // "table.column" -> index name
}

func (c *fakeCatalog) TableRowCount(table string) int64 { return c.rowCounts[table] }

func (c *fakeCatalog) IndexFor(table, column string) (string, bool) {
	idx, ok := c.indexes[table+"."+column]
	return idx, ok
}

func compileSQL(t *testing.T, catalog Catalog, sql string) *Plan {
	t.Helper()
	stmt, err := parser.Parse(sql)
	if err != nil {
		t.Fatalf("Parse(%q): %v", sql, err)
	}
	sel, ok := stmt.(*ast.Select)
	if !ok {
		t.Fatalf("stmt = %T, want *ast.Select", stmt)
	}
	p := New(catalog)
	plan, err := p.Compile(sel)
	if err != nil {
		t.Fatalf("Compile(%q): %v", sql, err)
	}
	return plan
}

func TestCompilePlainSelectProducesTableScanAndProject(t *testing.T) {
	catalog := &fakeCatalog{rowCounts: map[string]int64{"users": 100}}
	plan := compileSQL(t, catalog, "SELECT id FROM users")

	proj, ok := plan.Root.(*Project)
	if !ok {
		t.Fatalf("Root = %T, want *Project", plan.Root)
	}
	scan, ok := proj.Input.(*TableScan)
	if !ok || scan.Table != "users" {
		t.Fatalf("Project.Input = %+v, want a TableScan over users", proj.Input)
	}
}

func TestCompileWhereAddsFilter(t *testing.T) {
	catalog := &fakeCatalog{rowCounts: map[string]int64{"users": 100}}
	plan := compileSQL(t, catalog, "SELECT id FROM users WHERE age = 30")

	proj := plan.Root.(*Project)
	if _, ok := proj.Input.(*Filter); !ok {
		t.Fatalf("Project.Input = %T, want *Filter (no index on age)", proj.Input)
	}
}

func TestCompilePrefersIndexScanWhenIndexed(t *testing.T) {
	catalog := &fakeCatalog{
		rowCounts: map[string]int64{"users": 100},
		indexes:   map[string]string{"users.age": "idx_users_age"},
	}
	plan := compileSQL(t, catalog, "SELECT id FROM users WHERE age = 30")

	proj := plan.Root.(*Project)
	idx, ok := proj.Input.(*IndexScan)
	if !ok {
		t.Fatalf("Project.Input = %T, want *IndexScan once an index exists", proj.Input)
	}
	if idx.IndexName != "idx_users_age" || idx.Column != "age" {
		t.Fatalf("IndexScan = %+v, want idx_users_age on age", idx)
	}
}

func TestCompileGroupByProducesAggregate(t *testing.T) {
	catalog := &fakeCatalog{rowCounts: map[string]int64{"orders": 50}}
	plan := compileSQL(t, catalog, "SELECT customer_id, SUM(amount) FROM orders GROUP BY customer_id")

	agg, ok := plan.Root.(*Aggregate)
	if !ok {
		t.Fatalf("Root = %T, want *Aggregate", plan.Root)
	}
	if len(agg.GroupBy) != 1 {
		t.Fatalf("GroupBy = %v, want 1 key", agg.GroupBy)
	}
}

func TestCompileBareAggregateWithoutGroupBy(t *testing.T) {
	catalog := &fakeCatalog{rowCounts: map[string]int64{"orders": 50}}
	plan := compileSQL(t, catalog, "SELECT COUNT(*) FROM orders")
	if _, ok := plan.Root.(*Aggregate); !ok {
		t.Fatalf("Root = %T, want *Aggregate (a bare aggregate with no GROUP BY)", plan.Root)
	}
}

func TestCompileWindowCallProducesWindowAgg(t *testing.T) {
	catalog := &fakeCatalog{rowCounts: map[string]int64{"orders": 50}}
	plan := compileSQL(t, catalog, "SELECT RANK() OVER (PARTITION BY customer_id ORDER BY amount) FROM orders")
	if _, ok := plan.Root.(*WindowAgg); !ok {
		t.Fatalf("Root = %T, want *WindowAgg", plan.Root)
	}
}

func TestCompileOrderByWrapsSort(t *testing.T) {
	catalog := &fakeCatalog{rowCounts: map[string]int64{"users": 10}}
	plan := compileSQL(t, catalog, "SELECT id FROM users ORDER BY id DESC")
	if _, ok := plan.Root.(*Sort); !ok {
		t.Fatalf("Root = %T, want *Sort", plan.Root)
	}
}

func TestCompileLimitOffsetWrapsLimit(t *testing.T) {
	catalog := &fakeCatalog{rowCounts: map[string]int64{"users": 10}}
	plan := compileSQL(t, catalog, "SELECT id FROM users LIMIT 5 OFFSET 2")
	if _, ok := plan.Root.(*Limit); !ok {
		t.Fatalf("Root = %T, want *Limit", plan.Root)
	}
}

func TestCompileEquiJoinProducesHashJoin(t *testing.T) {
	catalog := &fakeCatalog{rowCounts: map[string]int64{"a": 10, "b": 10}}
	plan := compileSQL(t, catalog, "SELECT * FROM a JOIN b ON a.id = b.a_id")
	proj := plan.Root.(*Project)
	if _, ok := proj.Input.(*HashJoin); !ok {
		t.Fatalf("Project.Input = %T, want *HashJoin for an equi-join", proj.Input)
	}
}

func TestCompileNonEquiJoinProducesNestedLoopJoin(t *testing.T) {
	catalog := &fakeCatalog{rowCounts: map[string]int64{"a": 10, "b": 10}}
	plan := compileSQL(t, catalog, "SELECT * FROM a JOIN b ON a.id > b.a_id")
	proj := plan.Root.(*Project)
	if _, ok := proj.Input.(*NestedLoopJoin); !ok {
		t.Fatalf("Project.Input = %T, want *NestedLoopJoin for a non-equi join", proj.Input)
	}
}

func TestCompileUnionAllProducesUnionAllOp(t *testing.T) {
	catalog := &fakeCatalog{rowCounts: map[string]int64{"a": 5, "b": 5}}
	plan := compileSQL(t, catalog, "SELECT id FROM a UNION ALL SELECT id FROM b")
	if _, ok := plan.Root.(*UnionAll); !ok {
		t.Fatalf("Root = %T, want *UnionAll", plan.Root)
	}
}

func TestCompileNonRecursiveCTERegistersPlan(t *testing.T) {
	catalog := &fakeCatalog{rowCounts: map[string]int64{"t": 5}}
	plan := compileSQL(t, catalog, "WITH cte AS (SELECT id FROM t) SELECT id FROM cte")
	cp, ok := plan.CTEs["cte"]
	if !ok || cp.Anchor == nil || cp.Recur != nil {
		t.Fatalf("CTEs[\"cte\"] = %+v, want a non-recursive anchor-only plan", cp)
	}
	proj := plan.Root.(*Project)
	if _, ok := proj.Input.(*CteScan); !ok {
		t.Fatalf("Project.Input = %T, want *CteScan referencing the cte", proj.Input)
	}
}

func TestCompileRecursiveCTESplitsAnchorAndRecur(t *testing.T) {
	catalog := &fakeCatalog{rowCounts: map[string]int64{"t": 5}}
	plan := compileSQL(t, catalog,
		"WITH RECURSIVE cte AS (SELECT id FROM t UNION ALL SELECT id FROM cte) SELECT id FROM cte")
	cp, ok := plan.CTEs["cte"]
	if !ok {
		t.Fatal("expected a registered cte plan")
	}
	if cp.Anchor == nil || cp.Recur == nil {
		t.Fatalf("CTEPlan = %+v, want both Anchor and Recur set for a recursive CTE", cp)
	}
	if !cp.Recursive {
		t.Fatal("Recursive should be true")
	}
}
