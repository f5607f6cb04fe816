// Package planner converts SQL ASTs into a logical operator tree
// (spec §4.H). The tree is then handed to internal/executor for
// volcano-style iterator-pull evaluation.
package planner

import "github.com/neuroquantum/neuroquantumdb/internal/sql/ast"

// Op is implemented by every logical operator node.
type Op interface{ op() }

// Cost mirrors the four fields EXPLAIN prints (spec §4.J).
type Cost struct {
	StartupCost float64
	TotalCost   float64
	PlanRows    float64
	PlanWidth   int
}

type TableScan struct {
	Table string
	Alias string
	Cost  Cost
}

func (*TableScan) op() {}

// IndexScan is chosen over TableScan when the advisor/catalog has an index
// usable for the scan's equality predicate.
type IndexScan struct {
	Table     string
	Alias     string
	IndexName string
	Column    string
	Eq        ast.Expr
	Cost      Cost
}

func (*IndexScan) op() {}

type Filter struct {
	Input Op
	Pred  ast.Expr
	Cost  Cost
}

func (*Filter) op() {}

type Project struct {
	Input   Op
	Columns []ast.SelectItem
	Cost    Cost
}

func (*Project) op() {}

type NestedLoopJoin struct {
	Left, Right Op
	On          ast.Expr
	Kind        string
	Cost        Cost
}

func (*NestedLoopJoin) op() {}

type HashJoin struct {
	Left, Right Op
	LeftKey     ast.Expr
	RightKey    ast.Expr
	Kind        string
	Cost        Cost
}

func (*HashJoin) op() {}

type MergeJoin struct {
	Left, Right Op
	LeftKey     ast.Expr
	RightKey    ast.Expr
	Kind        string
	Cost        Cost
}

func (*MergeJoin) op() {}

type Sort struct {
	Input Op
	Keys  []ast.OrderItem
	Cost  Cost
}

func (*Sort) op() {}

type Aggregate struct {
	Input   Op
	GroupBy []ast.Expr
	Exprs   []ast.SelectItem
	Having  ast.Expr
	Cost    Cost
}

func (*Aggregate) op() {}

type WindowAgg struct {
	Input   Op
	Exprs   []ast.SelectItem
	Cost    Cost
}

func (*WindowAgg) op() {}

type Limit struct {
	Input  Op
	Limit  ast.Expr
	Offset ast.Expr
	Cost   Cost
}

func (*Limit) op() {}

// Materialize forces Sort/Aggregate-style full-buffering semantics over its
// input, used as the explicit operator wherever the executor must hold the
// full input set in memory (spec §4.H).
type Materialize struct {
	Input Op
	Cost  Cost
}

func (*Materialize) op() {}

type UnionAll struct {
	Left, Right Op
	Cost        Cost
}

func (*UnionAll) op() {}

// CteScan reads the materialized rows produced for a CTE by name.
type CteScan struct {
	Name string
	Cost Cost
}

func (*CteScan) op() {}

// Values is a literal row source; the planner uses it as the single empty
// input row of a SELECT without a FROM clause.
type Values struct {
	Rows [][]ast.Expr
	Cost Cost
}

func (*Values) op() {}
