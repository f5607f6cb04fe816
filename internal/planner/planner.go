package planner

import (
	"github.com/neuroquantum/neuroquantumdb/internal/common"
	"github.com/neuroquantum/neuroquantumdb/internal/sql/ast"
)

// Catalog is the planner's view of schema/index metadata, satisfied by
// internal/executor's binding to the row store and index advisor.
type Catalog interface {
	TableRowCount(table string) int64
	IndexFor(table, column string) (indexName string, ok bool)
}

// Plan is the compiled output: the logical operator tree plus the CTE
// definitions it may reference by name (spec §4.H).
type Plan struct {
	Root Op
	CTEs map[string]*CTEPlan
}

// CTEPlan holds a (possibly recursive) CTE's compiled anchor/recursive
// halves, consumed by the executor's fixpoint loop.
type CTEPlan struct {
	Name      string
	Recursive bool
	Anchor    Op
	Recur     Op // nil for a non-recursive CTE
	RowBudget int
}

// DefaultRecursiveRowBudget caps the total number of rows a recursive CTE
// accumulates across all its rounds, to guard against a non-terminating
// fixpoint (spec §4.H); a single round has no separate cap.
const DefaultRecursiveRowBudget = 1_000_000

// Planner compiles ast.Select statements into logical plans.
type Planner struct {
	catalog  Catalog
	cteNames map[string]bool // names bound by the WITH clause currently being compiled
}

func New(catalog Catalog) *Planner {
	return &Planner{catalog: catalog}
}

// Compile builds a Plan for sel.
func (p *Planner) Compile(sel *ast.Select) (*Plan, error) {
	plan := &Plan{CTEs: make(map[string]*CTEPlan)}
	p.cteNames = make(map[string]bool)
	if sel.With != nil {
		for _, cte := range sel.With.CTEs {
			p.cteNames[cte.Name] = true
			cp, err := p.compileCTE(cte)
			if err != nil {
				return nil, err
			}
			plan.CTEs[cte.Name] = cp
		}
	}
	root, err := p.compileSelect(sel)
	if err != nil {
		return nil, err
	}
	plan.Root = root
	return plan, nil
}

// compileCTE rewrites `WITH RECURSIVE name AS (anchor UNION ALL recursive)`
// into an explicit anchor/recursive pair the executor fixpoint-iterates
// (spec §4.H: `anchor ∪ (recursive ← cte)`).
func (p *Planner) compileCTE(cte ast.CTE) (*CTEPlan, error) {
	cp := &CTEPlan{Name: cte.Name, Recursive: cte.Recursive, RowBudget: DefaultRecursiveRowBudget}
	query := cte.Query
	if cte.Recursive && query.SetOp != nil && query.SetOp.Op == "UNION ALL" {
		anchor, err := p.compileSelect(&ast.Select{Columns: query.Columns, From: query.From, Where: query.Where})
		if err != nil {
			return nil, err
		}
		recur, err := p.compileSelect(query.SetOp.Right)
		if err != nil {
			return nil, err
		}
		cp.Anchor = anchor
		cp.Recur = recur
		return cp, nil
	}
	root, err := p.compileSelect(query)
	if err != nil {
		return nil, err
	}
	cp.Anchor = root
	return cp, nil
}

func (p *Planner) compileSelect(sel *ast.Select) (Op, error) {
	var root Op
	var err error

	switch len(sel.From) {
	case 0:
		root = &Values{Rows: [][]ast.Expr{{}}}
	case 1:
		root, err = p.compileTableRef(sel.From[0])
	default:
		root, err = p.compileImplicitJoin(sel.From)
	}
	if err != nil {
		return nil, err
	}

	if sel.Where != nil {
		if scan, ok := root.(*TableScan); ok {
			if idxScan, ok := p.tryIndexScan(scan, sel.Where); ok {
				root = idxScan
			} else {
				root = &Filter{Input: root, Pred: sel.Where}
			}
		} else {
			root = &Filter{Input: root, Pred: sel.Where}
		}
	}

	if len(sel.GroupBy) > 0 || hasAggregate(sel.Columns) {
		root = &Aggregate{Input: root, GroupBy: sel.GroupBy, Exprs: sel.Columns, Having: sel.Having}
	} else if hasWindowCall(sel.Columns) {
		root = &WindowAgg{Input: root, Exprs: sel.Columns}
	} else {
		root = &Project{Input: root, Columns: sel.Columns}
	}

	if len(sel.OrderBy) > 0 {
		root = &Sort{Input: root, Keys: sel.OrderBy}
	}

	if sel.Limit != nil || sel.Offset != nil {
		root = &Limit{Input: root, Limit: sel.Limit, Offset: sel.Offset}
	}

	if sel.SetOp != nil {
		right, err := p.compileSelect(sel.SetOp.Right)
		if err != nil {
			return nil, err
		}
		root = &UnionAll{Left: root, Right: right}
	}

	return root, nil
}

func (p *Planner) compileTableRef(ref ast.TableRef) (Op, error) {
	if ref.Join != nil {
		return p.compileJoin(ref.Join)
	}
	if ref.Subquery != nil {
		return p.compileSelect(ref.Subquery)
	}
	alias := ref.Alias
	if alias == "" {
		alias = ref.Table
	}
	if p.cteNames[ref.Table] {
		return &CteScan{Name: ref.Table}, nil
	}
	if p.catalog != nil {
		rows := p.catalog.TableRowCount(ref.Table)
		return &TableScan{Table: ref.Table, Alias: alias, Cost: seqScanCost(rows)}, nil
	}
	return &CteScan{Name: ref.Table}, nil
}

func (p *Planner) compileJoin(j *ast.Join) (Op, error) {
	left, err := p.compileTableRef(*j.Left)
	if err != nil {
		return nil, err
	}
	right, err := p.compileTableRef(*j.Right)
	if err != nil {
		return nil, err
	}
	if leftKey, rightKey, ok := equiJoinKeys(j.On); ok {
		return &HashJoin{Left: left, Right: right, LeftKey: leftKey, RightKey: rightKey, Kind: j.Kind}, nil
	}
	return &NestedLoopJoin{Left: left, Right: right, On: j.On, Kind: j.Kind}, nil
}

func (p *Planner) compileImplicitJoin(refs []ast.TableRef) (Op, error) {
	root, err := p.compileTableRef(refs[0])
	if err != nil {
		return nil, err
	}
	for _, ref := range refs[1:] {
		next, err := p.compileTableRef(ref)
		if err != nil {
			return nil, err
		}
		root = &NestedLoopJoin{Left: root, Right: next, Kind: "CROSS"}
	}
	return root, nil
}

// equiJoinKeys recognizes `a.x = b.y` join conditions eligible for a hash
// join; anything else falls back to NestedLoopJoin.
func equiJoinKeys(on ast.Expr) (left, right ast.Expr, ok bool) {
	be, isBinary := on.(*ast.BinaryExpr)
	if !isBinary || be.Op != "=" {
		return nil, nil, false
	}
	_, leftIsCol := be.Left.(*ast.ColumnRef)
	_, rightIsCol := be.Right.(*ast.ColumnRef)
	if !leftIsCol || !rightIsCol {
		return nil, nil, false
	}
	return be.Left, be.Right, true
}

func hasAggregate(items []ast.SelectItem) bool {
	for _, it := range items {
		if exprHasAggregate(it.Expr) {
			return true
		}
	}
	return false
}

var aggregateFuncs = map[string]bool{"SUM": true, "AVG": true, "COUNT": true, "MIN": true, "MAX": true}

func exprHasAggregate(e ast.Expr) bool {
	switch v := e.(type) {
	case *ast.FuncCall:
		if v.Over == nil && aggregateFuncs[upper(v.Name)] {
			return true
		}
		for _, a := range v.Args {
			if exprHasAggregate(a) {
				return true
			}
		}
	case *ast.BinaryExpr:
		return exprHasAggregate(v.Left) || exprHasAggregate(v.Right)
	case *ast.UnaryExpr:
		return exprHasAggregate(v.Operand)
	}
	return false
}

func hasWindowCall(items []ast.SelectItem) bool {
	for _, it := range items {
		if fc, ok := it.Expr.(*ast.FuncCall); ok && fc.Over != nil {
			return true
		}
	}
	return false
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 32
		}
	}
	return string(b)
}

// tryIndexScan replaces a TableScan with an IndexScan when pred is a bare
// equality predicate on an indexed column (spec §4.J's S6 scenario: EXPLAIN
// must prefer the index once one exists).
func (p *Planner) tryIndexScan(scan *TableScan, pred ast.Expr) (*IndexScan, bool) {
	if p.catalog == nil {
		return nil, false
	}
	be, ok := pred.(*ast.BinaryExpr)
	if !ok || be.Op != "=" {
		return nil, false
	}
	col, ok := be.Left.(*ast.ColumnRef)
	if !ok {
		return nil, false
	}
	idxName, ok := p.catalog.IndexFor(scan.Table, col.Column)
	if !ok {
		return nil, false
	}
	rows := p.catalog.TableRowCount(scan.Table)
	return &IndexScan{
		Table: scan.Table, Alias: scan.Alias, IndexName: idxName, Column: col.Column, Eq: be.Right,
		Cost: indexScanCost(rows),
	}, true
}

func indexScanCost(rows int64) Cost {
	r := float64(rows)
	if r <= 0 {
		r = 1
	}
	return Cost{StartupCost: 0.05, TotalCost: 2 + 0.005*r, PlanRows: 1, PlanWidth: 64}
}

func seqScanCost(rows int64) Cost {
	r := float64(rows)
	if r <= 0 {
		r = 1
	}
	return Cost{StartupCost: 0, TotalCost: r * 0.01, PlanRows: r, PlanWidth: 64}
}

var errUnsupportedPlan = common.New(common.KindUnsupported, "planner: construct not yet supported")
