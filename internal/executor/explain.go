package executor

import (
	"time"

	"github.com/neuroquantum/neuroquantumdb/internal/common"
	"github.com/neuroquantum/neuroquantumdb/internal/explain"
	"github.com/neuroquantum/neuroquantumdb/internal/planner"
	"github.com/neuroquantum/neuroquantumdb/internal/sql/ast"
)

// executeExplain compiles the wrapped statement and renders its plan
// (spec §4.J). With ANALYZE, the statement is actually run and the root
// node is annotated with the rows produced and wall time taken — per-node
// actuals would need an instrumented runOp, which this volcano-lite
// evaluator does not carry yet.
func (e *Executor) executeExplain(s *ast.Explain, params Params) (*Result, error) {
	sel, ok := s.Stmt.(*ast.Select)
	if !ok {
		return nil, common.New(common.KindUnsupported, "EXPLAIN only supports SELECT statements")
	}
	pl := planner.New(e)
	plan, err := pl.Compile(sel)
	if err != nil {
		return nil, err
	}
	node := explain.Build(plan.Root)

	if s.Analyze {
		start := time.Now()
		res, err := e.executeSelect(sel, params)
		if err != nil {
			return nil, err
		}
		explain.AttachActual(node, len(res.Rows), float64(time.Since(start).Microseconds())/1000.0)
	}

	format := s.Format
	if format == "" {
		format = "text"
	}
	text, err := explain.Render(node, format)
	if err != nil {
		return nil, err
	}
	return &Result{Columns: []string{"QUERY PLAN"}, Rows: []Row{{"QUERY PLAN": text}}, Plan: plan}, nil
}
