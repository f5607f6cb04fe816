package executor

import (
	"github.com/neuroquantum/neuroquantumdb/internal/planner"
	"github.com/neuroquantum/neuroquantumdb/internal/sql/ast"
)

func (e *Executor) executeSelect(sel *ast.Select, params Params) (*Result, error) {
	pl := planner.New(e)
	plan, err := pl.Compile(sel)
	if err != nil {
		return nil, err
	}
	if e.advisor != nil {
		e.advisor.Observe(plan)
	}

	ctes := make(map[string][]Row, len(plan.CTEs))
	for name, cte := range plan.CTEs {
		rows, err := e.runCTE(cte, ctes, params)
		if err != nil {
			return nil, err
		}
		ctes[name] = rows
	}

	rows, err := e.runOp(plan.Root, ctes, params)
	if err != nil {
		return nil, err
	}
	return &Result{Columns: resultColumns(sel, rows), Rows: rows, Plan: plan}, nil
}

// runCTE materializes a (possibly recursive) CTE. A recursive CTE
// fixpoint-iterates: each round's recursive half sees only the previous
// round's new rows bound under its own name ("anchor ∪ (recursive ← cte)",
// spec §4.H), accumulating until a round adds nothing or the total number of
// accumulated rows reaches the row budget. The budget bounds the whole
// result; a single round has no separate cap.
func (e *Executor) runCTE(cte *planner.CTEPlan, ctes map[string][]Row, params Params) ([]Row, error) {
	anchorRows, err := e.runOp(cte.Anchor, ctes, params)
	if err != nil {
		return nil, err
	}
	if cte.Recur == nil {
		return anchorRows, nil
	}

	all := append([]Row(nil), anchorRows...)
	working := anchorRows
	budget := cte.RowBudget
	if budget <= 0 {
		budget = planner.DefaultRecursiveRowBudget
	}
	for len(working) > 0 && len(all) < budget {
		iterCtes := make(map[string][]Row, len(ctes)+1)
		for k, v := range ctes {
			iterCtes[k] = v
		}
		iterCtes[cte.Name] = working

		next, err := e.runOp(cte.Recur, iterCtes, params)
		if err != nil {
			return nil, err
		}
		if len(next) == 0 {
			break
		}
		if len(all)+len(next) > budget {
			next = next[:budget-len(all)]
		}
		all = append(all, next...)
		working = next
	}
	return all, nil
}

// resultColumns derives the output column order. For an explicit projection
// this mirrors the SELECT list; for a bare `SELECT *` (no columns tracked by
// the planner beyond Project/Aggregate/WindowAgg, which always sets a name)
// it falls back to whatever keys the first row carries.
func resultColumns(sel *ast.Select, rows []Row) []string {
	var cols []string
	seen := map[string]bool{}
	for _, item := range sel.Columns {
		if item.Star {
			continue
		}
		name := columnName(item)
		if !seen[name] {
			seen[name] = true
			cols = append(cols, name)
		}
	}
	if len(cols) > 0 {
		return cols
	}
	if len(rows) == 0 {
		return nil
	}
	for k := range rows[0] {
		cols = append(cols, k)
	}
	return cols
}
