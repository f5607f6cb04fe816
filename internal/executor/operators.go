package executor

import (
	"fmt"
	"strings"

	"github.com/neuroquantum/neuroquantumdb/internal/common"
	"github.com/neuroquantum/neuroquantumdb/internal/planner"
	"github.com/neuroquantum/neuroquantumdb/internal/storage/row"
)

// runOp walks a compiled plan bottom-up, materializing each operator's
// output in full before its parent runs. The row store already fully
// materializes every scan (internal/storage/row has no suspend-on-I/O
// iterator), so an eager, fully-materialized pull model loses nothing here
// versus a true volcano-style incremental one while staying far simpler.
func (e *Executor) runOp(op planner.Op, ctes map[string][]Row, params Params) ([]Row, error) {
	switch o := op.(type) {
	case *planner.TableScan:
		return e.runTableScan(o)
	case *planner.IndexScan:
		return e.runIndexScan(o, params)
	case *planner.Filter:
		return e.runFilter(o, ctes, params)
	case *planner.Project:
		return e.runProject(o, ctes, params)
	case *planner.NestedLoopJoin:
		return e.runNestedLoopJoin(o, ctes, params)
	case *planner.HashJoin:
		return e.runHashJoin(o, ctes, params)
	case *planner.MergeJoin:
		return e.runMergeJoin(o, ctes, params)
	case *planner.Sort:
		input, err := e.runOp(o.Input, ctes, params)
		if err != nil {
			return nil, err
		}
		return e.runSort(o, input, params)
	case *planner.Aggregate:
		input, err := e.runOp(o.Input, ctes, params)
		if err != nil {
			return nil, err
		}
		return e.runAggregate(o, input, params)
	case *planner.WindowAgg:
		input, err := e.runOp(o.Input, ctes, params)
		if err != nil {
			return nil, err
		}
		return e.runWindowAgg(o, input, params)
	case *planner.Limit:
		input, err := e.runOp(o.Input, ctes, params)
		if err != nil {
			return nil, err
		}
		return e.runLimit(o, input, params)
	case *planner.Materialize:
		return e.runOp(o.Input, ctes, params)
	case *planner.UnionAll:
		left, err := e.runOp(o.Left, ctes, params)
		if err != nil {
			return nil, err
		}
		right, err := e.runOp(o.Right, ctes, params)
		if err != nil {
			return nil, err
		}
		return append(left, right...), nil
	case *planner.CteScan:
		rows, ok := ctes[o.Name]
		if !ok {
			return nil, common.New(common.KindNotFound, "no such CTE %q in this query", o.Name)
		}
		return rows, nil
	case *planner.Values:
		return e.runValues(o, params)
	default:
		return nil, common.New(common.KindUnsupported, "executor: unhandled plan operator %T", op)
	}
}

func (e *Executor) runTableScan(o *planner.TableScan) ([]Row, error) {
	rows, err := e.store.SelectRows(row.SelectQuery{Table: o.Table})
	if err != nil {
		return nil, err
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = toExecRow(o.Alias, r)
	}
	return out, nil
}

// runIndexScan pushes the scan's equality predicate into the row store
// rather than genuinely consulting a secondary index structure — the row
// store keys rows only by primary key (internal/storage/row), so the
// IndexScan operator here buys plan-shape fidelity (what EXPLAIN reports)
// without a real alternate access path yet.
func (e *Executor) runIndexScan(o *planner.IndexScan, params Params) ([]Row, error) {
	target, err := e.eval(o.Eq, Row{}, params)
	if err != nil {
		return nil, err
	}
	rows, err := e.store.SelectRows(row.SelectQuery{
		Table: o.Table,
		Predicate: func(r row.Row) bool {
			eq, err := compare("=", r[o.Column], target)
			return err == nil && eq.(bool)
		},
	})
	if err != nil {
		return nil, err
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = toExecRow(o.Alias, r)
	}
	return out, nil
}

func toExecRow(alias string, r row.Row) Row {
	out := make(Row, len(r)*2)
	for k, v := range r {
		out[k] = v
		if alias != "" {
			out[alias+"."+k] = v
		}
	}
	return out
}

func (e *Executor) runFilter(o *planner.Filter, ctes map[string][]Row, params Params) ([]Row, error) {
	input, err := e.runOp(o.Input, ctes, params)
	if err != nil {
		return nil, err
	}
	out := make([]Row, 0, len(input))
	for _, r := range input {
		keep, err := e.evalBool(o.Pred, r, params)
		if err != nil {
			return nil, err
		}
		if keep {
			out = append(out, r)
		}
	}
	return out, nil
}

func (e *Executor) runProject(o *planner.Project, ctes map[string][]Row, params Params) ([]Row, error) {
	input, err := e.runOp(o.Input, ctes, params)
	if err != nil {
		return nil, err
	}
	out := make([]Row, len(input))
	for i, r := range input {
		pr := Row{}
		for _, item := range o.Columns {
			if item.Star {
				for k, v := range r {
					if !strings.Contains(k, ".") {
						pr[k] = v
					}
				}
				continue
			}
			v, err := e.eval(item.Expr, r, params)
			if err != nil {
				return nil, err
			}
			pr[columnName(item)] = v
		}
		out[i] = pr
	}
	return out, nil
}

func (e *Executor) runLimit(o *planner.Limit, input []Row, params Params) ([]Row, error) {
	offset := 0
	if o.Offset != nil {
		v, err := e.eval(o.Offset, Row{}, params)
		if err != nil {
			return nil, err
		}
		if n, ok := v.(int64); ok {
			offset = int(n)
		}
	}
	if offset > len(input) {
		offset = len(input)
	}
	input = input[offset:]
	if o.Limit != nil {
		v, err := e.eval(o.Limit, Row{}, params)
		if err != nil {
			return nil, err
		}
		if n, ok := v.(int64); ok && int(n) < len(input) {
			input = input[:n]
		}
	}
	return input, nil
}

func (e *Executor) runValues(o *planner.Values, params Params) ([]Row, error) {
	out := make([]Row, 0, len(o.Rows))
	for _, tuple := range o.Rows {
		r := Row{}
		for i, expr := range tuple {
			v, err := e.eval(expr, Row{}, params)
			if err != nil {
				return nil, err
			}
			r[fmt.Sprintf("column%d", i+1)] = v
		}
		out = append(out, r)
	}
	return out, nil
}

