package executor

import (
	"sort"
	"strings"

	"github.com/neuroquantum/neuroquantumdb/internal/common"
	"github.com/neuroquantum/neuroquantumdb/internal/planner"
	"github.com/neuroquantum/neuroquantumdb/internal/sql/ast"
)

// runWindowAgg evaluates every projected item over its own OVER clause's
// partition/order frame (spec §4.H window function list), leaving
// non-window items to be filled in directly from the input row.
func (e *Executor) runWindowAgg(op *planner.WindowAgg, input []Row, params Params) ([]Row, error) {
	out := make([]Row, len(input))
	for i, r := range input {
		out[i] = mergeRows(r, Row{})
	}
	for _, item := range op.Exprs {
		fc, ok := item.Expr.(*ast.FuncCall)
		if !ok || fc.Over == nil {
			continue
		}
		if err := e.applyWindowFunc(fc, columnName(item), out, params); err != nil {
			return nil, err
		}
	}
	for i, r := range input {
		for _, item := range op.Exprs {
			if fc, ok := item.Expr.(*ast.FuncCall); ok && fc.Over != nil {
				continue
			}
			v, err := e.eval(item.Expr, r, params)
			if err != nil {
				return nil, err
			}
			out[i][columnName(item)] = v
		}
	}
	return out, nil
}

func (e *Executor) applyWindowFunc(fc *ast.FuncCall, outName string, rows []Row, params Params) error {
	ws := fc.Over
	partitions := map[string][]int{}
	var order []string
	for i, r := range rows {
		key, err := e.groupKey(ws.PartitionBy, r, params)
		if err != nil {
			return err
		}
		if _, ok := partitions[key]; !ok {
			order = append(order, key)
		}
		partitions[key] = append(partitions[key], i)
	}

	name := strings.ToUpper(fc.Name)
	for _, key := range order {
		idxs := append([]int(nil), partitions[key]...)
		sort.SliceStable(idxs, func(a, b int) bool {
			return e.lessByOrderBy(rows[idxs[a]], rows[idxs[b]], ws.OrderBy, params)
		})
		if err := e.applyWindowOverPartition(name, fc, outName, rows, idxs, params); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) applyWindowOverPartition(name string, fc *ast.FuncCall, outName string, rows []Row, idxs []int, params Params) error {
	switch name {
	case "ROW_NUMBER":
		for pos, idx := range idxs {
			rows[idx][outName] = int64(pos + 1)
		}
	case "RANK", "DENSE_RANK":
		rankAt := 0
		dense := 0
		var prev []any
		for pos, idx := range idxs {
			cur, err := e.orderByValues(rows[idx], orderByExprs(fc), params)
			if err != nil {
				return err
			}
			if pos == 0 || !equalValueSlices(cur, prev) {
				rankAt = pos + 1
				dense++
			}
			if name == "RANK" {
				rows[idx][outName] = int64(rankAt)
			} else {
				rows[idx][outName] = int64(dense)
			}
			prev = cur
		}
	case "LAG", "LEAD":
		offset := 1
		if len(fc.Args) > 1 {
			if lit, ok := fc.Args[1].(*ast.Literal); ok {
				if n, ok := lit.Value.(int64); ok {
					offset = int(n)
				}
			}
		}
		var def any
		if len(fc.Args) > 2 && len(idxs) > 0 {
			v, err := e.eval(fc.Args[2], rows[idxs[0]], params)
			if err == nil {
				def = v
			}
		}
		for pos, idx := range idxs {
			srcPos := pos - offset
			if name == "LEAD" {
				srcPos = pos + offset
			}
			if srcPos < 0 || srcPos >= len(idxs) {
				rows[idx][outName] = def
				continue
			}
			v, err := e.eval(fc.Args[0], rows[idxs[srcPos]], params)
			if err != nil {
				return err
			}
			rows[idx][outName] = v
		}
	case "FIRST_VALUE":
		if len(idxs) == 0 {
			return nil
		}
		v, err := e.eval(fc.Args[0], rows[idxs[0]], params)
		if err != nil {
			return err
		}
		for _, idx := range idxs {
			rows[idx][outName] = v
		}
	case "LAST_VALUE":
		// Default frame is unbounded-preceding-to-current-row, so the
		// cumulative value at each row position is simply that row's own.
		for _, idx := range idxs {
			v, err := e.eval(fc.Args[0], rows[idx], params)
			if err != nil {
				return err
			}
			rows[idx][outName] = v
		}
	case "NTH_VALUE":
		n := 1
		if len(fc.Args) > 1 {
			if lit, ok := fc.Args[1].(*ast.Literal); ok {
				if iv, ok := lit.Value.(int64); ok {
					n = int(iv)
				}
			}
		}
		var v any
		if n-1 >= 0 && n-1 < len(idxs) {
			var err error
			v, err = e.eval(fc.Args[0], rows[idxs[n-1]], params)
			if err != nil {
				return err
			}
		}
		for _, idx := range idxs {
			rows[idx][outName] = v
		}
	case "NTILE":
		buckets := 1
		if len(fc.Args) > 0 {
			if lit, ok := fc.Args[0].(*ast.Literal); ok {
				if iv, ok := lit.Value.(int64); ok {
					buckets = int(iv)
				}
			}
		}
		total := len(idxs)
		if total == 0 || buckets <= 0 {
			return nil
		}
		for pos, idx := range idxs {
			bucket := pos*buckets/total + 1
			if bucket > buckets {
				bucket = buckets
			}
			rows[idx][outName] = int64(bucket)
		}
	case "SUM", "AVG", "COUNT", "MIN", "MAX":
		var window []Row
		for _, idx := range idxs {
			window = append(window, rows[idx])
			v, err := e.evalAgg(fc, window, params)
			if err != nil {
				return err
			}
			rows[idx][outName] = v
		}
	default:
		return common.New(common.KindUnsupported, "unsupported window function %q", fc.Name)
	}
	return nil
}

func orderByExprs(fc *ast.FuncCall) []ast.Expr {
	items := fc.Over.OrderBy
	out := make([]ast.Expr, len(items))
	for i, it := range items {
		out[i] = it.Expr
	}
	return out
}

func (e *Executor) orderByValues(r Row, exprs []ast.Expr, params Params) ([]any, error) {
	out := make([]any, len(exprs))
	for i, expr := range exprs {
		v, err := e.eval(expr, r, params)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func equalValueSlices(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		eq, err := compare("=", a[i], b[i])
		if err != nil || !eq.(bool) {
			return false
		}
	}
	return true
}

func (e *Executor) runSort(o *planner.Sort, input []Row, params Params) ([]Row, error) {
	out := append([]Row(nil), input...)
	var sortErr error
	sort.SliceStable(out, func(a, b int) bool {
		if sortErr != nil {
			return false
		}
		less, err := e.orderLess(out[a], out[b], o.Keys, params)
		if err != nil {
			sortErr = err
		}
		return less
	})
	return out, sortErr
}

func (e *Executor) lessByOrderBy(a, b Row, keys []ast.OrderItem, params Params) bool {
	less, _ := e.orderLess(a, b, keys, params)
	return less
}

func (e *Executor) orderLess(a, b Row, keys []ast.OrderItem, params Params) (bool, error) {
	for _, k := range keys {
		av, err := e.eval(k.Expr, a, params)
		if err != nil {
			return false, err
		}
		bv, err := e.eval(k.Expr, b, params)
		if err != nil {
			return false, err
		}
		c := compareValues(av, bv)
		if c == 0 {
			continue
		}
		if k.Descending {
			return c > 0, nil
		}
		return c < 0, nil
	}
	return false, nil
}

// compareValues orders nil before any non-nil value.
func compareValues(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs)
	}
	return 0
}
