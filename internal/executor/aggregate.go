package executor

import (
	"fmt"
	"strings"

	"github.com/neuroquantum/neuroquantumdb/internal/planner"
	"github.com/neuroquantum/neuroquantumdb/internal/sql/ast"
)

// columnName derives the output column label for a projected item: its
// alias if given, else the bare column name, else the lower-cased function
// name, else Postgres's familiar "?column?" fallback for an unnameable
// expression.
func columnName(item ast.SelectItem) string {
	if item.Alias != "" {
		return item.Alias
	}
	switch e := item.Expr.(type) {
	case *ast.ColumnRef:
		return e.Column
	case *ast.FuncCall:
		return strings.ToLower(e.Name)
	default:
		return "?column?"
	}
}

var aggregateFuncs = map[string]bool{"SUM": true, "AVG": true, "COUNT": true, "MIN": true, "MAX": true}

func (e *Executor) runAggregate(op *planner.Aggregate, input []Row, params Params) ([]Row, error) {
	type group struct {
		key  string
		rows []Row
	}
	order := []string{}
	groups := map[string]*group{}
	for _, r := range input {
		key, err := e.groupKey(op.GroupBy, r, params)
		if err != nil {
			return nil, err
		}
		g, ok := groups[key]
		if !ok {
			g = &group{key: key}
			groups[key] = g
			order = append(order, key)
		}
		g.rows = append(g.rows, r)
	}
	if len(order) == 0 && len(op.GroupBy) == 0 {
		// SELECT COUNT(*) FROM empty_table still returns one row (count 0).
		order = append(order, "")
		groups[""] = &group{}
	}

	var out []Row
	for _, key := range order {
		g := groups[key]
		outRow := Row{}
		for _, item := range op.Exprs {
			v, err := e.evalAgg(item.Expr, g.rows, params)
			if err != nil {
				return nil, err
			}
			outRow[columnName(item)] = v
		}
		if op.Having != nil {
			keep, err := e.evalHaving(op.Having, g.rows, outRow, params)
			if err != nil {
				return nil, err
			}
			if !keep {
				continue
			}
		}
		out = append(out, outRow)
	}
	return out, nil
}

func (e *Executor) groupKey(exprs []ast.Expr, r Row, params Params) (string, error) {
	if len(exprs) == 0 {
		return "", nil
	}
	var sb strings.Builder
	for _, expr := range exprs {
		v, err := e.eval(expr, r, params)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "%v\x1f", v)
	}
	return sb.String(), nil
}

// evalAgg evaluates expr over a whole group: aggregate function calls fold
// rows down to one value, arithmetic combines already-folded sub-results,
// and anything else (a GROUP BY column, a literal) is read off the group's
// first row.
func (e *Executor) evalAgg(expr ast.Expr, rows []Row, params Params) (any, error) {
	if fc, ok := expr.(*ast.FuncCall); ok && fc.Over == nil && aggregateFuncs[strings.ToUpper(fc.Name)] {
		return e.evalAggCall(fc, rows, params)
	}
	switch v := expr.(type) {
	case *ast.BinaryExpr:
		left, err := e.evalAgg(v.Left, rows, params)
		if err != nil {
			return nil, err
		}
		right, err := e.evalAgg(v.Right, rows, params)
		if err != nil {
			return nil, err
		}
		return applyBinaryOp(v.Op, left, right)
	case *ast.UnaryExpr:
		val, err := e.evalAgg(v.Operand, rows, params)
		if err != nil {
			return nil, err
		}
		if v.Op == "-" {
			return negate(val)
		}
		return val, nil
	default:
		if len(rows) == 0 {
			return nil, nil
		}
		return e.eval(expr, rows[0], params)
	}
}

func (e *Executor) evalAggCall(fc *ast.FuncCall, rows []Row, params Params) (any, error) {
	switch strings.ToUpper(fc.Name) {
	case "COUNT":
		if fc.Star {
			return int64(len(rows)), nil
		}
		var cnt int64
		for _, r := range rows {
			v, err := e.eval(fc.Args[0], r, params)
			if err != nil {
				return nil, err
			}
			if v != nil {
				cnt++
			}
		}
		return cnt, nil
	default:
		vals, allInt, err := e.collectNumeric(fc.Args[0], rows, params)
		if err != nil {
			return nil, err
		}
		return foldNumeric(strings.ToUpper(fc.Name), vals, allInt)
	}
}

func (e *Executor) collectNumeric(expr ast.Expr, rows []Row, params Params) ([]float64, bool, error) {
	var vals []float64
	allInt := true
	for _, r := range rows {
		v, err := e.eval(expr, r, params)
		if err != nil {
			return nil, false, err
		}
		if v == nil {
			continue
		}
		if _, isInt := v.(int64); !isInt {
			allInt = false
		}
		f, ok := toFloat(v)
		if !ok {
			continue
		}
		vals = append(vals, f)
	}
	return vals, allInt, nil
}

func foldNumeric(name string, vals []float64, allInt bool) (any, error) {
	if len(vals) == 0 {
		return nil, nil
	}
	switch name {
	case "SUM":
		var s float64
		for _, v := range vals {
			s += v
		}
		if allInt {
			return int64(s), nil
		}
		return s, nil
	case "AVG":
		var s float64
		for _, v := range vals {
			s += v
		}
		return s / float64(len(vals)), nil
	case "MIN":
		m := vals[0]
		for _, v := range vals[1:] {
			if v < m {
				m = v
			}
		}
		if allInt {
			return int64(m), nil
		}
		return m, nil
	case "MAX":
		m := vals[0]
		for _, v := range vals[1:] {
			if v > m {
				m = v
			}
		}
		if allInt {
			return int64(m), nil
		}
		return m, nil
	default:
		return nil, nil
	}
}

// evalHaving evaluates a HAVING clause. A bare aggregate call in the clause
// is folded over the group; anything else (including references to the
// already-projected aggregate alias) is read from outRow.
func (e *Executor) evalHaving(expr ast.Expr, rows []Row, outRow Row, params Params) (bool, error) {
	v, err := e.evalAggOrProjected(expr, rows, outRow, params)
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}

func (e *Executor) evalAggOrProjected(expr ast.Expr, rows []Row, outRow Row, params Params) (any, error) {
	switch v := expr.(type) {
	case *ast.BinaryExpr:
		if v.Op == "AND" || v.Op == "OR" {
			left, err := e.evalAggOrProjected(v.Left, rows, outRow, params)
			if err != nil {
				return nil, err
			}
			lb, _ := left.(bool)
			if v.Op == "AND" && !lb {
				return false, nil
			}
			if v.Op == "OR" && lb {
				return true, nil
			}
			return e.evalAggOrProjected(v.Right, rows, outRow, params)
		}
		left, err := e.evalAggOrProjected(v.Left, rows, outRow, params)
		if err != nil {
			return nil, err
		}
		right, err := e.evalAggOrProjected(v.Right, rows, outRow, params)
		if err != nil {
			return nil, err
		}
		return applyBinaryOp(v.Op, left, right)
	case *ast.ColumnRef:
		if v.Table == "" {
			if val, ok := outRow[v.Column]; ok {
				return val, nil
			}
		}
		return e.evalAgg(v, rows, params)
	default:
		return e.evalAgg(expr, rows, params)
	}
}
