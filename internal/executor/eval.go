package executor

import (
	"strconv"
	"strings"

	"github.com/neuroquantum/neuroquantumdb/internal/common"
	"github.com/neuroquantum/neuroquantumdb/internal/sql/ast"
)

// Params holds bound values for positional ($N) and named (:name)
// parameter references. Outer carries the enclosing row for a correlated
// subquery; nil for a top-level query.
type Params struct {
	Positional []any
	Named      map[string]any
	Outer      Row
}

func (e *Executor) eval(expr ast.Expr, r Row, params Params) (any, error) {
	switch v := expr.(type) {
	case *ast.Literal:
		return v.Value, nil
	case *ast.Default:
		return nil, nil
	case *ast.ColumnRef:
		return lookupColumnWithOuter(r, params.Outer, v), nil
	case *ast.ParamRef:
		return resolveParam(v, params)
	case *ast.BinaryExpr:
		return e.evalBinary(v, r, params)
	case *ast.UnaryExpr:
		return e.evalUnary(v, r, params)
	case *ast.IsNull:
		val, err := e.eval(v.Operand, r, params)
		if err != nil {
			return nil, err
		}
		isNull := val == nil
		if v.Not {
			return !isNull, nil
		}
		return isNull, nil
	case *ast.BetweenExpr:
		return e.evalBetween(v, r, params)
	case *ast.LikeExpr:
		return e.evalLike(v, r, params)
	case *ast.InList:
		return e.evalInList(v, r, params)
	case *ast.InSubquery:
		return e.evalInSubquery(v, r, params)
	case *ast.ExistsExpr:
		return e.evalExists(v, r, params)
	case *ast.ScalarSubquery:
		return e.evalScalarSubquery(v, r, params)
	case *ast.CaseExpr:
		return e.evalCase(v, r, params)
	case *ast.Extract:
		return e.evalExtract(v, r, params)
	case *ast.FuncCall:
		return e.evalScalarFunc(v, r, params)
	default:
		return nil, common.New(common.KindUnsupported, "executor: unhandled expression type %T", expr)
	}
}

func lookupColumn(r Row, ref *ast.ColumnRef) any {
	if ref.Table != "" {
		if v, ok := r[ref.Table+"."+ref.Column]; ok {
			return v
		}
	}
	return r[ref.Column]
}

// lookupColumnWithOuter falls back to the enclosing row of a correlated
// subquery when ref is not satisfied by the subquery's own row.
func lookupColumnWithOuter(r, outer Row, ref *ast.ColumnRef) any {
	if ref.Table != "" {
		if v, ok := r[ref.Table+"."+ref.Column]; ok {
			return v
		}
	} else if v, ok := r[ref.Column]; ok {
		return v
	}
	if outer == nil {
		return r[ref.Column]
	}
	if ref.Table != "" {
		if v, ok := outer[ref.Table+"."+ref.Column]; ok {
			return v
		}
	}
	return outer[ref.Column]
}

// withOuter returns params with Outer set to r, so a correlated subquery's
// unresolved column references fall back to the enclosing row (spec §4.H:
// correlated subqueries are re-executed per outer row).
func withOuter(params Params, r Row) Params {
	params.Outer = r
	return params
}

func resolveParam(p *ast.ParamRef, params Params) (any, error) {
	if p.Positional > 0 {
		idx := p.Positional - 1
		if idx < 0 || idx >= len(params.Positional) {
			return nil, common.New(common.KindInvalidInput, "parameter $%d not bound", p.Positional)
		}
		return params.Positional[idx], nil
	}
	v, ok := params.Named[p.Name]
	if !ok {
		return nil, common.New(common.KindInvalidInput, "parameter :%s not bound", p.Name)
	}
	return v, nil
}

func (e *Executor) evalBinary(v *ast.BinaryExpr, r Row, params Params) (any, error) {
	if v.Op == "AND" {
		l, err := e.evalBool(v.Left, r, params)
		if err != nil || !l {
			return false, err
		}
		return e.evalBool(v.Right, r, params)
	}
	if v.Op == "OR" {
		l, err := e.evalBool(v.Left, r, params)
		if err != nil {
			return nil, err
		}
		if l {
			return true, nil
		}
		return e.evalBool(v.Right, r, params)
	}

	left, err := e.eval(v.Left, r, params)
	if err != nil {
		return nil, err
	}
	right, err := e.eval(v.Right, r, params)
	if err != nil {
		return nil, err
	}
	if left == nil || right == nil {
		if v.Op == "=" || v.Op == "!=" || v.Op == "<" || v.Op == "<=" || v.Op == ">" || v.Op == ">=" {
			return nil, nil
		}
	}

	return applyBinaryOp(v.Op, left, right)
}

func applyBinaryOp(op string, left, right any) (any, error) {
	switch op {
	case "||":
		return toText(left) + toText(right), nil
	case "+", "-", "*", "/", "%":
		return arith(op, left, right)
	default:
		return compare(op, left, right)
	}
}

func (e *Executor) evalBool(expr ast.Expr, r Row, params Params) (bool, error) {
	v, err := e.eval(expr, r, params)
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}

func (e *Executor) evalUnary(v *ast.UnaryExpr, r Row, params Params) (any, error) {
	val, err := e.eval(v.Operand, r, params)
	if err != nil {
		return nil, err
	}
	switch v.Op {
	case "NOT":
		b, _ := val.(bool)
		return !b, nil
	case "-":
		return negate(val)
	case "+":
		return val, nil
	default:
		return nil, common.New(common.KindUnsupported, "unary operator %q", v.Op)
	}
}

func (e *Executor) evalBetween(v *ast.BetweenExpr, r Row, params Params) (any, error) {
	val, err := e.eval(v.Operand, r, params)
	if err != nil {
		return nil, err
	}
	low, err := e.eval(v.Low, r, params)
	if err != nil {
		return nil, err
	}
	high, err := e.eval(v.High, r, params)
	if err != nil {
		return nil, err
	}
	geLow, err := compare(">=", val, low)
	if err != nil {
		return nil, err
	}
	leHigh, err := compare("<=", val, high)
	if err != nil {
		return nil, err
	}
	result := geLow.(bool) && leHigh.(bool)
	if v.Not {
		return !result, nil
	}
	return result, nil
}

func (e *Executor) evalLike(v *ast.LikeExpr, r Row, params Params) (any, error) {
	val, err := e.eval(v.Operand, r, params)
	if err != nil {
		return nil, err
	}
	pat, err := e.eval(v.Pattern, r, params)
	if err != nil {
		return nil, err
	}
	matched := likeMatch(toText(val), toText(pat))
	if v.Not {
		return !matched, nil
	}
	return matched, nil
}

// likeMatch implements SQL LIKE's % (any run) and _ (single char) wildcards
// via straightforward recursive backtracking — patterns in practice are
// short, so this is not a performance-critical path.
func likeMatch(s, pattern string) bool {
	return likeMatchRunes([]rune(s), []rune(pattern))
}

func likeMatchRunes(s, p []rune) bool {
	if len(p) == 0 {
		return len(s) == 0
	}
	switch p[0] {
	case '%':
		for i := 0; i <= len(s); i++ {
			if likeMatchRunes(s[i:], p[1:]) {
				return true
			}
		}
		return false
	case '_':
		if len(s) == 0 {
			return false
		}
		return likeMatchRunes(s[1:], p[1:])
	default:
		if len(s) == 0 || s[0] != p[0] {
			return false
		}
		return likeMatchRunes(s[1:], p[1:])
	}
}

func (e *Executor) evalInList(v *ast.InList, r Row, params Params) (any, error) {
	val, err := e.eval(v.Operand, r, params)
	if err != nil {
		return nil, err
	}
	found := false
	for _, item := range v.List {
		cand, err := e.eval(item, r, params)
		if err != nil {
			return nil, err
		}
		eq, err := compare("=", val, cand)
		if err == nil && eq.(bool) {
			found = true
			break
		}
	}
	if v.Not {
		return !found, nil
	}
	return found, nil
}

func (e *Executor) evalInSubquery(v *ast.InSubquery, r Row, params Params) (any, error) {
	val, err := e.eval(v.Operand, r, params)
	if err != nil {
		return nil, err
	}
	res, err := e.executeSelect(v.Query, withOuter(params, r))
	if err != nil {
		return nil, err
	}
	found := false
	for _, row := range res.Rows {
		for _, colVal := range row {
			eq, err := compare("=", val, colVal)
			if err == nil && eq.(bool) {
				found = true
			}
		}
	}
	if v.Not {
		return !found, nil
	}
	return found, nil
}

func (e *Executor) evalExists(v *ast.ExistsExpr, r Row, params Params) (any, error) {
	res, err := e.executeSelect(v.Query, withOuter(params, r))
	if err != nil {
		return nil, err
	}
	exists := len(res.Rows) > 0
	if v.Not {
		return !exists, nil
	}
	return exists, nil
}

func (e *Executor) evalScalarSubquery(v *ast.ScalarSubquery, r Row, params Params) (any, error) {
	res, err := e.executeSelect(v.Query, withOuter(params, r))
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, nil
	}
	if len(res.Rows) > 1 {
		return nil, common.New(common.KindInvalidInput, "scalar subquery returned more than one row")
	}
	if len(res.Columns) != 1 {
		return nil, common.New(common.KindInvalidInput, "scalar subquery returned more than one column")
	}
	return res.Rows[0][res.Columns[0]], nil
}

func (e *Executor) evalCase(v *ast.CaseExpr, r Row, params Params) (any, error) {
	var operand any
	var err error
	if v.Operand != nil {
		operand, err = e.eval(v.Operand, r, params)
		if err != nil {
			return nil, err
		}
	}
	for _, when := range v.Whens {
		if v.Operand != nil {
			cond, err := e.eval(when.Cond, r, params)
			if err != nil {
				return nil, err
			}
			eq, err := compare("=", operand, cond)
			if err != nil || !eq.(bool) {
				continue
			}
		} else {
			truthy, err := e.evalBool(when.Cond, r, params)
			if err != nil || !truthy {
				continue
			}
		}
		return e.eval(when.Then, r, params)
	}
	if v.Else != nil {
		return e.eval(v.Else, r, params)
	}
	return nil, nil
}

func (e *Executor) evalExtract(v *ast.Extract, r Row, params Params) (any, error) {
	val, err := e.eval(v.Operand, r, params)
	if err != nil {
		return nil, err
	}
	return nil, common.New(common.KindUnsupported, "EXTRACT(%s FROM ...) requires a temporal type, value was %v", v.Field, val)
}

func (e *Executor) evalScalarFunc(v *ast.FuncCall, r Row, params Params) (any, error) {
	if v.Over != nil {
		return nil, common.New(common.KindUnsupported, "window function %s called outside a WindowAgg operator", v.Name)
	}
	args := make([]any, 0, len(v.Args))
	for _, a := range v.Args {
		val, err := e.eval(a, r, params)
		if err != nil {
			return nil, err
		}
		args = append(args, val)
	}
	switch strings.ToUpper(v.Name) {
	case "UPPER":
		return strings.ToUpper(toText(args[0])), nil
	case "LOWER":
		return strings.ToLower(toText(args[0])), nil
	case "LENGTH":
		return int64(len([]rune(toText(args[0])))), nil
	case "COALESCE":
		for _, a := range args {
			if a != nil {
				return a, nil
			}
		}
		return nil, nil
	default:
		return nil, common.New(common.KindUnsupported, "unknown scalar function %q", v.Name)
	}
}

func toText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

func arith(op string, left, right any) (any, error) {
	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if !lok || !rok {
		return nil, common.New(common.KindInvalidInput, "arithmetic operator %q requires numeric operands", op)
	}
	li, liok := left.(int64)
	ri, riok := right.(int64)
	if liok && riok {
		switch op {
		case "+":
			return li + ri, nil
		case "-":
			return li - ri, nil
		case "*":
			return li * ri, nil
		case "/":
			if ri == 0 {
				return nil, common.New(common.KindInvalidInput, "division by zero")
			}
			return li / ri, nil
		case "%":
			if ri == 0 {
				return nil, common.New(common.KindInvalidInput, "division by zero")
			}
			return li % ri, nil
		}
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, common.New(common.KindInvalidInput, "division by zero")
		}
		return lf / rf, nil
	default:
		return nil, common.New(common.KindUnsupported, "operator %q on floats", op)
	}
}

func negate(v any) (any, error) {
	switch t := v.(type) {
	case int64:
		return -t, nil
	case float64:
		return -t, nil
	default:
		return nil, common.New(common.KindInvalidInput, "unary minus requires a numeric operand")
	}
}

func compare(op string, left, right any) (any, error) {
	if left == nil || right == nil {
		return false, nil
	}
	if lf, lok := toFloat(left); lok {
		if rf, rok := toFloat(right); rok {
			return compareOrdered(op, lf, rf), nil
		}
	}
	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		return compareOrdered(op, ls, rs), nil
	}
	lb, lok := left.(bool)
	rb, rok := right.(bool)
	if lok && rok {
		if op == "=" {
			return lb == rb, nil
		}
		if op == "!=" {
			return lb != rb, nil
		}
	}
	return nil, common.New(common.KindInvalidInput, "cannot compare %T and %T", left, right)
}

type ordered interface{ ~int64 | ~float64 | ~string }

func compareOrdered[T ordered](op string, a, b T) bool {
	switch op {
	case "=":
		return a == b
	case "!=":
		return a != b
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	default:
		return false
	}
}
