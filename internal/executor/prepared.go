package executor

import (
	"github.com/neuroquantum/neuroquantumdb/internal/common"
	"github.com/neuroquantum/neuroquantumdb/internal/sql/ast"
)

// executePrepared binds the positional arguments of EXECUTE to the stored
// PREPARE statement's $N/:name placeholders, then re-dispatches through
// Execute.
func (e *Executor) executePrepared(s *ast.Execute, params Params) (*Result, error) {
	stmt, ok := e.prepared[s.Name]
	if !ok {
		return nil, common.New(common.KindNotFound, "no such prepared statement %q", s.Name)
	}
	bound := make([]any, 0, len(s.Args))
	for _, arg := range s.Args {
		v, err := e.eval(arg, Row{}, params)
		if err != nil {
			return nil, err
		}
		bound = append(bound, v)
	}
	return e.Execute(stmt.Query, Params{Positional: bound})
}
