// Package effects defines the capability plug-in points spec §9 calls out:
// QueryRewriter and IndexScorer, the neuromorphic/quantum optimizer hooks
// the core must run correctly without. internal/storage/row.Codec already
// covers the third capability trait (RowCodec); it is not duplicated here.
package effects

import (
	"github.com/neuroquantum/neuroquantumdb/internal/planner"
	"github.com/neuroquantum/neuroquantumdb/internal/sql/ast"
)

// QueryRewriter may transform a compiled plan before execution, e.g. to
// fold in a neuromorphic/quantum effect statement's result. The core ships
// with NoopRewriter and must be fully correct with it installed (spec §1,
// §9).
type QueryRewriter interface {
	Rewrite(plan *planner.Plan) (*planner.Plan, error)
}

// NoopRewriter returns the plan unchanged.
type NoopRewriter struct{}

func (NoopRewriter) Rewrite(plan *planner.Plan) (*planner.Plan, error) { return plan, nil }

// IndexScorer may adjust the advisor's column scores, e.g. to fold in a
// learned access-pattern model. The core ships with NoopScorer.
type IndexScorer interface {
	Score(table, column string, baseScore float64) float64
}

// NoopScorer returns baseScore unchanged.
type NoopScorer struct{}

func (NoopScorer) Score(table, column string, baseScore float64) float64 { return baseScore }

// EffectHandler executes one dispatched effect-layer statement (NeuroMatch,
// SynapticOptimize, LearnPattern, AdaptWeights, QuantumSearch,
// SuperpositionQuery, QuantumJoin — spec §4.G) and returns its result rows.
// The core ships zero real handlers; Dispatcher.Run on an unregistered Kind
// returns handled=false without an error, and the executor reports such a
// statement as Unsupported, so a caller always knows whether an effect
// statement actually ran.
type EffectHandler interface {
	Run(stmt *ast.EffectStatement) ([]map[string]any, error)
}

// Dispatcher routes effect-layer statements to registered handlers by Kind.
type Dispatcher struct {
	handlers map[string]EffectHandler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]EffectHandler)}
}

// Register installs handler for the given effect Kind (e.g. "NEUROMATCH").
func (d *Dispatcher) Register(kind string, handler EffectHandler) {
	d.handlers[kind] = handler
}

// Run dispatches stmt to its registered handler, or reports that no plug-in
// is installed for its Kind.
func (d *Dispatcher) Run(stmt *ast.EffectStatement) ([]map[string]any, bool, error) {
	h, ok := d.handlers[stmt.Kind]
	if !ok {
		return nil, false, nil
	}
	rows, err := h.Run(stmt)
	return rows, true, err
}
