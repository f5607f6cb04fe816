package effects

import (
	"errors"
	"testing"

	"github.com/neuroquantum/neuroquantumdb/internal/planner"
	"github.com/neuroquantum/neuroquantumdb/internal/sql/ast"
)

var errBoom = errors.New("handler failure")

func TestNoopRewriterReturnsPlanUnchanged(t *testing.T) {
	plan := &planner.Plan{Root: &planner.TableScan{Table: "users"}}
	got, err := NoopRewriter{}.Rewrite(plan)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if got != plan {
		t.Fatal("NoopRewriter should return the exact same plan pointer unchanged")
	}
}

func TestNoopScorerReturnsBaseScoreUnchanged(t *testing.T) {
	got := NoopScorer{}.Score("users", "age", 0.42)
	if got != 0.42 {
		t.Fatalf("Score = %v, want 0.42 unchanged", got)
	}
}

type recordingHandler struct {
	rows     []map[string]any
	err      error
	lastStmt *ast.EffectStatement
}

func (h *recordingHandler) Run(stmt *ast.EffectStatement) ([]map[string]any, error) {
	h.lastStmt = stmt
	return h.rows, h.err
}

func TestDispatcherRunsRegisteredHandler(t *testing.T) {
	d := NewDispatcher()
	h := &recordingHandler{rows: []map[string]any{{"match": "a"}}}
	d.Register("NEUROMATCH", h)

	stmt := &ast.EffectStatement{Kind: "NEUROMATCH", Raw: "NEUROMATCH(x) AGAINST(y)"}
	rows, handled, err := d.Run(stmt)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !handled {
		t.Fatal("Run should report handled=true for a registered kind")
	}
	if len(rows) != 1 || rows[0]["match"] != "a" {
		t.Fatalf("rows = %+v, want the handler's result", rows)
	}
	if h.lastStmt != stmt {
		t.Fatal("the handler should receive the exact statement passed to Run")
	}
}

func TestDispatcherUnregisteredKindReportsUnhandled(t *testing.T) {
	d := NewDispatcher()
	rows, handled, err := d.Run(&ast.EffectStatement{Kind: "QUANTUMSEARCH"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if handled {
		t.Fatal("Run should report handled=false for an unregistered kind")
	}
	if rows != nil {
		t.Fatalf("rows = %+v, want nil for an unhandled statement", rows)
	}
}

func TestDispatcherPropagatesHandlerError(t *testing.T) {
	d := NewDispatcher()
	wantErr := errBoom
	d.Register("LEARNPATTERN", &recordingHandler{err: wantErr})

	_, handled, err := d.Run(&ast.EffectStatement{Kind: "LEARNPATTERN"})
	if !handled {
		t.Fatal("Run should report handled=true even when the handler errors")
	}
	if err != wantErr {
		t.Fatalf("err = %v, want the handler's error propagated", err)
	}
}

func TestDispatcherRegisterOverwritesPriorHandlerForSameKind(t *testing.T) {
	d := NewDispatcher()
	first := &recordingHandler{rows: []map[string]any{{"v": 1}}}
	second := &recordingHandler{rows: []map[string]any{{"v": 2}}}
	d.Register("ADAPTWEIGHTS", first)
	d.Register("ADAPTWEIGHTS", second)

	rows, _, err := d.Run(&ast.EffectStatement{Kind: "ADAPTWEIGHTS"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rows) != 1 || rows[0]["v"] != 2 {
		t.Fatalf("rows = %+v, want the second registration's result", rows)
	}
}
