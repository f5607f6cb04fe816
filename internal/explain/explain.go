// Package explain renders a compiled internal/planner.Plan as EXPLAIN
// output in text, JSON, or YAML (spec §4.J).
package explain

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/neuroquantum/neuroquantumdb/internal/common"
	"github.com/neuroquantum/neuroquantumdb/internal/planner"
)

// Node is the renderable shape of one plan operator: its label, cost tuple,
// and (when ANALYZE ran) the actual rows produced and wall time taken.
type Node struct {
	Operator    string  `json:"operator" yaml:"operator"`
	Detail      string  `json:"detail,omitempty" yaml:"detail,omitempty"`
	StartupCost float64 `json:"startup_cost" yaml:"startup_cost"`
	TotalCost   float64 `json:"total_cost" yaml:"total_cost"`
	PlanRows    float64 `json:"plan_rows" yaml:"plan_rows"`
	PlanWidth   int     `json:"plan_width" yaml:"plan_width"`
	ActualRows  *int    `json:"actual_rows,omitempty" yaml:"actual_rows,omitempty"`
	ActualMs    *float64 `json:"actual_time_ms,omitempty" yaml:"actual_time_ms,omitempty"`
	Children    []*Node `json:"children,omitempty" yaml:"children,omitempty"`
}

// Build walks op into a Node tree, without any ANALYZE actuals.
func Build(op planner.Op) *Node {
	return build(op)
}

func build(op planner.Op) *Node {
	switch o := op.(type) {
	case *planner.TableScan:
		return leaf("Seq Scan", fmt.Sprintf("on %s", aliasedTable(o.Table, o.Alias)), o.Cost)
	case *planner.IndexScan:
		return leaf("Index Scan", fmt.Sprintf("using %s on %s", o.IndexName, aliasedTable(o.Table, o.Alias)), o.Cost)
	case *planner.Filter:
		return parent("Filter", "", o.Cost, build(o.Input))
	case *planner.Project:
		return parent("Project", "", o.Cost, build(o.Input))
	case *planner.NestedLoopJoin:
		return parent(o.Kind+" Nested Loop Join", "", o.Cost, build(o.Left), build(o.Right))
	case *planner.HashJoin:
		return parent(o.Kind+" Hash Join", "", o.Cost, build(o.Left), build(o.Right))
	case *planner.MergeJoin:
		return parent(o.Kind+" Merge Join", "", o.Cost, build(o.Left), build(o.Right))
	case *planner.Sort:
		return parent("Sort", "", o.Cost, build(o.Input))
	case *planner.Aggregate:
		detail := ""
		if len(o.GroupBy) > 0 {
			detail = "GroupAggregate"
		} else {
			detail = "Aggregate"
		}
		return parent(detail, "", o.Cost, build(o.Input))
	case *planner.WindowAgg:
		return parent("WindowAgg", "", o.Cost, build(o.Input))
	case *planner.Limit:
		return parent("Limit", "", o.Cost, build(o.Input))
	case *planner.Materialize:
		return parent("Materialize", "", o.Cost, build(o.Input))
	case *planner.UnionAll:
		return parent("Append", "", o.Cost, build(o.Left), build(o.Right))
	case *planner.CteScan:
		return leaf("CTE Scan", fmt.Sprintf("on %s", o.Name), o.Cost)
	case *planner.Values:
		return leaf("Values Scan", "", o.Cost)
	default:
		return leaf(fmt.Sprintf("%T", op), "", planner.Cost{})
	}
}

func leaf(operator, detail string, cost planner.Cost) *Node {
	return &Node{Operator: operator, Detail: detail, StartupCost: cost.StartupCost, TotalCost: cost.TotalCost, PlanRows: cost.PlanRows, PlanWidth: cost.PlanWidth}
}

func parent(operator, detail string, cost planner.Cost, children ...*Node) *Node {
	n := leaf(operator, detail, cost)
	n.Children = children
	return n
}

func aliasedTable(table, alias string) string {
	if alias != "" && alias != table {
		return fmt.Sprintf("%s %s", table, alias)
	}
	return table
}

// AttachActual records ANALYZE-collected actual row count and time on n
// itself; n's children are left unchanged.
func AttachActual(n *Node, rows int, ms float64) {
	n.ActualRows = &rows
	n.ActualMs = &ms
}

// Render formats the tree per format ("text", "json", or "yaml").
func Render(n *Node, format string) (string, error) {
	switch strings.ToLower(format) {
	case "", "text":
		var sb strings.Builder
		renderText(&sb, n, 0)
		return sb.String(), nil
	case "json":
		b, err := json.MarshalIndent(n, "", "  ")
		if err != nil {
			return "", err
		}
		return string(b), nil
	case "yaml":
		b, err := yaml.Marshal(n)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return "", common.New(common.KindInvalidInput, "unknown EXPLAIN format %q", format)
	}
}

func renderText(sb *strings.Builder, n *Node, depth int) {
	fmt.Fprintf(sb, "%s%s", strings.Repeat("  ", depth), n.Operator)
	if n.Detail != "" {
		fmt.Fprintf(sb, " %s", n.Detail)
	}
	fmt.Fprintf(sb, "  (cost=%.2f..%.2f rows=%.0f width=%d)", n.StartupCost, n.TotalCost, n.PlanRows, n.PlanWidth)
	if n.ActualRows != nil {
		fmt.Fprintf(sb, " (actual rows=%d time=%.3fms)", *n.ActualRows, *n.ActualMs)
	}
	sb.WriteByte('\n')
	for _, c := range n.Children {
		renderText(sb, c, depth+1)
	}
}
