package advisor

import (
	"fmt"
	"sort"
)

// IndexKind distinguishes a single-column index from a composite one built
// from a join column paired with a frequently-filtered column.
type IndexKind string

const (
	KindBTree     IndexKind = "btree"
	KindComposite IndexKind = "composite"
)

// Priority buckets a Recommendation by its improvement score (spec §4.I).
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Recommendation is one candidate index the advisor believes would help.
type Recommendation struct {
	Table      string
	Columns    []string
	Kind       IndexKind
	Priority   Priority
	Score      float64
	Statement  string
	Rationale  string
}

// Recommendations scores every tracked table/column pair against the
// workload observed so far and returns candidates above the configured
// thresholds, most valuable first, capped at MaxRecommendations. catalog
// lets already-indexed columns be skipped; pass nil to recommend regardless.
func (a *Advisor) Recommendations(catalog IndexCatalog) []Recommendation {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []Recommendation
	for table, t := range a.tables {
		if t.queryCount < a.cfg.MinQueryThreshold {
			continue
		}
		var joinCol, bestWhereCol string
		var bestWhereScore float64
		for col, cs := range t.columns {
			if catalog != nil {
				if _, ok := catalog.IndexFor(table, col); ok {
					continue
				}
			}
			score := a.scoreColumn(t, cs)
			if score < a.cfg.MinImprovementThreshold {
				continue
			}
			if cs.joinUses > 0 && joinCol == "" {
				joinCol = col
			}
			out = append(out, Recommendation{
				Table:     table,
				Columns:   []string{col},
				Kind:      KindBTree,
				Priority:  priorityFor(score),
				Score:     score,
				Statement: createIndexStmt(table, []string{col}),
				Rationale: rationaleFor(cs, score),
			})
			if score > bestWhereScore && cs.whereEqUses > 0 {
				bestWhereScore = score
				bestWhereCol = col
			}
		}
		if joinCol != "" && bestWhereCol != "" && joinCol != bestWhereCol {
			score := bestWhereScore + 0.1
			out = append(out, Recommendation{
				Table:     table,
				Columns:   []string{joinCol, bestWhereCol},
				Kind:      KindComposite,
				Priority:  priorityFor(score),
				Score:     score,
				Statement: createIndexStmt(table, []string{joinCol, bestWhereCol}),
				Rationale: fmt.Sprintf("joined on %s and filtered on %s in the same queries", joinCol, bestWhereCol),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > a.cfg.MaxRecommendations {
		out = out[:a.cfg.MaxRecommendations]
	}
	return out
}

// scoreColumn implements spec §4.I's formula: usage frequency relative to
// the table's total queries, boosted for equality predicates and joins,
// penalized for leading-wildcard LIKE scans (which an index can't serve).
func (a *Advisor) scoreColumn(t *tableStats, cs *columnStats) float64 {
	totalUses := cs.whereUses + cs.joinUses + cs.orderByUses + cs.groupByUses
	if totalUses == 0 || t.queryCount == 0 {
		return 0
	}
	freq := float64(totalUses) / float64(t.queryCount)
	score := freq
	if cs.whereEqUses > 0 {
		score += 0.1
	}
	if cs.joinUses > 0 {
		score += 0.3
	}
	if cs.leadingWildcardLikeUses > 0 {
		score -= 0.05 * float64(cs.leadingWildcardLikeUses) / float64(t.queryCount)
	}
	if score < 0 {
		score = 0
	}
	return score
}

func priorityFor(score float64) Priority {
	switch {
	case score > 0.7:
		return PriorityCritical
	case score > 0.4:
		return PriorityHigh
	case score > 0.2:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

func rationaleFor(cs *columnStats, score float64) string {
	switch {
	case cs.joinUses > 0 && cs.whereEqUses > 0:
		return fmt.Sprintf("used in joins and equality filters (score %.2f)", score)
	case cs.joinUses > 0:
		return fmt.Sprintf("used as a join key (score %.2f)", score)
	case cs.whereEqUses > 0:
		return fmt.Sprintf("frequently filtered by equality (score %.2f)", score)
	case cs.orderByUses > 0:
		return fmt.Sprintf("frequently used to order results (score %.2f)", score)
	default:
		return fmt.Sprintf("frequently referenced in predicates (score %.2f)", score)
	}
}

func createIndexStmt(table string, columns []string) string {
	name := "idx_" + table
	for _, c := range columns {
		name += "_" + c
	}
	cols := columns[0]
	for _, c := range columns[1:] {
		cols += ", " + c
	}
	return fmt.Sprintf("CREATE INDEX %s ON %s (%s)", name, table, cols)
}
