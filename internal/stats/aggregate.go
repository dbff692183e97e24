// Package stats rolls prompt logs up into per-project token and cost totals.
package stats

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/gamefusion/promptlog/internal/model"
)

// Totals is the result of one aggregation pass.
// Cost uses a decimal accumulator so repeated recomputation never drifts.
type Totals struct {
	Tokens int64
	Cost   decimal.Decimal
	Count  int64
}

// Aggregate sums tokens and cost over entries. Order does not matter.
func Aggregate(entries []model.PromptLog) Totals {
	t := Totals{Cost: decimal.Zero}
	for i := range entries {
		t.Tokens = addTokens(t.Tokens, entries[i].Tokens)
		t.Cost = t.Cost.Add(entries[i].Cost)
		t.Count++
	}
	return t
}

// Add combines two disjoint aggregations.
func (t Totals) Add(o Totals) Totals {
	return Totals{
		Tokens: addTokens(t.Tokens, o.Tokens),
		Cost:   t.Cost.Add(o.Cost),
		Count:  t.Count + o.Count,
	}
}

// Equal compares totals numerically, so 0.10 equals 0.1.
func (t Totals) Equal(o Totals) bool {
	return t.Tokens == o.Tokens && t.Count == o.Count && t.Cost.Equal(o.Cost)
}

// Summary converts the totals into the cached project rollup.
func (t Totals) Summary(projectID string) model.ProjectSummary {
	return model.ProjectSummary{
		ProjectID:   projectID,
		TotalTokens: t.Tokens,
		TotalCost:   t.Cost,
		LogCount:    t.Count,
	}
}

// addTokens clamps at math.MaxInt64 instead of wrapping negative.
func addTokens(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}
