package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProjectSummary is the cached token/cost rollup stored on a project.
// It is always overwritten by a full recomputation, never incremented.
type ProjectSummary struct {
	ProjectID   string          `db:"id"`
	Name        string          `db:"name"`
	TotalTokens int64           `db:"total_tokens"`
	TotalCost   decimal.Decimal `db:"total_cost"`
	LogCount    int64           `db:"log_count"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}
