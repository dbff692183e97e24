package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/gamefusion/promptlog/internal/model"
)

// PromptLogRepository is the append-only prompt log. Rows are never updated.
type PromptLogRepository struct {
	pool *pgxpool.Pool
}

// NewPromptLogRepository returns a PromptLogRepository using the given pool.
func NewPromptLogRepository(pool *pgxpool.Pool) *PromptLogRepository {
	return &PromptLogRepository{pool: pool}
}

const promptLogColumns = `id, type, timestamp, category, date_time, user_id, project_id, session_id,
		correlation_id, environment, error_details, input_size, output_size, latency_breakdown,
		model_params, user_name, version, llm, prompt, response, tokens, cost::text, context`

// Append inserts one entry. The single-row INSERT commits atomically, so
// readers see the whole record or nothing.
func (r *PromptLogRepository) Append(ctx context.Context, entry *model.PromptLog) error {
	query := `
		INSERT INTO prompt_logs (id, type, timestamp, category, date_time, user_id, project_id, session_id,
			correlation_id, environment, error_details, input_size, output_size, latency_breakdown,
			model_params, user_name, version, llm, prompt, response, tokens, cost, context)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22::numeric, $23)`
	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.Type,
		entry.Timestamp,
		entry.Category,
		entry.ClientDateTime,
		entry.UserID,
		entry.ProjectID,
		entry.SessionID,
		entry.CorrelationID,
		entry.Environment,
		entry.ErrorDetails,
		entry.InputSize,
		entry.OutputSize,
		entry.LatencyBreakdown,
		entry.ModelParams,
		entry.User,
		entry.Version,
		entry.LLM,
		entry.Prompt,
		entry.Response,
		entry.Tokens,
		entry.Cost.String(),
		entry.Context,
	)
	return storeErr("append prompt log", err)
}

// ListByProject returns every entry whose project_id equals projectID.
// Order is unspecified.
func (r *PromptLogRepository) ListByProject(ctx context.Context, projectID string) ([]model.PromptLog, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+promptLogColumns+` FROM prompt_logs WHERE project_id = $1`, projectID)
	if err != nil {
		return nil, storeErr("list prompt logs", err)
	}
	defer rows.Close()

	var list []model.PromptLog
	for rows.Next() {
		entry, err := scanPromptLog(rows)
		if err != nil {
			return nil, storeErr("scan prompt log", err)
		}
		list = append(list, entry)
	}
	return list, storeErr("list prompt logs", rows.Err())
}

func scanPromptLog(row pgx.Row) (model.PromptLog, error) {
	var (
		e    model.PromptLog
		cost string
	)
	err := row.Scan(
		&e.ID,
		&e.Type,
		&e.Timestamp,
		&e.Category,
		&e.ClientDateTime,
		&e.UserID,
		&e.ProjectID,
		&e.SessionID,
		&e.CorrelationID,
		&e.Environment,
		&e.ErrorDetails,
		&e.InputSize,
		&e.OutputSize,
		&e.LatencyBreakdown,
		&e.ModelParams,
		&e.User,
		&e.Version,
		&e.LLM,
		&e.Prompt,
		&e.Response,
		&e.Tokens,
		&cost,
		&e.Context,
	)
	if err != nil {
		return e, err
	}
	e.Cost, err = decimal.NewFromString(cost)
	e.Timestamp = e.Timestamp.UTC()
	return e, err
}
