package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/gamefusion/promptlog/internal/model"
)

// ProjectRepository stores the cached per-project rollups.
type ProjectRepository struct {
	pool *pgxpool.Pool
}

// NewProjectRepository returns a ProjectRepository using the given pool.
func NewProjectRepository(pool *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{pool: pool}
}

// SaveSummary overwrites the project's totals, creating the project row on
// first use. CreatedAt and UpdatedAt are filled from the database.
func (r *ProjectRepository) SaveSummary(ctx context.Context, s *model.ProjectSummary) error {
	query := `
		INSERT INTO projects (id, name, total_tokens, total_cost, log_count)
		VALUES ($1, $2, $3, $4::numeric, $5)
		ON CONFLICT (id) DO UPDATE SET
			total_tokens = EXCLUDED.total_tokens,
			total_cost   = EXCLUDED.total_cost,
			log_count    = EXCLUDED.log_count,
			updated_at   = now()
		RETURNING name, created_at, updated_at`
	name := s.Name
	if name == "" {
		name = s.ProjectID
	}
	err := r.pool.QueryRow(ctx, query,
		s.ProjectID,
		name,
		s.TotalTokens,
		s.TotalCost.String(),
		s.LogCount,
	).Scan(&s.Name, &s.CreatedAt, &s.UpdatedAt)
	return storeErr("save project summary", err)
}

// GetSummary returns the cached rollup, or ErrNotFound.
func (r *ProjectRepository) GetSummary(ctx context.Context, projectID string) (*model.ProjectSummary, error) {
	var (
		s    model.ProjectSummary
		cost string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, total_tokens, total_cost::text, log_count, created_at, updated_at
		FROM projects WHERE id = $1`, projectID).Scan(
		&s.ProjectID,
		&s.Name,
		&s.TotalTokens,
		&cost,
		&s.LogCount,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storeErr("get project summary", err)
	}
	if s.TotalCost, err = decimal.NewFromString(cost); err != nil {
		return nil, storeErr("decode project cost", err)
	}
	return &s, nil
}
