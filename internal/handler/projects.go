package handler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/gamefusion/promptlog/internal/model"
	"github.com/gamefusion/promptlog/internal/repository"
	"github.com/gamefusion/promptlog/internal/response"
	"github.com/gamefusion/promptlog/internal/stats"
)

// ProjectStore persists the cached project rollups.
type ProjectStore interface {
	SaveSummary(ctx context.Context, s *model.ProjectSummary) error
	GetSummary(ctx context.Context, projectID string) (*model.ProjectSummary, error)
}

// ProjectHandler serves the project stats endpoints.
type ProjectHandler struct {
	Logs     PromptLogStore
	Projects ProjectStore
	Logger   zerolog.Logger
}

type statsResponse struct {
	TotalTokens int64       `json:"total_tokens"`
	TotalCost   json.Number `json:"total_cost"`
	LogCount    int64       `json:"log_count"`
}

type projectResponse struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	TotalTokens int64       `json:"total_tokens"`
	TotalCost   json.Number `json:"total_cost"`
	LogCount    int64       `json:"log_count"`
	CreatedAt   string      `json:"created_at"`
	UpdatedAt   string      `json:"updated_at"`
}

// Stats recomputes the project's totals from the full log, overwrites the
// cached summary and returns it (GET /api/v1/projects/:projectId/stats).
func (h *ProjectHandler) Stats(c echo.Context) error {
	projectID := c.Param("projectId")
	if projectID == "" {
		return response.BadRequest(c, "Missing project id")
	}
	ctx := c.Request().Context()

	logs, err := h.Logs.ListByProject(ctx, projectID)
	if err != nil {
		h.Logger.Error().Err(err).Str("project_id", projectID).Msg("list prompt logs")
		return response.InternalError(c, "Failed to compute project stats")
	}

	totals := stats.Aggregate(logs)
	summary := totals.Summary(projectID)
	if err := h.Projects.SaveSummary(ctx, &summary); err != nil {
		h.Logger.Error().Err(err).Str("project_id", projectID).Msg("save project summary")
		return response.InternalError(c, "Failed to compute project stats")
	}

	return response.OK(c, statsResponse{
		TotalTokens: totals.Tokens,
		TotalCost:   json.Number(totals.Cost.String()),
		LogCount:    totals.Count,
	})
}

// Get returns the cached summary without recomputing (GET /api/v1/projects/:projectId).
func (h *ProjectHandler) Get(c echo.Context) error {
	projectID := c.Param("projectId")
	s, err := h.Projects.GetSummary(c.Request().Context(), projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "Project not found")
		}
		h.Logger.Error().Err(err).Str("project_id", projectID).Msg("get project summary")
		return response.InternalError(c, "Failed to load project")
	}
	return response.OK(c, projectResponse{
		ID:          s.ProjectID,
		Name:        s.Name,
		TotalTokens: s.TotalTokens,
		TotalCost:   json.Number(s.TotalCost.String()),
		LogCount:    s.LogCount,
		CreatedAt:   s.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   s.UpdatedAt.UTC().Format(time.RFC3339),
	})
}
