package handler

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/gamefusion/promptlog/internal/model"
	"github.com/gamefusion/promptlog/internal/response"
	"github.com/gamefusion/promptlog/internal/storage"
)

// ArchiveReader lists and reads archived prompt log batches.
type ArchiveReader interface {
	ListObjects(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
	GetObjectLogs(ctx context.Context, key string) ([]model.PromptLog, error)
}

// ArchiveHandler exposes the object-storage mirror. Reader is nil when
// storage is not configured.
type ArchiveHandler struct {
	Reader        ArchiveReader
	DefaultPrefix string
	Logger        zerolog.Logger
}

// List returns archived batch objects (GET /api/v1/archives?prefix=).
func (h *ArchiveHandler) List(c echo.Context) error {
	if h.Reader == nil {
		return response.BadRequest(c, "Object storage not configured")
	}
	prefix := c.QueryParam("prefix")
	if prefix == "" {
		prefix = h.DefaultPrefix + "/"
	}
	list, err := h.Reader.ListObjects(c.Request().Context(), prefix)
	if err != nil {
		h.Logger.Error().Err(err).Str("prefix", prefix).Msg("list archives")
		return response.InternalError(c, "Failed to list archives")
	}
	if list == nil {
		list = []storage.ObjectInfo{}
	}
	return response.OK(c, map[string]any{"objects": list})
}

// Content returns the entries stored in one batch (GET /api/v1/archives/content?key=).
func (h *ArchiveHandler) Content(c echo.Context) error {
	if h.Reader == nil {
		return response.BadRequest(c, "Object storage not configured")
	}
	key := c.QueryParam("key")
	if key == "" {
		return response.BadRequest(c, "Missing required query parameter: key")
	}
	logs, err := h.Reader.GetObjectLogs(c.Request().Context(), key)
	if err != nil {
		h.Logger.Error().Err(err).Str("key", key).Msg("read archive")
		return response.InternalError(c, "Failed to read archive")
	}
	return response.OK(c, map[string]any{"key": key, "logs": logs})
}
