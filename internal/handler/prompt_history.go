package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/gamefusion/promptlog/internal/ingest"
	"github.com/gamefusion/promptlog/internal/model"
	"github.com/gamefusion/promptlog/internal/response"
)

// PromptLogStore is the durable, append-only prompt log.
type PromptLogStore interface {
	Append(ctx context.Context, entry *model.PromptLog) error
	ListByProject(ctx context.Context, projectID string) ([]model.PromptLog, error)
}

// Archiver receives entries after they are committed. Enqueue must not block.
type Archiver interface {
	Enqueue(entry model.PromptLog) bool
}

// PromptHistoryHandler handles POST /api/v1/prompt-history. Authentication is
// done by middleware on the route; the handler validates, normalizes and
// appends. It keeps no state between requests.
type PromptHistoryHandler struct {
	Store        PromptLogStore
	Normalizer   *ingest.Normalizer
	Archive      Archiver // optional
	WriteTimeout time.Duration
	Logger       zerolog.Logger
}

// Create ingests one prompt/response record.
func (h *PromptHistoryHandler) Create(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		// BodyLimit reports an oversized chunked body here as a 413.
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return err
		}
		return response.BadRequest(c, "Could not read request body")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return response.BadRequest(c, "No JSON data provided")
	}

	var payload ingest.Payload
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return response.BadRequest(c, "Invalid JSON body")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return response.BadRequest(c, "Invalid JSON body")
	}

	entry, err := h.Normalizer.Normalize(payload)
	if err != nil {
		var verr *ingest.ValidationError
		if errors.As(err, &verr) {
			return response.BadRequest(c, verr.Error())
		}
		return response.BadRequest(c, "Invalid prompt log")
	}

	// The append must finish even if the client hangs up; the audit log
	// wins over responsiveness. WriteTimeout still bounds it.
	ctx := context.WithoutCancel(c.Request().Context())
	if h.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.WriteTimeout)
		defer cancel()
	}
	if err := h.Store.Append(ctx, entry); err != nil {
		h.Logger.Error().Err(err).
			Str("id", entry.ID.String()).
			Str("project_id", entry.ProjectID).
			Msg("store prompt log")
		return response.InternalError(c, "Failed to store prompt log")
	}

	if h.Archive != nil {
		h.Archive.Enqueue(*entry)
	}

	h.Logger.Info().
		Str("id", entry.ID.String()).
		Str("type", entry.Type).
		Str("project_id", entry.ProjectID).
		Int64("tokens", entry.Tokens).
		Msg("logged prompt")

	return response.Created(c, entry.ID.String())
}
