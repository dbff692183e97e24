package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/gamefusion/promptlog/internal/ingest"
	"github.com/gamefusion/promptlog/internal/middleware"
	"github.com/gamefusion/promptlog/internal/model"
	"github.com/gamefusion/promptlog/internal/repository"
	"github.com/gamefusion/promptlog/internal/response"
)

const testToken = "test-token"

type memLogStore struct {
	mu        sync.Mutex
	entries   []model.PromptLog
	appendErr error
	listErr   error
	ctxErr    error
}

func (s *memLogStore) Append(ctx context.Context, e *model.PromptLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctxErr = ctx.Err()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.entries = append(s.entries, *e)
	return nil
}

func (s *memLogStore) ListByProject(_ context.Context, projectID string) ([]model.PromptLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []model.PromptLog
	for _, e := range s.entries {
		if e.ProjectID == projectID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memLogStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

type memProjectStore struct {
	mu        sync.Mutex
	summaries map[string]model.ProjectSummary
	saveErr   error
}

func (s *memProjectStore) SaveSummary(_ context.Context, sum *model.ProjectSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	if s.summaries == nil {
		s.summaries = make(map[string]model.ProjectSummary)
	}
	if sum.Name == "" {
		sum.Name = sum.ProjectID
	}
	now := time.Date(2025, 6, 12, 10, 0, 0, 0, time.UTC)
	sum.CreatedAt, sum.UpdatedAt = now, now
	s.summaries[sum.ProjectID] = *sum
	return nil
}

func (s *memProjectStore) GetSummary(_ context.Context, id string) (*model.ProjectSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.summaries[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sum, nil
}

type recordingArchiver struct {
	mu      sync.Mutex
	entries []model.PromptLog
}

func (a *recordingArchiver) Enqueue(e model.PromptLog) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return true
}

type testEnv struct {
	echo     *echo.Echo
	logs     *memLogStore
	projects *memProjectStore
	archive  *recordingArchiver
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		echo:     echo.New(),
		logs:     &memLogStore{},
		projects: &memProjectStore{},
		archive:  &recordingArchiver{},
	}
	env.echo.HTTPErrorHandler = response.HTTPErrorHandler(zerolog.Nop())

	ph := &PromptHistoryHandler{
		Store:        env.logs,
		Normalizer:   ingest.NewNormalizer(),
		Archive:      env.archive,
		WriteTimeout: time.Second,
		Logger:       zerolog.Nop(),
	}
	pr := &ProjectHandler{Logs: env.logs, Projects: env.projects, Logger: zerolog.Nop()}

	env.echo.POST("/api/v1/prompt-history", ph.Create, middleware.RequireBearerToken(testToken, zerolog.Nop()))
	env.echo.GET("/api/v1/projects/:projectId/stats", pr.Stats)
	env.echo.GET("/api/v1/projects/:projectId", pr.Get)
	return env
}

func (env *testEnv) post(token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/prompt-history", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	dec := json.NewDecoder(rec.Body)
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestCreate_ValidPayloadReturnsFreshID(t *testing.T) {
	env := newTestEnv(t)
	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		rec := env.post(testToken, `{"type":"chat","prompt":"hi","response":"hello"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
		}
		body := decodeBody(t, rec)
		if body["status"] != "success" {
			t.Errorf("status field = %v", body["status"])
		}
		id, _ := body["id"].(string)
		if _, err := uuid.Parse(id); err != nil {
			t.Fatalf("id %q is not a uuid: %v", id, err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
	if env.logs.count() != 5 {
		t.Errorf("stored %d entries, want 5", env.logs.count())
	}
	if len(env.archive.entries) != 5 {
		t.Errorf("archived %d entries, want 5", len(env.archive.entries))
	}
}

func TestCreate_Unauthorized(t *testing.T) {
	env := newTestEnv(t)
	for _, token := range []string{"", "wrong"} {
		rec := env.post(token, `{"type":"chat","prompt":"2+2?","response":"4"}`)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("token %q: status = %d", token, rec.Code)
		}
		if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"Unauthorized"}` {
			t.Errorf("body = %s", got)
		}
	}
	// Invalid payloads with a bad token are still 401.
	if rec := env.post("wrong", `{}`); rec.Code != http.StatusUnauthorized {
		t.Errorf("invalid payload + bad token: status = %d", rec.Code)
	}
	if env.logs.count() != 0 {
		t.Errorf("store changed: %d entries", env.logs.count())
	}
}

func TestCreate_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty body", ``, "No JSON data provided"},
		{"empty object", `{}`, "No JSON data provided"},
		{"null", `null`, "No JSON data provided"},
		{"not json", `type=chat`, "Invalid JSON body"},
		{"array", `[1,2]`, "Invalid JSON body"},
		{"trailing garbage", `{"type":"chat","prompt":"p","response":"r"} garbage`, "Invalid JSON body"},
		{"two objects", `{"type":"chat","prompt":"p","response":"r"}{"type":"chat","prompt":"p","response":"r"}`, "Invalid JSON body"},
		{"long type", `{"type":"` + strings.Repeat("t", 60) + `","prompt":"p","response":"r"}`, "Invalid field: type (must be at most 50 characters)"},
		{"cost beyond storage precision", `{"type":"chat","prompt":"p","response":"r","cost":0.00000000004}`, "Invalid field: cost (must have at most 10 decimal places)"},
		{"missing type", `{"prompt":"p","response":"r"}`, "Missing required field: type"},
		{"missing prompt", `{"type":"chat","response":"r"}`, "Missing required field: prompt"},
		{"missing response", `{"type":"chat","prompt":"2+2?"}`, "Missing required field: response"},
		{"negative tokens", `{"type":"chat","prompt":"p","response":"r","tokens":-3}`, "Invalid field: tokens (must be a non-negative integer)"},
	}
	env := newTestEnv(t)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.post(testToken, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
			}
			if got := decodeBody(t, rec)["error"]; got != tc.want {
				t.Errorf("error = %v, want %q", got, tc.want)
			}
		})
	}
	if env.logs.count() != 0 {
		t.Errorf("store changed: %d entries", env.logs.count())
	}
}

func TestCreate_StoreFailure(t *testing.T) {
	env := newTestEnv(t)
	env.logs.appendErr = &repository.StoreError{Op: "append prompt log", Err: errors.New("connection refused")}

	rec := env.post(testToken, `{"type":"chat","prompt":"p","response":"r"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "Failed to store prompt log" {
		t.Errorf("error = %v", got)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Error("store error details leaked to the client")
	}
	if len(env.archive.entries) != 0 {
		t.Error("failed entries must not be archived")
	}
}

func TestCreate_AppendSurvivesClientCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/prompt-history",
		strings.NewReader(`{"type":"chat","prompt":"p","response":"r"}`)).WithContext(ctx)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+testToken)
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	if env.logs.ctxErr != nil {
		t.Errorf("append ran with a cancelled context: %v", env.logs.ctxErr)
	}
}

func TestStats_EndToEnd(t *testing.T) {
	env := newTestEnv(t)
	rec := env.post(testToken, `{"type":"chat","prompt":"2+2?","response":"4","tokens":12,"cost":0.0004,"projectId":"proj-1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("ingest status = %d", rec.Code)
	}
	env.post(testToken, `{"type":"chat","prompt":"x","response":"y","tokens":99,"cost":1,"projectId":"proj-2"}`)

	for i := 0; i < 2; i++ {
		rec = env.get("/api/v1/projects/proj-1/stats")
		if rec.Code != http.StatusOK {
			t.Fatalf("stats status = %d body=%s", rec.Code, rec.Body.String())
		}
		if got := strings.TrimSpace(rec.Body.String()); got != `{"total_tokens":12,"total_cost":0.0004,"log_count":1}` {
			t.Fatalf("stats body = %s", got)
		}
	}

	sum, err := env.projects.GetSummary(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("summary not saved: %v", err)
	}
	if sum.TotalTokens != 12 || sum.TotalCost.String() != "0.0004" || sum.LogCount != 1 {
		t.Errorf("summary = %+v", sum)
	}

	rec = env.get("/api/v1/projects/proj-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("get project status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["id"] != "proj-1" || body["total_tokens"] != json.Number("12") || body["total_cost"] != json.Number("0.0004") {
		t.Errorf("project body = %v", body)
	}
}

func TestStats_EmptyProject(t *testing.T) {
	env := newTestEnv(t)
	rec := env.get("/api/v1/projects/nothing/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"total_tokens":0,"total_cost":0,"log_count":0}` {
		t.Errorf("body = %s", got)
	}
}

func TestStats_StoreFailures(t *testing.T) {
	env := newTestEnv(t)
	env.logs.listErr = errors.New("down")
	if rec := env.get("/api/v1/projects/p/stats"); rec.Code != http.StatusInternalServerError {
		t.Errorf("list failure: status = %d", rec.Code)
	}

	env.logs.listErr = nil
	env.projects.saveErr = errors.New("down")
	if rec := env.get("/api/v1/projects/p/stats"); rec.Code != http.StatusInternalServerError {
		t.Errorf("save failure: status = %d", rec.Code)
	}
}

func TestGetProject_NotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := env.get("/api/v1/projects/missing")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "Project not found" {
		t.Errorf("error = %v", got)
	}
}
