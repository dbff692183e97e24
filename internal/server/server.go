package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/gamefusion/promptlog/internal/config"
	"github.com/gamefusion/promptlog/internal/handler"
	"github.com/gamefusion/promptlog/internal/ingest"
	authmw "github.com/gamefusion/promptlog/internal/middleware"
	"github.com/gamefusion/promptlog/internal/observability"
	"github.com/gamefusion/promptlog/internal/response"
)

// Deps are the collaborators the HTTP layer talks to. Archive, ArchiveReader
// and NewRelic are optional.
type Deps struct {
	Logs          handler.PromptLogStore
	Projects      handler.ProjectStore
	DB            handler.Pinger
	Archive       handler.Archiver
	ArchiveReader handler.ArchiveReader
	NewRelic      *newrelic.Application
	Logger        zerolog.Logger
}

// Server holds the Echo app and dependencies.
type Server struct {
	Echo   *echo.Echo
	Config *config.Config
	logger zerolog.Logger
}

// New builds the Echo server and registers routes.
func New(cfg *config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = response.HTTPErrorHandler(deps.Logger)
	e.Server.ReadTimeout = time.Duration(cfg.Server.ReadTimeout) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.Server.WriteTimeout) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.Server.IdleTimeout) * time.Second

	e.Use(
		middleware.Recover(),
		middleware.RequestID(),
		requestLogger(deps.Logger),
		observability.Transactions(deps.NewRelic),
		middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: cfg.Server.CORSAllowedOrigins}),
		middleware.BodyLimit(cfg.Server.BodyLimit),
	)

	promptHistory := &handler.PromptHistoryHandler{
		Store:        deps.Logs,
		Normalizer:   ingest.NewNormalizer(),
		Archive:      deps.Archive,
		WriteTimeout: time.Duration(cfg.Database.WriteTimeout) * time.Second,
		Logger:       deps.Logger.With().Str("handler", "prompt_history").Logger(),
	}
	projects := &handler.ProjectHandler{
		Logs:     deps.Logs,
		Projects: deps.Projects,
		Logger:   deps.Logger.With().Str("handler", "projects").Logger(),
	}
	archives := &handler.ArchiveHandler{
		Reader:        deps.ArchiveReader,
		DefaultPrefix: archivePrefix(cfg),
		Logger:        deps.Logger.With().Str("handler", "archives").Logger(),
	}
	health := &handler.HealthHandler{DB: deps.DB}

	e.GET("/healthz", health.Check)

	api := e.Group("/api/v1")
	api.POST("/prompt-history", promptHistory.Create, authmw.RequireBearerToken(cfg.Auth.Token, deps.Logger))

	basic := authmw.RequireBasicAuth(cfg.Auth)
	api.GET("/projects/:projectId", projects.Get, basic)
	api.GET("/projects/:projectId/stats", projects.Stats, basic)
	api.GET("/archives", archives.List, basic)
	api.GET("/archives/content", archives.Content, basic)

	return &Server{Echo: e, Config: cfg, logger: deps.Logger}
}

// Start starts the HTTP server. Blocks until the server stops; a clean
// Shutdown returns nil.
func (s *Server) Start() error {
	addr := ":" + s.Config.Server.Port
	s.logger.Info().Str("addr", addr).Msg("http server listening")
	if err := s.Echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}

func archivePrefix(cfg *config.Config) string {
	if cfg.Storage != nil && cfg.Storage.O3 != nil && cfg.Storage.O3.Prefix != "" {
		return cfg.Storage.O3.Prefix
	}
	return "prompt-logs"
}

func requestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := logger.Info()
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				ev = logger.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}
