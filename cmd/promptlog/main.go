package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/gamefusion/promptlog/internal/config"
	"github.com/gamefusion/promptlog/internal/database"
	"github.com/gamefusion/promptlog/internal/logger"
	"github.com/gamefusion/promptlog/internal/observability"
	"github.com/gamefusion/promptlog/internal/repository"
	"github.com/gamefusion/promptlog/internal/server"
	"github.com/gamefusion/promptlog/internal/storage"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		boot := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("load config")
	}
	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.RunMigrations(ctx, cfg.Database.URL, log); err != nil {
		log.Fatal().Err(err).Msg("migrations")
	}

	pool, err := database.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("database pool")
	}
	defer pool.Close()

	nrApp, err := observability.NewApplication(cfg.Observability)
	if err != nil {
		log.Warn().Err(err).Msg("new relic disabled")
	}

	deps := server.Deps{
		Logs:     repository.NewPromptLogRepository(pool),
		Projects: repository.NewProjectRepository(pool),
		DB:       pool,
		NewRelic: nrApp,
		Logger:   log,
	}

	var archiver *storage.Archiver
	if cfg.Storage != nil && cfg.Storage.O3.Enabled() {
		o3Client, err := storage.NewO3Client(cfg.Storage.O3)
		if err != nil {
			log.Error().Err(err).Msg("object storage client, archive disabled")
		} else {
			if err := o3Client.EnsureBucket(ctx); err != nil {
				log.Warn().Err(err).Msg("ensure bucket (uploads may fail)")
			}
			archiver = storage.NewArchiver(o3Client, cfg.Storage.O3.Prefix, cfg.Archive, log, nil)
			archiver.Start()
			deps.Archive = archiver
			deps.ArchiveReader = o3Client
			log.Info().
				Int("batch", cfg.Archive.MaxBatchSize).
				Dur("interval", cfg.Archive.FlushInterval).
				Msg("archiving prompt logs to object storage")
		}
	}

	srv := server.New(cfg, deps)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server exited")
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if archiver != nil {
		if err := archiver.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("archiver flush")
		}
	}
	nrApp.Shutdown(5 * time.Second)
}
