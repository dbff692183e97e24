package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gamefusion/promptlog/internal/config"
	"github.com/gamefusion/promptlog/internal/model"
)

const (
	batchExt         = ".json.gz"
	batchContentType = "application/gzip"
	uploadTimeout    = 30 * time.Second
)

// ObjectPutter is the subset of O3Client the archiver needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

// FlushFunc is called after every successful batch upload.
type FlushFunc func(projectID string, count int, key string)

// Archiver mirrors committed prompt logs to object storage in per-project
// gzip batches. The database stays the source of truth: upload failures are
// logged and the batch is dropped.
type Archiver struct {
	putter  ObjectPutter
	prefix  string
	cfg     config.ArchiveConfig
	logger  zerolog.Logger
	onFlush FlushFunc
	now     func() time.Time

	queue    chan model.PromptLog
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewArchiver builds an archiver; call Start before Enqueue.
func NewArchiver(putter ObjectPutter, prefix string, cfg config.ArchiveConfig, logger zerolog.Logger, onFlush FlushFunc) *Archiver {
	return &Archiver{
		putter:  putter,
		prefix:  prefix,
		cfg:     cfg,
		logger:  logger.With().Str("component", "archiver").Logger(),
		onFlush: onFlush,
		now:     time.Now,
		queue:   make(chan model.PromptLog, cfg.QueueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start launches the flush loop.
func (a *Archiver) Start() {
	go a.run()
}

// Enqueue hands an entry to the archiver without blocking. It returns false
// when the queue is full or the archiver is stopping.
func (a *Archiver) Enqueue(entry model.PromptLog) bool {
	select {
	case <-a.done:
		return false
	default:
	}
	select {
	case a.queue <- entry:
		return true
	default:
		a.logger.Warn().Str("id", entry.ID.String()).Msg("archive queue full, entry not mirrored")
		return false
	}
}

// Stop flushes everything still queued and waits for the loop to exit or ctx to end.
func (a *Archiver) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() { close(a.done) })
	select {
	case <-a.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Archiver) run() {
	defer close(a.stopped)

	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()

	pending := make(map[string][]model.PromptLog)
	add := func(e model.PromptLog) {
		pending[e.ProjectID] = append(pending[e.ProjectID], e)
		if len(pending[e.ProjectID]) >= a.cfg.MaxBatchSize {
			a.flush(e.ProjectID, pending[e.ProjectID])
			delete(pending, e.ProjectID)
		}
	}
	flushAll := func() {
		projects := make([]string, 0, len(pending))
		for p := range pending {
			projects = append(projects, p)
		}
		sort.Strings(projects)
		for _, p := range projects {
			a.flush(p, pending[p])
			delete(pending, p)
		}
	}

	for {
		select {
		case e := <-a.queue:
			add(e)
		case <-ticker.C:
			flushAll()
		case <-a.done:
			for {
				select {
				case e := <-a.queue:
					add(e)
				default:
					flushAll()
					return
				}
			}
		}
	}
}

func (a *Archiver) flush(projectID string, entries []model.PromptLog) {
	if len(entries) == 0 {
		return
	}
	data, err := EncodeBatch(entries)
	if err != nil {
		a.logger.Error().Err(err).Str("project_id", projectID).Msg("encode archive batch")
		return
	}
	key := KeyForBatch(a.prefix, projectID, uuid.New().String(), batchExt, a.now())

	ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
	defer cancel()
	if err := a.putter.PutObject(ctx, key, data, batchContentType); err != nil {
		a.logger.Error().Err(err).Str("key", key).Int("count", len(entries)).Msg("upload archive batch")
		return
	}
	a.logger.Info().Str("key", key).Int("count", len(entries)).Msg("archived prompt logs")
	if a.onFlush != nil {
		a.onFlush(projectID, len(entries), key)
	}
}
