// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/FACorreiaa/fastener-match/internal/domain/catalog"
)

const syncTimeout = 10 * time.Minute

// CatalogImporter re-imports the configured catalog file. An empty path
// means the importer's own configured file.
type CatalogImporter interface {
	ImportFromFile(ctx context.Context, path string) (*catalog.ImportResult, error)
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron     *cron.Cron
	importer CatalogImporter
	schedule string
	logger   *slog.Logger
}

// NewScheduler creates a new job scheduler. An empty schedule disables the
// catalog sync job; RunNow still works.
func NewScheduler(importer CatalogImporter, schedule string, logger *slog.Logger) *Scheduler {
	// standard 5-field format, no seconds
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:     c,
		importer: importer,
		schedule: schedule,
		logger:   logger,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	if s.schedule == "" {
		s.logger.Info("catalog sync disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, s.syncCatalog); err != nil {
		return fmt.Errorf("invalid catalog sync schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.String("schedule", s.schedule),
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs. The returned context is done
// once running jobs have finished.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow triggers a catalog sync in the background.
func (s *Scheduler) RunNow() {
	go s.syncCatalog()
}

func (s *Scheduler) syncCatalog() {
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	s.logger.Info("starting catalog sync")
	start := time.Now()

	result, err := s.importer.ImportFromFile(ctx, "")
	if err != nil {
		s.logger.Error("catalog sync failed", slog.Any("error", err))
		return
	}

	s.logger.Info("catalog sync completed",
		slog.Int("rows", result.Rows),
		slog.Int("imported", result.Imported),
		slog.Duration("elapsed", time.Since(start)),
	)
}
