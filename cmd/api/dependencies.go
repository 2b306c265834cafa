package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/FACorreiaa/fastener-match/internal/domain/catalog"
	cataloghandler "github.com/FACorreiaa/fastener-match/internal/domain/catalog/handler"
	"github.com/FACorreiaa/fastener-match/internal/domain/document"
	documenthandler "github.com/FACorreiaa/fastener-match/internal/domain/document/handler"
	"github.com/FACorreiaa/fastener-match/internal/domain/extraction"
	"github.com/FACorreiaa/fastener-match/internal/domain/matching"
	matchinghandler "github.com/FACorreiaa/fastener-match/internal/domain/matching/handler"

	"github.com/FACorreiaa/fastener-match/pkg/config"
	"github.com/FACorreiaa/fastener-match/pkg/cron"
	"github.com/FACorreiaa/fastener-match/pkg/db"
	"github.com/FACorreiaa/fastener-match/pkg/metrics"
	"github.com/FACorreiaa/fastener-match/pkg/storage"
)

// replaced in tests
var (
	openDatabase  = db.New
	runMigrations = (*db.DB).RunMigrations
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config  *config.Config
	DB      *db.DB
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Repositories
	CatalogRepo  *catalog.PostgresRepository
	DocumentRepo *document.PostgresRepository

	// Services
	SearchIndex     *catalog.SearchIndex
	CatalogService  *catalog.Service
	CatalogSource   matching.CatalogSource
	MatchingService *matching.Service
	Extractor       *extraction.Client
	DocumentService *document.Service
	FileStorage     storage.Storage
	Scheduler       *cron.Scheduler

	// Handlers
	CatalogHandler  *cataloghandler.CatalogHandler
	DocumentHandler *documenthandler.DocumentHandler
	MatchingHandler *matchinghandler.MatchingHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
	}

	if err := deps.initDatabase(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	if err := deps.initRepositories(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	if err := deps.initServices(ctx); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	if err := deps.initHandlers(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := openDatabase(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if err := runMigrations(d.DB); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() error {
	d.CatalogRepo = catalog.NewPostgresRepository(d.DB.Pool)
	d.DocumentRepo = document.NewPostgresRepository(d.DB.Pool)

	d.Logger.Info("repositories initialized")
	return nil
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices(ctx context.Context) error {
	index, err := catalog.NewSearchIndex(d.Config.Catalog.SearchIndexPath)
	if err != nil {
		return fmt.Errorf("failed to open search index: %w", err)
	}
	d.SearchIndex = index

	d.CatalogService = catalog.NewService(d.CatalogRepo, d.Logger).
		WithSearchIndex(d.SearchIndex).
		WithCatalogPath(d.Config.Catalog.Path)

	// An empty or unreachable catalog table is not fatal, search just
	// starts out empty until the next import.
	if err := d.CatalogService.Reload(ctx); err != nil {
		d.Logger.Warn("catalog snapshot not loaded", slog.Any("error", err))
	}

	// Matching reads the catalog file on every batch unless the database
	// is configured as the source of truth.
	var lookup document.CatalogLookup
	switch d.Config.Catalog.Source {
	case config.CatalogSourceDatabase:
		d.CatalogSource = d.CatalogService
		lookup = d.CatalogService
	default:
		fileCatalog := newFileCatalogAdapter(catalog.NewFileSource(d.Config.Catalog.Path), d.Metrics)
		d.CatalogSource = fileCatalog
		lookup = fileCatalog
	}

	d.MatchingService = matching.NewService(d.CatalogSource, d.Config.Catalog.TopN, d.Logger).
		WithMetrics(d.Metrics)

	d.Extractor = extraction.NewClient(extraction.Config{
		APIKey:     d.Config.Extraction.APIKey,
		BaseURL:    d.Config.Extraction.BaseURL,
		Model:      d.Config.Extraction.Model,
		Timeout:    d.Config.Extraction.Timeout,
		MaxRetries: d.Config.Extraction.MaxRetries,
	}, d.Logger).WithMetrics(d.Metrics)
	if !d.Extractor.Configured() {
		d.Logger.Warn("OPENAI_API_KEY not set, extraction requests will report an error")
	}

	fileStorage, err := storage.NewLocalStorage(d.Config.Storage.LocalPath)
	if err != nil {
		return fmt.Errorf("failed to init file storage: %w", err)
	}
	d.FileStorage = fileStorage

	d.DocumentService = document.NewService(d.DocumentRepo, d.FileStorage, d.Extractor, d.MatchingService, d.Logger).
		WithCatalogLookup(lookup)

	d.Scheduler = cron.NewScheduler(d.CatalogService, d.Config.Catalog.SyncSchedule, d.Logger)

	d.Logger.Info("services initialized",
		slog.String("catalog_source", d.Config.Catalog.Source),
		slog.Int("top_n", d.MatchingService.TopN()),
	)
	return nil
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() error {
	d.CatalogHandler = cataloghandler.NewCatalogHandler(d.CatalogService, d.Logger)
	d.DocumentHandler = documenthandler.NewDocumentHandler(d.DocumentService, d.Logger)
	d.MatchingHandler = matchinghandler.NewMatchingHandler(d.MatchingService, d.Logger)

	d.Logger.Info("handlers initialized")
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.SearchIndex != nil {
		if err := d.SearchIndex.Close(); err != nil {
			d.Logger.Warn("failed to close search index", slog.Any("error", err))
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
