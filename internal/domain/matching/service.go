package matching

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/FACorreiaa/fastener-match/pkg/metrics"
)

var tracer = otel.Tracer("github.com/FACorreiaa/fastener-match/internal/domain/matching")

// CatalogSource supplies the catalog to match against. Implementations own
// where the rows come from; the matcher only ever sees data.
type CatalogSource interface {
	LoadCatalog(ctx context.Context) ([]CatalogEntry, error)
}

// Service ranks free-text line items against the catalog of a CatalogSource.
type Service struct {
	source  CatalogSource
	topN    int
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewService creates a matching service. topN <= 0 uses DefaultTopN.
func NewService(source CatalogSource, topN int, logger *slog.Logger) *Service {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Service{
		source: source,
		topN:   topN,
		logger: logger,
	}
}

// WithMetrics sets the collectors used to record match batches.
func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

// TopN reports the configured number of candidates per query.
func (s *Service) TopN() int {
	return s.topN
}

// MatchDescriptions loads the catalog and ranks every description against
// it. A catalog that cannot be loaded degrades to no results rather than an
// error, so a broken catalog never fails the caller's request.
func (s *Service) MatchDescriptions(ctx context.Context, descriptions []string) Results {
	ctx, span := tracer.Start(ctx, "matching.MatchDescriptions")
	defer span.End()
	span.SetAttributes(attribute.Int("queries", len(descriptions)))

	entries, err := s.source.LoadCatalog(ctx)
	if err != nil {
		s.logger.Warn("catalog unavailable, returning no matches",
			slog.Any("error", err),
			slog.Int("queries", len(descriptions)),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "catalog unavailable")
		if s.metrics != nil {
			s.metrics.CatalogLoadErrors.Inc()
		}
		return Results{}
	}

	start := time.Now()
	results := NewCatalog(entries).MatchAll(ctx, descriptions, s.topN)
	elapsed := time.Since(start)

	span.SetAttributes(attribute.Int("catalog.entries", len(entries)))
	if s.metrics != nil {
		s.metrics.ObserveMatch(len(results), len(entries), elapsed)
	}

	s.logger.Debug("matched descriptions",
		slog.Int("queries", len(descriptions)),
		slog.Int("catalog_entries", len(entries)),
		slog.Duration("elapsed", elapsed),
	)

	return results
}
