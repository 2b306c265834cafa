package api

import (
	"context"
	"sync"

	"github.com/FACorreiaa/fastener-match/internal/domain/catalog"
	"github.com/FACorreiaa/fastener-match/internal/domain/matching"
	"github.com/FACorreiaa/fastener-match/pkg/metrics"
)

// fileCatalogAdapter adapts catalog.FileSource to both matching.CatalogSource
// and document.CatalogLookup. Every LoadCatalog reads the file again; Lookup
// answers from whatever the last successful load returned.
type fileCatalogAdapter struct {
	source  *catalog.FileSource
	metrics *metrics.Metrics

	mu            sync.RWMutex
	byDescription map[string]matching.CatalogEntry
}

// newFileCatalogAdapter creates a new adapter
func newFileCatalogAdapter(source *catalog.FileSource, m *metrics.Metrics) *fileCatalogAdapter {
	return &fileCatalogAdapter{
		source:        source,
		metrics:       m,
		byDescription: make(map[string]matching.CatalogEntry),
	}
}

// LoadCatalog implements matching.CatalogSource
func (a *fileCatalogAdapter) LoadCatalog(ctx context.Context) ([]matching.CatalogEntry, error) {
	entries, err := a.source.LoadCatalog(ctx)
	if err != nil {
		return nil, err
	}

	byDescription := make(map[string]matching.CatalogEntry, len(entries))
	for _, e := range entries {
		// first row wins, like the catalog import
		if _, ok := byDescription[e.Description]; !ok {
			byDescription[e.Description] = e
		}
	}

	a.mu.Lock()
	a.byDescription = byDescription
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.CatalogEntries.Set(float64(len(entries)))
	}
	return entries, nil
}

// Lookup implements document.CatalogLookup
func (a *fileCatalogAdapter) Lookup(description string) (matching.CatalogEntry, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.byDescription[description]
	return e, ok
}
