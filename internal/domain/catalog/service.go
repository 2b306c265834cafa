package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/FACorreiaa/fastener-match/internal/domain/matching"
)

const (
	// DefaultSearchLimit is the number of products returned by SearchProducts
	// when the caller does not ask for a specific amount.
	DefaultSearchLimit = 3
	// fallbackProducts is how many catalog rows pad a thin candidate set.
	fallbackProducts = 50
)

// Service manages the product catalog and keeps an in-memory snapshot of it
// for candidate retrieval.
type Service struct {
	repo        Repository
	index       *SearchIndex
	tagger      *AttributeTagger
	catalogPath string
	logger      *slog.Logger

	mu            sync.RWMutex
	products      []Product
	byID          map[uuid.UUID]int
	byDescription map[string]int
}

// NewService creates a new catalog service
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{
		repo:          repo,
		tagger:        NewAttributeTagger(nil),
		logger:        logger,
		byID:          make(map[uuid.UUID]int),
		byDescription: make(map[string]int),
	}
}

// WithSearchIndex enables typo-tolerant candidate retrieval
func (s *Service) WithSearchIndex(index *SearchIndex) *Service {
	s.index = index
	return s
}

// WithCatalogPath sets the file imported by ImportFromFile("")
func (s *Service) WithCatalogPath(path string) *Service {
	s.catalogPath = path
	return s
}

// CatalogPath returns the configured catalog file
func (s *Service) CatalogPath() string {
	return s.catalogPath
}

// ImportFromFile loads a catalog file and stores every product whose
// description is not in the database yet. An empty path imports the
// configured catalog file. The snapshot is rebuilt afterwards.
func (s *Service) ImportFromFile(ctx context.Context, path string) (*ImportResult, error) {
	if path == "" {
		path = s.catalogPath
	}

	entries, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	imported, err := s.repo.InsertProducts(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("failed to import catalog: %w", err)
	}

	s.logger.Info("catalog imported",
		slog.String("path", path),
		slog.Int("rows", len(entries)),
		slog.Int("imported", imported),
	)

	if err := s.Reload(ctx); err != nil {
		s.logger.Warn("catalog snapshot not refreshed after import", slog.Any("error", err))
	}

	return &ImportResult{Success: true, Imported: imported, Rows: len(entries)}, nil
}

// Reload rebuilds the snapshot, the attribute tagger and the search index
// from the database.
func (s *Service) Reload(ctx context.Context) error {
	products, err := s.repo.ListProducts(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to load products: %w", err)
	}

	byID := make(map[uuid.UUID]int, len(products))
	byDescription := make(map[string]int, len(products))
	for i, p := range products {
		byID[p.ID] = i
		if _, ok := byDescription[p.Description]; !ok {
			byDescription[p.Description] = i
		}
	}

	if s.index != nil {
		if err := s.index.Replace(products); err != nil {
			return fmt.Errorf("failed to rebuild search index: %w", err)
		}
	}
	s.tagger.Build(products)

	s.mu.Lock()
	s.products = products
	s.byID = byID
	s.byDescription = byDescription
	s.mu.Unlock()

	s.logger.Info("catalog snapshot reloaded",
		slog.Int("products", len(products)),
		slog.Int("attribute_patterns", s.tagger.PatternCount()),
	)
	return nil
}

// LoadCatalog implements matching.CatalogSource by reading the catalog from
// the database in insertion order.
func (s *Service) LoadCatalog(ctx context.Context) ([]matching.CatalogEntry, error) {
	products, err := s.repo.ListProducts(ctx, 0)
	if err != nil {
		return nil, err
	}
	return entriesOf(products), nil
}

// Lookup returns the snapshot entry with exactly this description.
func (s *Service) Lookup(description string) (matching.CatalogEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byDescription[description]
	if !ok {
		return matching.CatalogEntry{}, false
	}
	return s.products[i].CatalogEntry, true
}

// Size reports the number of products in the snapshot
func (s *Service) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products)
}

// SearchProducts returns the limit products most similar to query. Candidates
// come from a substring search, the attribute tagger and the fuzzy index;
// when they are fewer than twice the limit the first catalog rows are added.
// All candidates are then ranked with matching.Score.
func (s *Service) SearchProducts(ctx context.Context, query string, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	found, err := s.repo.SearchProducts(ctx, query)
	if err != nil {
		return nil, err
	}

	candidates := newCandidateSet()
	candidates.add(found...)
	candidates.add(s.taggedProducts(query)...)
	candidates.add(s.indexedProducts(query, limit)...)

	if candidates.len() < limit*2 {
		more, err := s.repo.ListProducts(ctx, fallbackProducts)
		if err != nil {
			return nil, err
		}
		candidates.add(more...)
	}

	normalizedQuery := matching.Normalize(query)
	type scored struct {
		product Product
		score   float64
	}
	ranked := make([]scored, len(candidates.products))
	for i, p := range candidates.products {
		ranked[i] = scored{product: p, score: matching.Score(normalizedQuery, p.Description)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	products := make([]Product, len(ranked))
	for i, r := range ranked {
		products[i] = r.product
	}
	return products, nil
}

// Suggest returns snapshot products whose description contains the runes
// of prefix in order, ignoring case and diacritics. Closer matches come first.
func (s *Service) Suggest(prefix string, limit int) []Product {
	if limit <= 0 {
		limit = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	descriptions := make([]string, len(s.products))
	for i, p := range s.products {
		descriptions[i] = p.Description
	}

	ranks := fuzzy.RankFindNormalizedFold(prefix, descriptions)
	sort.SliceStable(ranks, func(i, j int) bool {
		if ranks[i].Distance != ranks[j].Distance {
			return ranks[i].Distance < ranks[j].Distance
		}
		return ranks[i].OriginalIndex < ranks[j].OriginalIndex
	})

	if len(ranks) > limit {
		ranks = ranks[:limit]
	}
	products := make([]Product, len(ranks))
	for i, r := range ranks {
		products[i] = s.products[r.OriginalIndex]
	}
	return products
}

func (s *Service) taggedProducts(query string) []Product {
	tagged := s.tagger.Tag(query)
	if len(tagged) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]Product, 0, len(tagged))
	for _, t := range tagged {
		if i, ok := s.byID[t.ProductID]; ok {
			products = append(products, s.products[i])
		}
	}
	return products
}

func (s *Service) indexedProducts(query string, limit int) []Product {
	if s.index == nil || query == "" {
		return nil
	}

	hits, err := s.index.Search(query, limit*4)
	if err != nil {
		s.logger.Warn("search index unavailable", slog.Any("error", err))
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]Product, 0, len(hits))
	for _, h := range hits {
		if i, ok := s.byID[h.ProductID]; ok {
			products = append(products, s.products[i])
		}
	}
	return products
}

// candidateSet keeps products in first-seen order without duplicates
type candidateSet struct {
	seen     map[uuid.UUID]bool
	products []Product
}

func newCandidateSet() *candidateSet {
	return &candidateSet{seen: make(map[uuid.UUID]bool)}
}

func (c *candidateSet) add(products ...Product) {
	for _, p := range products {
		if c.seen[p.ID] {
			continue
		}
		c.seen[p.ID] = true
		c.products = append(c.products, p)
	}
}

func (c *candidateSet) len() int {
	return len(c.products)
}
