package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/google/uuid"
)

// searchDocument is the indexed form of a product
type searchDocument struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Material    string `json:"material"`
	Size        string `json:"size"`
	Length      string `json:"length"`
	Coating     string `json:"coating"`
	ThreadType  string `json:"thread_type"`
}

// SearchHit is a product ID with its Bleve relevance score
type SearchHit struct {
	ProductID uuid.UUID
	Score     float64
}

// SearchIndex is a typo-tolerant full-text index over the catalog. It only
// narrows candidates; final ranking is always done by matching.Score.
type SearchIndex struct {
	index   bleve.Index
	indexMu sync.RWMutex
	path    string
}

// NewSearchIndex creates an in-memory index when path is empty and
// opens or creates a persistent one otherwise.
func NewSearchIndex(path string) (*SearchIndex, error) {
	si := &SearchIndex{path: path}

	var index bleve.Index
	var err error

	indexMapping := buildIndexMapping()

	if path == "" {
		index, err = bleve.NewMemOnly(indexMapping)
	} else if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		if mkdirErr := os.MkdirAll(filepath.Dir(path), 0o755); mkdirErr != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", mkdirErr)
		}
		index, err = bleve.New(path, indexMapping)
	} else {
		index, err = bleve.Open(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}

	si.index = index
	return si, nil
}

func buildIndexMapping() mapping.IndexMapping {
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = simple.Name

	keywordFieldMapping := bleve.NewTextFieldMapping()
	keywordFieldMapping.Analyzer = keyword.Name
	keywordFieldMapping.IncludeInAll = false

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("id", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("description", textFieldMapping)
	docMapping.AddFieldMappingsAt("type", textFieldMapping)
	docMapping.AddFieldMappingsAt("material", textFieldMapping)
	docMapping.AddFieldMappingsAt("size", textFieldMapping)
	docMapping.AddFieldMappingsAt("length", textFieldMapping)
	docMapping.AddFieldMappingsAt("coating", textFieldMapping)
	docMapping.AddFieldMappingsAt("thread_type", textFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = simple.Name

	return indexMapping
}

// Replace drops every indexed document and indexes products instead.
func (si *SearchIndex) Replace(products []Product) error {
	si.indexMu.Lock()
	defer si.indexMu.Unlock()

	if err := si.clearLocked(); err != nil {
		return err
	}

	batch := si.index.NewBatch()
	for _, p := range products {
		doc := searchDocument{
			ID:          p.ID.String(),
			Description: p.Description,
			Type:        p.Type,
			Material:    p.Material,
			Size:        p.Size,
			Length:      p.Length,
			Coating:     p.Coating,
			ThreadType:  p.ThreadType,
		}
		if err := batch.Index(doc.ID, doc); err != nil {
			return fmt.Errorf("failed to index product %s: %w", p.ID, err)
		}
	}

	if err := si.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch index: %w", err)
	}
	return nil
}

// Search runs a match query allowing one edit per term.
func (si *SearchIndex) Search(query string, limit int) ([]SearchHit, error) {
	si.indexMu.RLock()
	defer si.indexMu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetFuzziness(1)

	searchRequest := bleve.NewSearchRequest(matchQuery)
	searchRequest.Size = limit

	searchResults, err := si.index.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]SearchHit, 0, len(searchResults.Hits))
	for _, hit := range searchResults.Hits {
		id, err := uuid.Parse(hit.ID)
		if err != nil {
			continue
		}
		hits = append(hits, SearchHit{ProductID: id, Score: hit.Score})
	}
	return hits, nil
}

// clearLocked deletes every document. Callers hold indexMu.
func (si *SearchIndex) clearLocked() error {
	for {
		searchRequest := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
		searchRequest.Size = 1000

		searchResults, err := si.index.Search(searchRequest)
		if err != nil {
			return fmt.Errorf("failed to list documents: %w", err)
		}
		if len(searchResults.Hits) == 0 {
			return nil
		}

		batch := si.index.NewBatch()
		for _, hit := range searchResults.Hits {
			batch.Delete(hit.ID)
		}
		if err := si.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to delete documents: %w", err)
		}
	}
}

// DocumentCount returns the number of indexed products
func (si *SearchIndex) DocumentCount() (uint64, error) {
	si.indexMu.RLock()
	defer si.indexMu.RUnlock()

	return si.index.DocCount()
}

// Close closes the index
func (si *SearchIndex) Close() error {
	si.indexMu.Lock()
	defer si.indexMu.Unlock()

	if si.index != nil {
		return si.index.Close()
	}
	return nil
}
