package catalog

import (
	"sort"
	"sync"

	"github.com/cloudflare/ahocorasick"
	"github.com/google/uuid"

	"github.com/FACorreiaa/fastener-match/internal/domain/matching"
)

// AttributeTagger finds catalog products whose attribute values (type,
// material, size, length, coating, thread type) appear as whole words in a
// query. Every attribute value becomes one pattern of a single Aho-Corasick
// automaton, so a query is scanned once regardless of catalog size.
type AttributeTagger struct {
	matcher  *ahocorasick.Matcher
	patterns []string
	// products carrying each pattern, in catalog order
	owners [][]int
	ids    []uuid.UUID
	mu     sync.RWMutex
}

// TaggedProduct is a product and the number of its attributes found in the
// query.
type TaggedProduct struct {
	ProductID uuid.UUID
	Hits      int
}

// NewAttributeTagger builds a tagger over products
func NewAttributeTagger(products []Product) *AttributeTagger {
	t := &AttributeTagger{}
	t.Build(products)
	return t
}

// Build replaces the automaton with one built from products.
func (t *AttributeTagger) Build(products []Product) {
	t.mu.Lock()
	defer t.mu.Unlock()

	patternToIndex := make(map[string]int)
	var patterns []string
	var owners [][]int
	ids := make([]uuid.UUID, len(products))

	for i, p := range products {
		ids[i] = p.ID
		seen := make(map[int]bool)
		for _, attr := range attributes(p.CatalogEntry) {
			norm := matching.Normalize(attr)
			if norm == "" {
				continue
			}
			// pad with spaces so "m4" does not fire inside "m40"
			pattern := " " + norm + " "
			idx, ok := patternToIndex[pattern]
			if !ok {
				idx = len(patterns)
				patternToIndex[pattern] = idx
				patterns = append(patterns, pattern)
				owners = append(owners, nil)
			}
			if !seen[idx] {
				seen[idx] = true
				owners[idx] = append(owners[idx], i)
			}
		}
	}

	t.patterns = patterns
	t.owners = owners
	t.ids = ids
	t.matcher = nil
	if len(patterns) > 0 {
		t.matcher = ahocorasick.NewStringMatcher(patterns)
	}
}

// Tag returns products with at least one attribute in query, most hits
// first and catalog order among equals.
func (t *AttributeTagger) Tag(query string) []TaggedProduct {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.matcher == nil {
		return nil
	}

	text := " " + matching.Normalize(query) + " "
	matched := t.matcher.Match([]byte(text))
	if len(matched) == 0 {
		return nil
	}

	hits := make(map[int]int)
	for _, idx := range matched {
		if idx < 0 || idx >= len(t.owners) {
			continue
		}
		for _, product := range t.owners[idx] {
			hits[product]++
		}
	}

	order := make([]int, 0, len(hits))
	for product := range hits {
		order = append(order, product)
	}
	sort.Slice(order, func(i, j int) bool {
		if hits[order[i]] != hits[order[j]] {
			return hits[order[i]] > hits[order[j]]
		}
		return order[i] < order[j]
	})

	tagged := make([]TaggedProduct, len(order))
	for i, product := range order {
		tagged[i] = TaggedProduct{ProductID: t.ids[product], Hits: hits[product]}
	}
	return tagged
}

// PatternCount reports the number of distinct attribute values indexed
func (t *AttributeTagger) PatternCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.patterns)
}

func attributes(e matching.CatalogEntry) []string {
	return []string{e.Type, e.Material, e.Size, e.Length, e.Coating, e.ThreadType}
}
