package matching

import (
	"context"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// DefaultTopN is the number of candidates kept per query when the caller
// does not ask for a specific amount.
const DefaultTopN = 5

// CatalogEntry is one product row. Only Description takes part in scoring;
// the attribute columns are carried for callers that display or index them.
type CatalogEntry struct {
	Description string `json:"description"`
	Type        string `json:"type,omitempty"`
	Material    string `json:"material,omitempty"`
	Size        string `json:"size,omitempty"`
	Length      string `json:"length,omitempty"`
	Coating     string `json:"coating,omitempty"`
	ThreadType  string `json:"thread_type,omitempty"`
}

// Candidate is a scored catalog description for a query.
type Candidate struct {
	Match string  `json:"match"`
	Score float64 `json:"score"`
}

// Results maps each non-empty query, verbatim, to its ranked candidates.
type Results map[string][]Candidate

// Catalog is a catalog with every description normalized and indexed once.
// It is immutable and may be shared by concurrent callers.
type Catalog struct {
	entries  []CatalogEntry
	prepared []*sequence
}

// NewCatalog prepares entries for repeated scoring. Entry order is kept and
// decides the order of equally scored candidates.
func NewCatalog(entries []CatalogEntry) *Catalog {
	c := &Catalog{
		entries:  entries,
		prepared: make([]*sequence, len(entries)),
	}
	for i, e := range entries {
		c.prepared[i] = newSequence(Normalize(e.Description))
	}
	return c
}

// Len reports the number of entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Entries returns the underlying entries in load order.
func (c *Catalog) Entries() []CatalogEntry {
	return c.entries
}

// Rank scores query against every entry and returns the best topN,
// highest first. Ties keep catalog order.
func (c *Catalog) Rank(query string, topN int) []Candidate {
	if topN <= 0 {
		topN = DefaultTopN
	}

	q := []rune(Normalize(query))
	candidates := make([]Candidate, len(c.entries))
	for i, e := range c.entries {
		candidates[i] = Candidate{
			Match: e.Description,
			Score: ratio(q, c.prepared[i]),
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if len(candidates) > topN {
		candidates = candidates[:topN]
	}
	return candidates
}

// Match ranks every non-empty query against catalog and keeps the topN best
// candidates for each. A topN of zero or less falls back to DefaultTopN.
// Duplicate queries collapse into a single key.
func Match(queries []string, catalog []CatalogEntry, topN int) Results {
	return NewCatalog(catalog).MatchAll(context.Background(), queries, topN)
}

// MatchAll is Match over a prepared catalog. Queries are scored in parallel;
// the output does not depend on scheduling. If ctx is cancelled the
// queries already ranked are returned.
func (c *Catalog) MatchAll(ctx context.Context, queries []string, topN int) Results {
	ranked := make([][]Candidate, len(queries))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, q := range queries {
		if q == "" {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ranked[i] = c.Rank(q, topN)
			return nil
		})
	}
	_ = g.Wait()

	results := make(Results, len(queries))
	for i, q := range queries {
		if q == "" || ranked[i] == nil {
			continue
		}
		results[q] = ranked[i]
	}
	return results
}
