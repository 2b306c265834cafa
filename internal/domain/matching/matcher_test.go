package matching

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastenerCatalog = []CatalogEntry{
	{Type: "Bolt", Material: "Steel", Size: "M4", Length: "10mm", Coating: "Zinc Plated", ThreadType: "Coarse", Description: "Steel Bolt M4 10mm Zinc Plated Coarse"},
	{Type: "Bolt", Material: "Steel", Size: "M4", Length: "10mm", Coating: "Zinc Plated", ThreadType: "Fine", Description: "Steel Bolt M4 10mm Zinc Plated Fine"},
	{Type: "Screw", Material: "Aluminum", Size: "M5", Length: "20mm", Coating: "Uncoated", ThreadType: "Fine", Description: "Aluminum Screw M5 20mm Uncoated Fine"},
}

func TestMatch_TopN(t *testing.T) {
	results := Match([]string{"Steel Bolt M4"}, fastenerCatalog, 2)

	require.Len(t, results, 1)
	candidates := results["Steel Bolt M4"]
	require.Len(t, candidates, 2)

	assert.GreaterOrEqual(t, candidates[0].Score, candidates[1].Score)
	bolts := []string{fastenerCatalog[0].Description, fastenerCatalog[1].Description}
	assert.Contains(t, bolts, candidates[0].Match)
	assert.Contains(t, bolts, candidates[1].Match)
	assert.NotEqual(t, candidates[0].Match, candidates[1].Match)
}

func TestMatch_SkipsEmptyQueries(t *testing.T) {
	results := Match([]string{"", "Steel Bolt"}, fastenerCatalog, DefaultTopN)

	_, hasEmpty := results[""]
	assert.False(t, hasEmpty)
	assert.Contains(t, results, "Steel Bolt")
	assert.Len(t, results, 1)
}

func TestMatch_WhitespaceQueryIsScored(t *testing.T) {
	results := Match([]string{"   "}, fastenerCatalog, DefaultTopN)

	require.Contains(t, results, "   ")
	assert.Len(t, results["   "], len(fastenerCatalog))
}

func TestMatch_Truncation(t *testing.T) {
	catalog := make([]CatalogEntry, 10)
	for i := range catalog {
		catalog[i] = CatalogEntry{Description: fmt.Sprintf("hex bolt m%d", i+3)}
	}

	t.Run("truncates to top n", func(t *testing.T) {
		results := Match([]string{"x"}, catalog, 3)
		assert.Len(t, results["x"], 3)
	})

	t.Run("small catalog returns every entry", func(t *testing.T) {
		results := Match([]string{"x"}, catalog[:2], 3)
		assert.Len(t, results["x"], 2)
	})

	t.Run("non positive top n uses default", func(t *testing.T) {
		assert.Len(t, Match([]string{"x"}, catalog, 0)["x"], DefaultTopN)
		assert.Len(t, Match([]string{"x"}, catalog, -4)["x"], DefaultTopN)
	})
}

func TestMatch_EmptyCatalog(t *testing.T) {
	results := Match([]string{"x"}, nil, 5)

	require.Contains(t, results, "x")
	assert.NotNil(t, results["x"])
	assert.Empty(t, results["x"])
}

func TestMatch_TiesKeepCatalogOrder(t *testing.T) {
	catalog := []CatalogEntry{
		{Description: "washer a"},
		{Description: "Washer-B"},
		{Description: "nut"},
		{Description: "washer c"},
		{Description: "WASHER D"},
	}

	results := Match([]string{"washer"}, catalog, 4)
	got := results["washer"]
	require.Len(t, got, 4)

	// the four washers score identically and must come back in input order
	assert.Equal(t, "washer a", got[0].Match)
	assert.Equal(t, "Washer-B", got[1].Match)
	assert.Equal(t, "washer c", got[2].Match)
	assert.Equal(t, "WASHER D", got[3].Match)
	for _, c := range got {
		assert.Equal(t, got[0].Score, c.Score)
	}
}

func TestMatch_ScoresNonIncreasing(t *testing.T) {
	queries := []string{"steel bolt", "aluminium screw m5", "zinc fine", "unrelated"}
	results := Match(queries, fastenerCatalog, 3)

	for _, q := range queries {
		got := results[q]
		require.Len(t, got, 3)
		for i := 1; i < len(got); i++ {
			assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score, "query %q", q)
		}
	}
}

func TestMatch_ReturnsOriginalDescriptions(t *testing.T) {
	results := Match([]string{"STEEL BOLT"}, fastenerCatalog, 3)
	for _, c := range results["STEEL BOLT"] {
		assert.Contains(t, []string{
			fastenerCatalog[0].Description,
			fastenerCatalog[1].Description,
			fastenerCatalog[2].Description,
		}, c.Match)
	}
}

func TestMatch_ParallelEqualsSequential(t *testing.T) {
	catalog := make([]CatalogEntry, 0, 60)
	for i := 0; i < 60; i++ {
		catalog = append(catalog, CatalogEntry{
			Description: fmt.Sprintf("%s bolt m%d %dmm", []string{"steel", "brass", "nylon"}[i%3], i%12+2, (i%7+1)*5),
		})
	}
	queries := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		queries = append(queries, fmt.Sprintf("bolt m%d %dmm", i%12+2, (i%5+1)*5))
	}

	prepared := NewCatalog(catalog)
	got := Match(queries, catalog, 4)

	for _, q := range queries {
		assert.Equal(t, prepared.Rank(q, 4), got[q], "query %q", q)
	}
}

func TestMatch_DuplicateQueriesCollapse(t *testing.T) {
	results := Match([]string{"steel bolt", "steel bolt"}, fastenerCatalog, 2)
	assert.Len(t, results, 1)
	assert.Len(t, results["steel bolt"], 2)
}

func TestCatalog_MatchAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := NewCatalog(fastenerCatalog).MatchAll(ctx, []string{"steel bolt"}, 2)
	assert.Empty(t, results)
}

func TestCatalog_Entries(t *testing.T) {
	c := NewCatalog(fastenerCatalog)
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, fastenerCatalog, c.Entries())
}
