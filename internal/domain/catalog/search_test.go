package catalog

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/fastener-match/internal/domain/matching"
)

func sampleProducts() []Product {
	return []Product{
		{ID: uuid.New(), Seq: 1, CatalogEntry: matching.CatalogEntry{Type: "Bolt", Material: "Steel", Description: "Steel Bolt M4 10mm Zinc Plated Coarse"}},
		{ID: uuid.New(), Seq: 2, CatalogEntry: matching.CatalogEntry{Type: "Bolt", Material: "Steel", Description: "Steel Bolt M4 10mm Zinc Plated Fine"}},
		{ID: uuid.New(), Seq: 3, CatalogEntry: matching.CatalogEntry{Type: "Screw", Material: "Aluminum", Description: "Aluminum Screw M5 20mm Uncoated Fine"}},
		{ID: uuid.New(), Seq: 4, CatalogEntry: matching.CatalogEntry{Type: "Washer", Material: "Nylon", Description: "Nylon Washer M8"}},
	}
}

func TestSearchIndex(t *testing.T) {
	si, err := NewSearchIndex("")
	require.NoError(t, err)
	defer si.Close()

	products := sampleProducts()
	require.NoError(t, si.Replace(products))

	count, err := si.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), count)

	t.Run("exact term", func(t *testing.T) {
		hits, err := si.Search("washer", 5)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, products[3].ID, hits[0].ProductID)
	})

	t.Run("typo tolerant", func(t *testing.T) {
		hits, err := si.Search("wsher", 5)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, products[3].ID, hits[0].ProductID)
	})

	t.Run("no hits", func(t *testing.T) {
		hits, err := si.Search("rivet", 5)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}

func TestSearchIndex_ReplaceDropsOldDocuments(t *testing.T) {
	si, err := NewSearchIndex("")
	require.NoError(t, err)
	defer si.Close()

	require.NoError(t, si.Replace(sampleProducts()))

	fresh := []Product{{ID: uuid.New(), CatalogEntry: matching.CatalogEntry{Description: "Brass Rivet 4mm"}}}
	require.NoError(t, si.Replace(fresh))

	count, err := si.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	hits, err := si.Search("washer", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchIndex_Persistent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx", "catalog.bleve")

	si, err := NewSearchIndex(path)
	require.NoError(t, err)
	require.NoError(t, si.Replace(sampleProducts()))
	require.NoError(t, si.Close())

	reopened, err := NewSearchIndex(path)
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), count)
}
