package catalog

import (
	"errors"

	"github.com/google/uuid"

	"github.com/FACorreiaa/fastener-match/internal/domain/matching"
)

var (
	ErrCatalogFileNotFound      = errors.New("catalog file not found")
	ErrMissingDescriptionColumn = errors.New("catalog has no description column")
	ErrEmptyCatalogFile         = errors.New("catalog file has no header row")
	ErrUnsupportedFormat        = errors.New("unsupported catalog file format")
)

// Product is a catalog entry persisted in product_catalog. Seq records
// insertion order and is what keeps database-backed catalogs in a stable
// order across reloads.
type Product struct {
	ID  uuid.UUID `json:"id"`
	Seq int64     `json:"-"`
	matching.CatalogEntry
}

// ImportResult reports a catalog import.
type ImportResult struct {
	Success  bool `json:"success"`
	Imported int  `json:"imported"`
	Rows     int  `json:"rows"`
}
