package document

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/fastener-match/internal/domain/catalog"
	"github.com/FACorreiaa/fastener-match/internal/domain/extraction"
	"github.com/FACorreiaa/fastener-match/internal/domain/matching"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrLineItemNotFound = errors.New("line item not found")
	ErrMatchNotFound    = errors.New("match not found for line item and product")
	ErrInvalidFileType  = errors.New("only PDF files are accepted")
	ErrNoContent        = errors.New("no line items could be extracted from the document")
)

// Document is an uploaded PDF and everything derived from it.
type Document struct {
	ID         uuid.UUID  `json:"id"`
	Filename   string     `json:"filename"`
	UploadDate time.Time  `json:"upload_date"`
	Items      []LineItem `json:"items"`
}

// LineItem is one extracted row of a document.
type LineItem struct {
	ID          uuid.UUID      `json:"id"`
	DocumentID  uuid.UUID      `json:"document_id"`
	Position    int            `json:"position"`
	Description string         `json:"description"`
	Quantity    int            `json:"quantity"`
	Matches     []ProductMatch `json:"matches"`
}

// ProductMatch links a line item to a catalog product. At most one match per
// line item is selected.
type ProductMatch struct {
	ID         uuid.UUID       `json:"id"`
	LineItemID uuid.UUID       `json:"line_item_id"`
	ProductID  uuid.UUID       `json:"product_id"`
	Score      float64         `json:"score"`
	IsSelected bool            `json:"is_selected"`
	Rank       int             `json:"rank"`
	Product    catalog.Product `json:"product"`
}

// ItemMatches are the ranked candidates to persist for one line item.
type ItemMatches struct {
	LineItemID  uuid.UUID
	Description string
	Candidates  []CandidateProduct
}

// CandidateProduct is a ranked catalog entry. Entry carries whatever
// attributes are known so that a product created on the fly is not bare.
type CandidateProduct struct {
	Entry matching.CatalogEntry
	Score float64
}

type MatchedProduct struct {
	ProductID   uuid.UUID `json:"product_id"`
	Description string    `json:"description"`
	Score       float64   `json:"score"`
}

type MatchedItem struct {
	LineItemID  uuid.UUID        `json:"line_item_id"`
	Description string           `json:"description"`
	Matches     []MatchedProduct `json:"matches"`
}

// ExtractResult is returned by Extract. Error is set, and nothing persisted,
// when the extractor itself failed.
type ExtractResult struct {
	DocumentID uuid.UUID         `json:"document_id"`
	Filename   string            `json:"filename"`
	Table      *extraction.Table `json:"table,omitempty"`
	Items      []LineItem        `json:"items"`
	Error      string            `json:"error,omitempty"`
}

type MatchResult struct {
	DocumentID uuid.UUID     `json:"document_id"`
	Filename   string        `json:"filename"`
	Items      []MatchedItem `json:"items"`
	Warning    string        `json:"warning,omitempty"`
}

// WarnCatalogUnavailable is reported when matching ran without a catalog and
// nothing was stored.
const WarnCatalogUnavailable = "catalog unavailable, existing matches kept"

type ProcessResult struct {
	DocumentID uuid.UUID      `json:"document_id"`
	Filename   string         `json:"filename"`
	Extraction *ExtractResult `json:"extraction"`
	Matching   *MatchResult   `json:"matching,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// ExportMapping is a row-to-product assignment made in the UI.
type ExportMapping struct {
	RowIndex           int    `json:"rowIndex"`
	OriginalContent    string `json:"originalContent"`
	ProductID          string `json:"productId"`
	ProductDescription string `json:"productDescription"`
}

// ExportRequest is the table to write plus optional mappings. The JSON form
// is a table object with an extra "mappings" array.
type ExportRequest struct {
	Table    extraction.Table
	Mappings []ExportMapping
}

func (r *ExportRequest) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &r.Table); err != nil {
		return err
	}
	var extra struct {
		Mappings []ExportMapping `json:"mappings"`
	}
	if err := json.Unmarshal(data, &extra); err != nil {
		return err
	}
	r.Mappings = extra.Mappings
	return nil
}
