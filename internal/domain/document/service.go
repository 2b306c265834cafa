// Package document handles uploaded purchase documents: storing the PDF,
// extracting its line items and matching them against the catalog.
package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/FACorreiaa/fastener-match/internal/domain/extraction"
	"github.com/FACorreiaa/fastener-match/internal/domain/matching"
	"github.com/FACorreiaa/fastener-match/pkg/storage"
)

var tracer = otel.Tracer("github.com/FACorreiaa/fastener-match/internal/domain/document")

const pdfContentType = "application/pdf"

// now is replaced in tests
var now = func() time.Time { return time.Now().UTC() }

// Extractor reads line items out of a PDF.
type Extractor interface {
	Extract(ctx context.Context, filename string, pdf []byte) (*extraction.Result, error)
}

// Matcher ranks descriptions against the catalog.
type Matcher interface {
	MatchDescriptions(ctx context.Context, descriptions []string) matching.Results
}

// CatalogLookup resolves a catalog description to its full entry.
type CatalogLookup interface {
	Lookup(description string) (matching.CatalogEntry, bool)
}

// Service coordinates storage, extraction, matching and persistence.
type Service struct {
	repo      Repository
	store     storage.Storage
	extractor Extractor
	matcher   Matcher
	lookup    CatalogLookup
	logger    *slog.Logger
}

// NewService creates a new document service
func NewService(repo Repository, store storage.Storage, extractor Extractor, matcher Matcher, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		store:     store,
		extractor: extractor,
		matcher:   matcher,
		logger:    logger,
	}
}

// WithCatalogLookup sets where product attributes come from when a match
// creates a catalog product.
func (s *Service) WithCatalogLookup(l CatalogLookup) *Service {
	s.lookup = l
	return s
}

// Upload stores a PDF and records it. Nothing is extracted yet.
func (s *Service) Upload(ctx context.Context, filename string, r io.Reader) (*Document, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return nil, ErrInvalidFileType
	}

	doc := &Document{
		ID:         uuid.New(),
		Filename:   filename,
		UploadDate: now(),
		Items:      []LineItem{},
	}

	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}

	if _, err := s.store.Save(ctx, doc.ID, filename, pdfContentType, r); err != nil {
		if delErr := s.repo.DeleteDocument(ctx, doc.ID); delErr != nil {
			s.logger.Error("failed to remove document after storage failure",
				slog.String("document_id", doc.ID.String()),
				slog.Any("error", delErr),
			)
		}
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	s.logger.Info("document uploaded",
		slog.String("document_id", doc.ID.String()),
		slog.String("filename", filename),
	)
	return doc, nil
}

// Extract runs the extractor over the stored PDF and replaces the
// document's line items with what it found.
func (s *Service) Extract(ctx context.Context, id uuid.UUID) (*ExtractResult, error) {
	ctx, span := tracer.Start(ctx, "document.Extract")
	defer span.End()
	span.SetAttributes(attribute.String("document.id", id.String()))

	doc, err := s.repo.FindDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	pdf, err := s.readPDF(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &ExtractResult{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Items:      []LineItem{},
	}

	extracted, err := s.extractor.Extract(ctx, doc.Filename, pdf)
	if err != nil {
		s.logger.Warn("extraction failed",
			slog.String("document_id", id.String()),
			slog.Any("error", err),
		)
		result.Error = err.Error()
		return result, nil
	}

	if len(extracted.Items) == 0 {
		return nil, ErrNoContent
	}

	items, err := s.repo.ReplaceLineItems(ctx, id, extracted.Items)
	if err != nil {
		return nil, err
	}

	result.Table = &extracted.Table
	result.Items = items
	span.SetAttributes(attribute.Int("items", len(items)))

	s.logger.Info("line items extracted",
		slog.String("document_id", id.String()),
		slog.Int("items", len(items)),
	)
	return result, nil
}

// Match ranks every line item of the document against the catalog and
// stores the candidates, unselected.
func (s *Service) Match(ctx context.Context, id uuid.UUID) (*MatchResult, error) {
	ctx, span := tracer.Start(ctx, "document.Match")
	defer span.End()
	span.SetAttributes(attribute.String("document.id", id.String()))

	doc, err := s.repo.FindDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &MatchResult{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Items:      []MatchedItem{},
	}

	items, err := s.repo.ListLineItems(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		s.logger.Warn("no line items to match", slog.String("document_id", id.String()))
		return result, nil
	}

	descriptions := make([]string, len(items))
	queried := false
	for i, it := range items {
		descriptions[i] = it.Description
		queried = queried || it.Description != ""
	}
	ranked := s.matcher.MatchDescriptions(ctx, descriptions)
	if len(ranked) == 0 && queried {
		// catalog unavailable: stored matches stay as they are
		s.logger.Warn("catalog unavailable, keeping existing matches", slog.String("document_id", id.String()))
		result.Warning = WarnCatalogUnavailable
		return result, nil
	}

	toSave := make([]ItemMatches, 0, len(items))
	for _, it := range items {
		candidates, ok := ranked[it.Description]
		if !ok {
			continue
		}
		im := ItemMatches{
			LineItemID:  it.ID,
			Description: it.Description,
			Candidates:  make([]CandidateProduct, len(candidates)),
		}
		for j, c := range candidates {
			im.Candidates[j] = CandidateProduct{Entry: s.entryFor(c.Match), Score: c.Score}
		}
		toSave = append(toSave, im)
	}

	matched, err := s.repo.SaveMatches(ctx, toSave)
	if err != nil {
		return nil, err
	}
	result.Items = matched

	s.logger.Info("line items matched",
		slog.String("document_id", id.String()),
		slog.Int("items", len(items)),
		slog.Int("catalog_hits", len(ranked)),
	)
	return result, nil
}

// Process extracts and then matches. An extraction error ends the run with
// the error reported in the result.
func (s *Service) Process(ctx context.Context, id uuid.UUID) (*ProcessResult, error) {
	extracted, err := s.Extract(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &ProcessResult{
		DocumentID: extracted.DocumentID,
		Filename:   extracted.Filename,
		Extraction: extracted,
	}
	if extracted.Error != "" {
		result.Error = extracted.Error
		return result, nil
	}

	matched, err := s.Match(ctx, id)
	if err != nil {
		return nil, err
	}
	result.Matching = matched
	return result, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Document, error) {
	return s.repo.GetDocument(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Document, error) {
	return s.repo.ListDocuments(ctx)
}

// SelectMatch makes productID the chosen match of a line item.
func (s *Service) SelectMatch(ctx context.Context, lineItemID, productID uuid.UUID) error {
	if err := s.repo.SelectMatch(ctx, lineItemID, productID); err != nil {
		return err
	}
	s.logger.Info("match selected",
		slog.String("line_item_id", lineItemID.String()),
		slog.String("product_id", productID.String()),
	)
	return nil
}

// Delete removes the document and then its stored PDF. A PDF that cannot be
// removed is logged, the document is gone either way.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteDocument(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		s.logger.Warn("failed to delete stored document",
			slog.String("document_id", id.String()),
			slog.Any("error", err),
		)
	}
	s.logger.Info("document deleted", slog.String("document_id", id.String()))
	return nil
}

// OpenPDF returns the stored PDF. The caller closes it.
func (s *Service) OpenPDF(ctx context.Context, id uuid.UUID) (io.ReadCloser, *storage.FileInfo, error) {
	return s.store.Open(ctx, id)
}

func (s *Service) readPDF(ctx context.Context, id uuid.UUID) ([]byte, error) {
	rc, _, err := s.store.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read stored document: %w", err)
	}
	return data, nil
}

func (s *Service) entryFor(description string) matching.CatalogEntry {
	if s.lookup != nil {
		if e, ok := s.lookup.Lookup(description); ok {
			return e
		}
	}
	return matching.CatalogEntry{Description: description}
}

// IsNotFound reports whether err means the requested resource does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDocumentNotFound) ||
		errors.Is(err, ErrLineItemNotFound) ||
		errors.Is(err, ErrMatchNotFound) ||
		errors.Is(err, storage.ErrNotFound)
}
