package document

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/fastener-match/internal/domain/extraction"
	"github.com/FACorreiaa/fastener-match/internal/domain/matching"
	"github.com/FACorreiaa/fastener-match/pkg/storage"
)

// MockRepository keeps documents in memory
type MockRepository struct {
	docs      map[uuid.UUID]*Document
	items     map[uuid.UUID][]LineItem
	saved     []ItemMatches
	selected  [2]uuid.UUID
	createErr error
	selectErr error
	deleted   []uuid.UUID
}

func newMockRepository() *MockRepository {
	return &MockRepository{
		docs:  make(map[uuid.UUID]*Document),
		items: make(map[uuid.UUID][]LineItem),
	}
}

func (m *MockRepository) CreateDocument(ctx context.Context, doc *Document) error {
	if m.createErr != nil {
		return m.createErr
	}
	d := *doc
	m.docs[doc.ID] = &d
	return nil
}

func (m *MockRepository) FindDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	d, ok := m.docs[id]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	out := *d
	out.Items = []LineItem{}
	return &out, nil
}

func (m *MockRepository) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	d, err := m.FindDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if items, ok := m.items[id]; ok {
		d.Items = items
	}
	return d, nil
}

func (m *MockRepository) ListDocuments(ctx context.Context) ([]Document, error) {
	docs := []Document{}
	for id := range m.docs {
		d, _ := m.GetDocument(ctx, id)
		docs = append(docs, *d)
	}
	return docs, nil
}

func (m *MockRepository) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.docs[id]; !ok {
		return ErrDocumentNotFound
	}
	delete(m.docs, id)
	delete(m.items, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *MockRepository) ListLineItems(ctx context.Context, documentID uuid.UUID) ([]LineItem, error) {
	return m.items[documentID], nil
}

func (m *MockRepository) ReplaceLineItems(ctx context.Context, documentID uuid.UUID, items []extraction.Item) ([]LineItem, error) {
	saved := make([]LineItem, len(items))
	for i, it := range items {
		saved[i] = LineItem{
			ID:          uuid.New(),
			DocumentID:  documentID,
			Position:    i,
			Description: it.Description,
			Quantity:    it.Quantity,
			Matches:     []ProductMatch{},
		}
	}
	m.items[documentID] = saved
	return saved, nil
}

func (m *MockRepository) SaveMatches(ctx context.Context, items []ItemMatches) ([]MatchedItem, error) {
	m.saved = append(m.saved, items...)
	out := make([]MatchedItem, len(items))
	for i, it := range items {
		out[i] = MatchedItem{LineItemID: it.LineItemID, Description: it.Description, Matches: []MatchedProduct{}}
		for _, c := range it.Candidates {
			out[i].Matches = append(out[i].Matches, MatchedProduct{ProductID: uuid.New(), Description: c.Entry.Description, Score: c.Score})
		}
	}
	return out, nil
}

func (m *MockRepository) SelectMatch(ctx context.Context, lineItemID, productID uuid.UUID) error {
	if m.selectErr != nil {
		return m.selectErr
	}
	m.selected = [2]uuid.UUID{lineItemID, productID}
	return nil
}

// MockExtractor returns a fixed result or error
type MockExtractor struct {
	result   *extraction.Result
	err      error
	received []byte
}

func (m *MockExtractor) Extract(ctx context.Context, filename string, pdf []byte) (*extraction.Result, error) {
	m.received = pdf
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

// fixedMatcher returns the same results for every call
type fixedMatcher matching.Results

func (m fixedMatcher) MatchDescriptions(ctx context.Context, descriptions []string) matching.Results {
	return matching.Results(m)
}

// MockMatcher ranks against a fixed catalog
type MockMatcher struct {
	catalog []matching.CatalogEntry
	queries []string
}

func (m *MockMatcher) MatchDescriptions(ctx context.Context, descriptions []string) matching.Results {
	m.queries = descriptions
	return matching.Match(descriptions, m.catalog, 2)
}

type mapLookup map[string]matching.CatalogEntry

func (l mapLookup) Lookup(description string) (matching.CatalogEntry, bool) {
	e, ok := l[description]
	return e, ok
}

// failingStorage fails every write
type failingStorage struct{ storage.Storage }

func (failingStorage) Save(ctx context.Context, id uuid.UUID, filename, contentType string, r io.Reader) (*storage.FileInfo, error) {
	return nil, errors.New("disk full")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var boltCatalog = []matching.CatalogEntry{
	{Type: "Bolt", Material: "Steel", Size: "M4", Description: "Steel Bolt M4 10mm Zinc Plated Coarse"},
	{Type: "Bolt", Material: "Steel", Size: "M4", Description: "Steel Bolt M4 10mm Zinc Plated Fine"},
	{Type: "Screw", Material: "Aluminum", Size: "M5", Description: "Aluminum Screw M5 20mm Uncoated Fine"},
}

type fixture struct {
	svc       *Service
	repo      *MockRepository
	store     *storage.LocalStorage
	extractor *MockExtractor
	matcher   *MockMatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		repo:  newMockRepository(),
		store: store,
		extractor: &MockExtractor{result: &extraction.Result{
			Table: extraction.Table{Title: "PO", Columns: []string{"Description"}, Rows: [][]string{{"Steel Bolt M4"}, {"Aluminum Screw"}}},
			Items: []extraction.Item{{Description: "Steel Bolt M4", Quantity: 1}, {Description: "Aluminum Screw", Quantity: 1}},
		}},
		matcher: &MockMatcher{catalog: boltCatalog},
	}
	f.svc = NewService(f.repo, f.store, f.extractor, f.matcher, testLogger())
	return f
}

func (f *fixture) upload(t *testing.T) *Document {
	t.Helper()
	doc, err := f.svc.Upload(context.Background(), "order.pdf", strings.NewReader("%PDF-1.7"))
	require.NoError(t, err)
	return doc
}

func TestService_Upload(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t)

	assert.Equal(t, "order.pdf", doc.Filename)
	assert.Contains(t, f.repo.docs, doc.ID)

	info, err := f.store.Stat(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", info.ContentType)
}

func TestService_Upload_RejectsNonPDF(t *testing.T) {
	f := newFixture(t)

	for _, name := range []string{"order.txt", "order", "order.pdf.exe"} {
		_, err := f.svc.Upload(context.Background(), name, strings.NewReader("x"))
		assert.ErrorIs(t, err, ErrInvalidFileType, name)
	}

	_, err := f.svc.Upload(context.Background(), "ORDER.PDF", strings.NewReader("x"))
	assert.NoError(t, err)
}

func TestService_Upload_StorageFailureRemovesDocument(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, failingStorage{}, &MockExtractor{}, &MockMatcher{}, testLogger())

	_, err := svc.Upload(context.Background(), "order.pdf", strings.NewReader("x"))
	require.Error(t, err)
	assert.Empty(t, repo.docs)
	assert.Len(t, repo.deleted, 1)
}

func TestService_Extract(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t)

	res, err := f.svc.Extract(context.Background(), doc.ID)
	require.NoError(t, err)

	assert.Empty(t, res.Error)
	require.NotNil(t, res.Table)
	assert.Equal(t, "PO", res.Table.Title)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "Steel Bolt M4", res.Items[0].Description)
	assert.Equal(t, []byte("%PDF-1.7"), f.extractor.received)
	assert.Len(t, f.repo.items[doc.ID], 2)
}

func TestService_Extract_ExtractorError(t *testing.T) {
	f := newFixture(t)
	f.extractor.err = extraction.ErrExtractorNotConfigured
	doc := f.upload(t)

	res, err := f.svc.Extract(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, extraction.ErrExtractorNotConfigured.Error(), res.Error)
	assert.Empty(t, res.Items)
	assert.Nil(t, res.Table)
	assert.Empty(t, f.repo.items[doc.ID])
}

func TestService_Extract_NoContent(t *testing.T) {
	f := newFixture(t)
	f.extractor.result = &extraction.Result{Items: []extraction.Item{}}
	doc := f.upload(t)

	_, err := f.svc.Extract(context.Background(), doc.ID)
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestService_Extract_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Extract(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	assert.True(t, IsNotFound(err))
}

func TestService_Extract_MissingFile(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t)
	require.NoError(t, f.store.Delete(context.Background(), doc.ID))

	_, err := f.svc.Extract(context.Background(), doc.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.True(t, IsNotFound(err))
}

func TestService_Match(t *testing.T) {
	f := newFixture(t)
	f.svc.WithCatalogLookup(mapLookup{boltCatalog[0].Description: boltCatalog[0]})
	doc := f.upload(t)
	_, err := f.svc.Extract(context.Background(), doc.ID)
	require.NoError(t, err)

	res, err := f.svc.Match(context.Background(), doc.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{"Steel Bolt M4", "Aluminum Screw"}, f.matcher.queries)
	require.Len(t, res.Items, 2)
	require.Len(t, res.Items[0].Matches, 2)
	// the shorter bolt description scores higher
	assert.Equal(t, boltCatalog[1].Description, res.Items[0].Matches[0].Description)
	assert.Equal(t, boltCatalog[0].Description, res.Items[0].Matches[1].Description)
	assert.GreaterOrEqual(t, res.Items[0].Matches[0].Score, res.Items[0].Matches[1].Score)
	assert.Equal(t, boltCatalog[2].Description, res.Items[1].Matches[0].Description)

	// attributes come from the lookup when it knows the description
	require.Len(t, f.repo.saved, 2)
	assert.Equal(t, matching.CatalogEntry{Description: boltCatalog[1].Description}, f.repo.saved[0].Candidates[0].Entry)
	assert.Equal(t, boltCatalog[0], f.repo.saved[0].Candidates[1].Entry)
}

func TestService_Match_NoItems(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t)

	res, err := f.svc.Match(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.NotNil(t, res.Items)
	assert.Empty(t, res.Items)
	assert.Nil(t, f.matcher.queries)
}

func TestService_Match_EmptyCatalog(t *testing.T) {
	f := newFixture(t)
	f.matcher.catalog = nil
	doc := f.upload(t)
	_, err := f.svc.Extract(context.Background(), doc.ID)
	require.NoError(t, err)

	res, err := f.svc.Match(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Empty(t, res.Items[0].Matches)
}

func TestService_Match_CatalogUnavailableKeepsMatches(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t)
	_, err := f.svc.Extract(context.Background(), doc.ID)
	require.NoError(t, err)

	svc := NewService(f.repo, f.store, f.extractor, fixedMatcher{}, testLogger())
	res, err := svc.Match(context.Background(), doc.ID)
	require.NoError(t, err)

	assert.Equal(t, WarnCatalogUnavailable, res.Warning)
	assert.Empty(t, res.Items)
	assert.Empty(t, f.repo.saved)
}

func TestService_Match_OnlyRankedItemsReplaced(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t)
	_, err := f.svc.Extract(context.Background(), doc.ID)
	require.NoError(t, err)

	svc := NewService(f.repo, f.store, f.extractor, fixedMatcher{
		"Steel Bolt M4": {{Match: boltCatalog[0].Description, Score: 70}},
	}, testLogger())
	res, err := svc.Match(context.Background(), doc.ID)
	require.NoError(t, err)

	assert.Empty(t, res.Warning)
	require.Len(t, f.repo.saved, 1)
	assert.Equal(t, "Steel Bolt M4", f.repo.saved[0].Description)
	require.Len(t, res.Items, 1)
}

func TestService_Process(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t)

	res, err := f.svc.Process(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Empty(t, res.Error)
	require.NotNil(t, res.Extraction)
	require.NotNil(t, res.Matching)
	assert.Len(t, res.Matching.Items, 2)
}

func TestService_Process_StopsOnExtractionError(t *testing.T) {
	f := newFixture(t)
	f.extractor.err = errors.New("model overloaded")
	doc := f.upload(t)

	res, err := f.svc.Process(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "model overloaded", res.Error)
	assert.Nil(t, res.Matching)
	assert.Nil(t, f.matcher.queries)
}

func TestService_SelectMatch(t *testing.T) {
	f := newFixture(t)
	item, product := uuid.New(), uuid.New()

	require.NoError(t, f.svc.SelectMatch(context.Background(), item, product))
	assert.Equal(t, [2]uuid.UUID{item, product}, f.repo.selected)

	f.repo.selectErr = ErrMatchNotFound
	assert.ErrorIs(t, f.svc.SelectMatch(context.Background(), item, product), ErrMatchNotFound)
}

func TestService_Delete(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t)

	require.NoError(t, f.svc.Delete(context.Background(), doc.ID))
	assert.NotContains(t, f.repo.docs, doc.ID)

	_, err := f.store.Stat(context.Background(), doc.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, f.svc.Delete(context.Background(), doc.ID), ErrDocumentNotFound)
}

func TestService_OpenPDF(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t)

	rc, info, err := f.svc.OpenPDF(context.Background(), doc.ID)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))
	assert.Equal(t, "order.pdf", info.Name)
}

func TestService_ExportExcel(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t)

	fixed := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	restore := now
	now = func() time.Time { return fixed }
	defer func() { now = restore }()

	req := ExportRequest{
		Table: extraction.Table{
			Columns: []string{"Qty", "Description"},
			Rows:    [][]string{{"10", "Hex Bolt M8"}, {"5", "Washer M8"}},
		},
		Mappings: []ExportMapping{{RowIndex: 0, OriginalContent: "Hex Bolt M8", ProductID: "p-1", ProductDescription: "Steel Hex Bolt M8"}},
	}

	data, name, err := f.svc.ExportExcel(context.Background(), doc.ID, req)
	require.NoError(t, err)
	assert.Equal(t, "document_"+doc.ID.String()+"_export.xlsx", name)

	wb, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer wb.Close()

	assert.Equal(t, []string{"Document Data", "Product Mappings", "Document Info"}, wb.GetSheetList())

	rows, err := wb.GetRows("Document Data")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Qty", "Description"}, {"10", "Hex Bolt M8"}, {"5", "Washer M8"}}, rows)

	mappings, err := wb.GetRows("Product Mappings")
	require.NoError(t, err)
	require.Len(t, mappings, 2)
	assert.Equal(t, []string{"Row", "Original Content", "Mapped Product ID", "Mapped Product Description"}, mappings[0])
	assert.Equal(t, []string{"1", "Hex Bolt M8", "p-1", "Steel Hex Bolt M8"}, mappings[1])

	info, err := wb.GetRows("Document Info")
	require.NoError(t, err)
	require.Len(t, info, 4)
	assert.Equal(t, []string{"Filename:", "order.pdf"}, info[1])
	assert.Equal(t, []string{"Export Date:", "2026-04-02 10:00:00"}, info[3])
}

func TestService_ExportExcel_WithoutMappings(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t)

	data, _, err := f.svc.ExportExcel(context.Background(), doc.ID, ExportRequest{})
	require.NoError(t, err)

	wb, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer wb.Close()

	assert.Equal(t, []string{"Document Data", "Document Info"}, wb.GetSheetList())
	rows, err := wb.GetRows("Document Data")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Content"}}, rows)
}

func TestService_ExportExcel_NotFound(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.ExportExcel(context.Background(), uuid.New(), ExportRequest{})
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestExportRequest_UnmarshalJSON(t *testing.T) {
	var req ExportRequest
	err := req.UnmarshalJSON([]byte(`{
		"columns": ["Description", "Qty"],
		"rows": [{"Description": "Nut M6", "Qty": 4}],
		"mappings": [{"rowIndex": 0, "originalContent": "Nut M6", "productId": "abc", "productDescription": "Hex Nut M6"}]
	}`))
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"Nut M6", "4"}}, req.Table.Rows)
	require.Len(t, req.Mappings, 1)
	assert.Equal(t, "Hex Nut M6", req.Mappings[0].ProductDescription)
}
