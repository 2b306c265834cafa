package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/fastener-match/internal/domain/document"
	"github.com/FACorreiaa/fastener-match/pkg/httpx"
	"github.com/FACorreiaa/fastener-match/pkg/storage"
)

// MaxUploadSize bounds multipart uploads
const MaxUploadSize = 32 << 20

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// DocumentService is the part of document.Service used over HTTP.
type DocumentService interface {
	Upload(ctx context.Context, filename string, r io.Reader) (*document.Document, error)
	Extract(ctx context.Context, id uuid.UUID) (*document.ExtractResult, error)
	Match(ctx context.Context, id uuid.UUID) (*document.MatchResult, error)
	Process(ctx context.Context, id uuid.UUID) (*document.ProcessResult, error)
	Get(ctx context.Context, id uuid.UUID) (*document.Document, error)
	List(ctx context.Context) ([]document.Document, error)
	SelectMatch(ctx context.Context, lineItemID, productID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	OpenPDF(ctx context.Context, id uuid.UUID) (io.ReadCloser, *storage.FileInfo, error)
	ExportExcel(ctx context.Context, id uuid.UUID, req document.ExportRequest) ([]byte, string, error)
}

type UploadResponse struct {
	DocumentID uuid.UUID           `json:"document_id"`
	Filename   string              `json:"filename"`
	Items      []document.LineItem `json:"items"`
}

// UpdateMatchRequest is the body of POST /matches/update
type UpdateMatchRequest struct {
	LineItemID        uuid.UUID `json:"line_item_id"`
	SelectedProductID uuid.UUID `json:"selected_product_id"`
}

type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// DocumentHandler serves the document endpoints
type DocumentHandler struct {
	svc    DocumentService
	logger *slog.Logger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(svc DocumentService, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{svc: svc, logger: logger}
}

// Upload accepts a multipart form with a "file" field
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "A PDF file is required in the \"file\" field")
		return
	}
	defer file.Close()

	doc, err := h.svc.Upload(r.Context(), header.Filename, file)
	if err != nil {
		h.fail(w, "failed to upload document", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, UploadResponse{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Items:      []document.LineItem{},
	})
}

func (h *DocumentHandler) Extract(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}

	result, err := h.svc.Extract(r.Context(), id)
	if err != nil {
		h.fail(w, "failed to extract document", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

func (h *DocumentHandler) Match(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}

	result, err := h.svc.Match(r.Context(), id)
	if err != nil {
		h.fail(w, "failed to match document", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

func (h *DocumentHandler) Process(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}

	result, err := h.svc.Process(r.Context(), id)
	if err != nil {
		h.fail(w, "failed to process document", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}

	doc, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "failed to get document", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.List(r.Context())
	if err != nil {
		h.fail(w, "failed to list documents", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, docs)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.fail(w, "failed to delete document", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, SuccessResponse{
		Success: true,
		Message: fmt.Sprintf("Document %s deleted successfully", id),
	})
}

// PDF streams the stored file inline
func (h *DocumentHandler) PDF(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}

	rc, info, err := h.svc.OpenPDF(r.Context(), id)
	if err != nil {
		h.fail(w, "failed to open document", err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", info.Name))
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("failed to stream document", slog.String("document_id", id.String()), slog.Any("error", err))
	}
}

// ExportExcel renders the posted table as an xlsx download
func (h *DocumentHandler) ExportExcel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}

	var req document.ExportRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, name, err := h.svc.ExportExcel(r.Context(), id, req)
	if err != nil {
		h.fail(w, "failed to export document", err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// UpdateMatch selects one of a line item's matches
func (h *DocumentHandler) UpdateMatch(w http.ResponseWriter, r *http.Request) {
	var req UpdateMatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.LineItemID == uuid.Nil || req.SelectedProductID == uuid.Nil {
		httpx.WriteError(w, http.StatusBadRequest, "line_item_id and selected_product_id are required")
		return
	}

	if err := h.svc.SelectMatch(r.Context(), req.LineItemID, req.SelectedProductID); err != nil {
		h.fail(w, "failed to update match", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

func (h *DocumentHandler) documentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid document ID")
		return uuid.Nil, false
	}
	return id, true
}

// fail maps service errors to status codes. Only unexpected errors are
// logged at error level.
func (h *DocumentHandler) fail(w http.ResponseWriter, msg string, err error) {
	switch {
	case document.IsNotFound(err):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, document.ErrInvalidFileType):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, document.ErrNoContent):
		httpx.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error(msg, slog.Any("error", err))
		httpx.WriteError(w, http.StatusInternalServerError, "An error occurred: "+err.Error())
	}
}
