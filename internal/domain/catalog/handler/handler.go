package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/FACorreiaa/fastener-match/internal/domain/catalog"
	"github.com/FACorreiaa/fastener-match/pkg/httpx"
)

// CatalogService is the part of catalog.Service used over HTTP.
type CatalogService interface {
	ImportFromFile(ctx context.Context, path string) (*catalog.ImportResult, error)
	SearchProducts(ctx context.Context, query string, limit int) ([]catalog.Product, error)
	Suggest(prefix string, limit int) []catalog.Product
}

// SearchRequest is the body of POST /products/search
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// CatalogHandler serves catalog import and product lookups
type CatalogHandler struct {
	svc    CatalogService
	logger *slog.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(svc CatalogService, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{svc: svc, logger: logger}
}

// Import loads the configured catalog file into the database
func (h *CatalogHandler) Import(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ImportFromFile(r.Context(), "")
	if err != nil {
		if errors.Is(err, catalog.ErrCatalogFileNotFound) {
			httpx.WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("failed to import catalog", slog.Any("error", err))
		httpx.WriteError(w, http.StatusInternalServerError, "Error importing catalog: "+err.Error())
		return
	}

	httpx.WriteJSON(w, http.StatusOK, result)
}

// Search returns the products most similar to the query
func (h *CatalogHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	products, err := h.svc.SearchProducts(r.Context(), req.Query, req.Limit)
	if err != nil {
		h.logger.Error("failed to search products", slog.Any("error", err), slog.String("query", req.Query))
		httpx.WriteError(w, http.StatusInternalServerError, "Error searching products")
		return
	}
	if products == nil {
		products = []catalog.Product{}
	}

	httpx.WriteJSON(w, http.StatusOK, products)
}

// Suggest answers GET /products/suggest?q=...&limit=...
func (h *CatalogHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	httpx.WriteJSON(w, http.StatusOK, h.svc.Suggest(q, limit))
}
