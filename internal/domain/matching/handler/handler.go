package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/FACorreiaa/fastener-match/internal/domain/matching"
	"github.com/FACorreiaa/fastener-match/pkg/httpx"
)

// Matcher is the part of matching.Service the handler needs.
type Matcher interface {
	MatchDescriptions(ctx context.Context, descriptions []string) matching.Results
}

// MatchRequest is the body of POST /custom-match.
type MatchRequest struct {
	Queries []string `json:"queries"`
}

// MatchResponse wraps the ranked candidates per query.
type MatchResponse struct {
	Results matching.Results `json:"results"`
}

// MatchingHandler serves ad-hoc matching of free-text queries.
type MatchingHandler struct {
	svc    Matcher
	logger *slog.Logger
}

// NewMatchingHandler creates a new matching handler
func NewMatchingHandler(svc Matcher, logger *slog.Logger) *MatchingHandler {
	return &MatchingHandler{svc: svc, logger: logger}
}

// CustomMatch ranks the submitted queries against the catalog.
func (h *MatchingHandler) CustomMatch(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Queries) == 0 {
		httpx.WriteError(w, http.StatusBadRequest, "No queries provided")
		return
	}

	results := h.svc.MatchDescriptions(r.Context(), req.Queries)

	h.logger.Info("custom match completed",
		slog.Int("queries", len(req.Queries)),
		slog.Int("matched", len(results)),
	)

	httpx.WriteJSON(w, http.StatusOK, MatchResponse{Results: results})
}
