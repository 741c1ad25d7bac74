package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/banter-collective/banter/internal/content"
	"github.com/banter-collective/banter/internal/middleware"
	"github.com/banter-collective/banter/internal/vote"
)

// CastVoteRequest represents the request body for casting a vote.
type CastVoteRequest struct {
	Value int `json:"value"`
}

// VoteResponse returns the item's aggregate after the mutation.
type VoteResponse struct {
	ItemID    string `json:"item_id"`
	Score     int    `json:"score"`
	Upvotes   int    `json:"upvotes"`
	Downvotes int    `json:"downvotes"`
}

// VoteHandlers holds dependencies for vote HTTP handlers.
type VoteHandlers struct {
	aggregator *vote.Aggregator
}

// NewVoteHandlers creates a new VoteHandlers instance.
func NewVoteHandlers(aggregator *vote.Aggregator) *VoteHandlers {
	return &VoteHandlers{
		aggregator: aggregator,
	}
}

// extractItemID extracts the item ID from a /items/{id}/vote path.
func extractItemID(r *http.Request) string {
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/items/"), "/")
	if len(pathParts) < 2 || pathParts[0] == "" || pathParts[1] != "vote" {
		return ""
	}
	return pathParts[0]
}

// requireViewer returns the authenticated viewer id, writing a 401 and
// returning false when the request is anonymous.
func requireViewer(w http.ResponseWriter, r *http.Request) (string, bool) {
	viewerID := middleware.GetViewerID(r.Context())
	if viewerID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return "", false
	}
	return viewerID, true
}

func writeVoteResponse(w http.ResponseWriter, r *http.Request, itemID string, agg content.VoteAggregate) {
	resp := VoteResponse{
		ItemID:    itemID,
		Score:     agg.Score,
		Upvotes:   agg.Upvotes,
		Downvotes: agg.Downvotes,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

// CastVote handles PUT /items/{id}/vote - casts or changes a vote.
// Repeating the same vote is a no-op and still returns 200.
func (h *VoteHandlers) CastVote(w http.ResponseWriter, r *http.Request) {
	itemID := extractItemID(r)
	if itemID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Item ID is required")
		return
	}

	viewerID, ok := requireViewer(w, r)
	if !ok {
		return
	}

	var req CastVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	agg, err := h.aggregator.ApplyVote(r.Context(), viewerID, itemID, req.Value)
	if err != nil {
		if code, _ := classifyError(err); code == ErrCodeInternal {
			slog.ErrorContext(r.Context(), "failed to apply vote", "error", err, "item_id", itemID)
		}
		writeDomainError(w, r, err)
		return
	}

	writeVoteResponse(w, r, itemID, agg)
}

// RetractVote handles DELETE /items/{id}/vote - retracts an active
// vote. Retracting when no vote is active is a no-op and returns 200.
func (h *VoteHandlers) RetractVote(w http.ResponseWriter, r *http.Request) {
	itemID := extractItemID(r)
	if itemID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Item ID is required")
		return
	}

	viewerID, ok := requireViewer(w, r)
	if !ok {
		return
	}

	agg, err := h.aggregator.RetractVote(r.Context(), viewerID, itemID)
	if err != nil {
		if code, _ := classifyError(err); code == ErrCodeInternal {
			slog.ErrorContext(r.Context(), "failed to retract vote", "error", err, "item_id", itemID)
		}
		writeDomainError(w, r, err)
		return
	}

	writeVoteResponse(w, r, itemID, agg)
}
