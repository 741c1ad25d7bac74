package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/banter-collective/banter/internal/content"
	"github.com/banter-collective/banter/internal/feed"
	"github.com/banter-collective/banter/internal/middleware"
	"github.com/banter-collective/banter/internal/ranking"
)

// FeedHandlers holds dependencies for feed HTTP handlers.
type FeedHandlers struct {
	assembler *feed.Assembler
}

// NewFeedHandlers creates a new FeedHandlers instance.
func NewFeedHandlers(assembler *feed.Assembler) *FeedHandlers {
	return &FeedHandlers{
		assembler: assembler,
	}
}

// parsePageParams reads page and limit from the query string. A missing
// limit falls back to the default page size; a missing page falls back
// to the first page. Non-numeric values are rejected.
func parsePageParams(r *http.Request) (page, limit int, ok bool) {
	page = 1
	limit = feed.DefaultLimit

	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		parsed, err := strconv.Atoi(pageStr)
		if err != nil {
			return 0, 0, false
		}
		page = parsed
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return 0, 0, false
		}
		limit = parsed
	}
	return page, limit, true
}

// GetFeed handles GET /feed - returns one ranked page of posts.
//
// Query parameters: sort (hot|new|top|controversial, default hot),
// community_id, type, search, time_range (top only), page, limit.
func (h *FeedHandlers) GetFeed(w http.ResponseWriter, r *http.Request) {
	q := feed.Query{
		Sort:      r.URL.Query().Get("sort"),
		Search:    r.URL.Query().Get("search"),
		TimeRange: feed.TimeRange(r.URL.Query().Get("time_range")),
	}
	if q.Sort == "" {
		q.Sort = string(ranking.ModeHot)
	}
	if communityID := r.URL.Query().Get("community_id"); communityID != "" {
		q.CommunityID = &communityID
	}
	if typeStr := r.URL.Query().Get("type"); typeStr != "" {
		postType := content.PostType(typeStr)
		q.Type = &postType
	}

	page, limit, ok := parsePageParams(r)
	if !ok {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "page and limit must be integers")
		return
	}
	q.Page = page
	q.Limit = limit

	result, err := h.assembler.Page(r.Context(), q)
	if err != nil {
		if code, _ := classifyError(err); code == ErrCodeInternal {
			slog.ErrorContext(r.Context(), "failed to assemble feed", "error", err, "sort", q.Sort)
		}
		writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

// GetComments handles GET /posts/{id}/comments - returns one ranked
// page of comments under a post. Supported sorts: top, new.
func (h *FeedHandlers) GetComments(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/posts/"), "/")
	if len(pathParts) < 2 || pathParts[0] == "" || pathParts[1] != "comments" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Post ID is required")
		return
	}
	postID := pathParts[0]

	sort := r.URL.Query().Get("sort")
	if sort == "" {
		sort = string(ranking.ModeTop)
	}

	page, limit, ok := parsePageParams(r)
	if !ok {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "page and limit must be integers")
		return
	}

	result, err := h.assembler.Comments(r.Context(), postID, sort, page, limit)
	if err != nil {
		if code, _ := classifyError(err); code == ErrCodeInternal {
			slog.ErrorContext(r.Context(), "failed to assemble comments", "error", err, "post_id", postID)
		}
		writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}
