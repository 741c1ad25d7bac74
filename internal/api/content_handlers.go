package api

import (
	"encoding/json"
	"html"
	"log/slog"
	"net/http"
	"strings"

	"github.com/banter-collective/banter/internal/content"
	"github.com/banter-collective/banter/internal/middleware"
)

// Content validation constraints.
const (
	MaxTitleLength = 300
	MaxBodyLength  = 10000
)

// CreateCommunityRequest represents the request body for creating a community.
type CreateCommunityRequest struct {
	Name string `json:"name"`
}

// CreatePostRequest represents the request body for creating a post.
type CreatePostRequest struct {
	CommunityID string           `json:"community_id"`
	Type        content.PostType `json:"type"`
	Title       string           `json:"title"`
	Body        string           `json:"body,omitempty"`
}

// CreateCommentRequest represents the request body for creating a comment.
type CreateCommentRequest struct {
	ParentID *string `json:"parent_id,omitempty"`
	Body     string  `json:"body"`
}

// ItemResponse is an item with its current aggregate attached.
type ItemResponse struct {
	content.Item
	Score     int `json:"score"`
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
	Comments  int `json:"comments"`
}

// KarmaResponse reports an author's cumulative karma.
type KarmaResponse struct {
	UserID string `json:"user_id"`
	Karma  int    `json:"karma"`
}

// ContentHandlers holds dependencies for content HTTP handlers.
type ContentHandlers struct {
	store content.Store
}

// NewContentHandlers creates a new ContentHandlers instance.
func NewContentHandlers(store content.Store) *ContentHandlers {
	return &ContentHandlers{
		store: store,
	}
}

// validateTitle validates a post title.
// Returns error message if validation fails, empty string if valid.
func validateTitle(title string) string {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return "title is required"
	}
	if len(trimmed) > MaxTitleLength {
		return "title must not exceed 300 characters"
	}
	return ""
}

// validateBody validates comment or post body text.
func validateBody(body string, required bool) string {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		if required {
			return "body is required"
		}
		return ""
	}
	if len(trimmed) > MaxBodyLength {
		return "body must not exceed 10000 characters"
	}
	return ""
}

// sanitizeText escapes HTML entities to prevent XSS.
// Should be called after validation passes.
func sanitizeText(text string) string {
	return html.EscapeString(strings.TrimSpace(text))
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

// CreateCommunity handles POST /communities - registers a community.
func (h *ContentHandlers) CreateCommunity(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireViewer(w, r); !ok {
		return
	}

	var req CreateCommunityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "community name is required")
		return
	}

	community := &content.Community{Name: sanitizeText(name)}
	if err := h.store.CreateCommunity(r.Context(), community); err != nil {
		slog.ErrorContext(r.Context(), "failed to create community", "error", err)
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, community)
}

// CreatePost handles POST /posts - creates a new post.
func (h *ContentHandlers) CreatePost(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := requireViewer(w, r)
	if !ok {
		return
	}

	var req CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if req.CommunityID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "community_id is required")
		return
	}
	if errMsg := validateTitle(req.Title); errMsg != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, errMsg)
		return
	}
	if errMsg := validateBody(req.Body, false); errMsg != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, errMsg)
		return
	}

	item := &content.Item{
		Type:        req.Type,
		CommunityID: req.CommunityID,
		AuthorID:    viewerID,
		Title:       sanitizeText(req.Title),
		Body:        sanitizeText(req.Body),
	}

	if err := h.store.CreatePost(r.Context(), item); err != nil {
		if code, _ := classifyError(err); code == ErrCodeInternal {
			slog.ErrorContext(r.Context(), "failed to create post", "error", err)
		}
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, item)
}

// GetPost handles GET /posts/{id} - retrieves a post with its aggregate.
func (h *ContentHandlers) GetPost(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/posts/"), "/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Post ID is required")
		return
	}
	postID := pathParts[0]

	item, err := h.store.Item(r.Context(), postID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	agg, err := h.store.Aggregate(r.Context(), postID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := ItemResponse{
		Item:      *item,
		Score:     agg.Score,
		Upvotes:   agg.Upvotes,
		Downvotes: agg.Downvotes,
		Comments:  agg.Comments,
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// DeletePost handles DELETE /posts/{id} - soft-deletes a post.
// Only the author may delete their own post.
func (h *ContentHandlers) DeletePost(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/posts/"), "/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Post ID is required")
		return
	}
	postID := pathParts[0]

	viewerID, ok := requireViewer(w, r)
	if !ok {
		return
	}

	item, err := h.store.Item(r.Context(), postID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if item.AuthorID != viewerID {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Only the author may delete this post")
		return
	}

	if err := h.store.DeleteItem(r.Context(), postID); err != nil {
		if code, _ := classifyError(err); code == ErrCodeInternal {
			slog.ErrorContext(r.Context(), "failed to delete post", "error", err, "post_id", postID)
		}
		writeDomainError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreateComment handles POST /posts/{id}/comments - creates a comment
// under a post, optionally nested beneath an existing comment.
func (h *ContentHandlers) CreateComment(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/posts/"), "/")
	if len(pathParts) < 2 || pathParts[0] == "" || pathParts[1] != "comments" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Post ID is required")
		return
	}
	postID := pathParts[0]

	viewerID, ok := requireViewer(w, r)
	if !ok {
		return
	}

	var req CreateCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if errMsg := validateBody(req.Body, true); errMsg != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, errMsg)
		return
	}

	item := &content.Item{
		PostID:   postID,
		ParentID: req.ParentID,
		AuthorID: viewerID,
		Body:     sanitizeText(req.Body),
	}

	if err := h.store.CreateComment(r.Context(), item); err != nil {
		if code, _ := classifyError(err); code == ErrCodeInternal {
			slog.ErrorContext(r.Context(), "failed to create comment", "error", err, "post_id", postID)
		}
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, item)
}

// GetKarma handles GET /users/{id}/karma - returns cumulative karma.
func (h *ContentHandlers) GetKarma(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/users/"), "/")
	if len(pathParts) < 2 || pathParts[0] == "" || pathParts[1] != "karma" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "User ID is required")
		return
	}
	userID := pathParts[0]

	karma, err := h.store.Karma(r.Context(), userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to read karma", "error", err, "user_id", userID)
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, KarmaResponse{UserID: userID, Karma: karma})
}
