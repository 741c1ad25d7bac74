// Package api provides HTTP handlers for the Banter ranking API,
// including standardized error handling.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/banter-collective/banter/internal/content"
	"github.com/banter-collective/banter/internal/feed"
	"github.com/banter-collective/banter/internal/middleware"
	"github.com/banter-collective/banter/internal/ranking"
	"github.com/banter-collective/banter/internal/vote"
)

// Common error codes used throughout the API.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeAuthFailed indicates authentication failure.
	ErrCodeAuthFailed = "auth_failed"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeRateLimited indicates rate limit exceeded.
	ErrCodeRateLimited = "rate_limited"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"

	// ErrCodeForbidden indicates the request is forbidden.
	ErrCodeForbidden = "forbidden"

	// ErrCodeBadRequest indicates a malformed request.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeUnavailable indicates the backing data source is down.
	ErrCodeUnavailable = "unavailable"

	// ErrCodeSelfVote indicates a voter targeted their own content.
	ErrCodeSelfVote = "self_vote"

	// ErrCodeInvalidVote indicates a vote value other than +1 or -1.
	ErrCodeInvalidVote = "invalid_vote_value"

	// ErrCodeCommunityArchived indicates the community no longer accepts posts.
	ErrCodeCommunityArchived = "community_archived"

	// ErrCodeMaxDepth indicates the comment nesting limit was exceeded.
	ErrCodeMaxDepth = "max_depth_exceeded"

	// ErrCodeInvalidSort indicates an unrecognized feed sort mode.
	ErrCodeInvalidSort = "invalid_sort"

	// ErrCodeInvalidTimeRange indicates an unrecognized time range.
	ErrCodeInvalidTimeRange = "invalid_time_range"

	// ErrCodeInvalidPostType indicates an unsupported post type.
	ErrCodeInvalidPostType = "invalid_post_type"
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response.
// It writes the appropriate HTTP status code and returns a JSON error body.
//
// Format: {"error": {"code": "error_code", "message": "Error description"}}
//
// The error_code will be automatically logged by the logging middleware
// for all 4xx and 5xx responses if you call SetErrorCode on the context
// and pass the updated context to WriteError.
//
// Example:
//
//	ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
//	WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "Post not found")
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	// Update the context in the response writer if supported (for logging middleware)
	middleware.UpdateResponseContext(w, ctx)

	errResp := ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	}

	data, err := json.Marshal(errResp)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// writeDomainError maps a domain error to its error code and status and
// writes the response. Unrecognized errors become a 500 and the caller
// is expected to have logged them.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code, message := classifyError(err)
	ctx := middleware.SetErrorCode(r.Context(), code)
	WriteError(w, ctx, StatusCodeMapping(code), code, message)
}

// classifyError translates domain sentinel errors into API error codes.
func classifyError(err error) (code, message string) {
	switch {
	case errors.Is(err, content.ErrNotFound):
		return ErrCodeNotFound, "Item not found"
	case errors.Is(err, content.ErrCommunityNotFound):
		return ErrCodeNotFound, "Community not found"
	case errors.Is(err, content.ErrCommunityArchived):
		return ErrCodeCommunityArchived, "Community is archived and read-only"
	case errors.Is(err, content.ErrMaxDepth):
		return ErrCodeMaxDepth, "Comment nesting depth exceeded"
	case errors.Is(err, content.ErrInvalidPostType):
		return ErrCodeInvalidPostType, "Post type must be one of text, link, image"
	case errors.Is(err, content.ErrUnavailable):
		return ErrCodeUnavailable, "Data source unavailable"
	case errors.Is(err, vote.ErrSelfVote):
		return ErrCodeSelfVote, "Voting on your own content is not allowed"
	case errors.Is(err, vote.ErrInvalidValue):
		return ErrCodeInvalidVote, "Vote value must be +1 or -1"
	case errors.Is(err, ranking.ErrInvalidMode):
		return ErrCodeInvalidSort, "Sort must be one of hot, new, top, controversial"
	case errors.Is(err, feed.ErrInvalidLimit):
		return ErrCodeValidation, "Limit must be a positive integer"
	case errors.Is(err, feed.ErrInvalidTimeRange):
		return ErrCodeInvalidTimeRange, "Time range must be one of hour, day, week, month, year, all"
	}
	return ErrCodeInternal, "Internal server error"
}

// StatusCodeMapping returns the recommended HTTP status code for common error codes.
// This is a convenience function to map error codes to HTTP status codes.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest, ErrCodeInvalidVote,
		ErrCodeInvalidSort, ErrCodeInvalidTimeRange, ErrCodeInvalidPostType:
		return http.StatusBadRequest
	case ErrCodeAuthFailed:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeForbidden, ErrCodeSelfVote:
		return http.StatusForbidden
	case ErrCodeCommunityArchived, ErrCodeMaxDepth:
		return http.StatusConflict
	case ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
