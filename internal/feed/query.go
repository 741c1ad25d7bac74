// Package feed assembles ranked, paginated pages of content under the
// four sort modes.
package feed

import (
	"errors"
	"time"

	"github.com/banter-collective/banter/internal/content"
	"github.com/banter-collective/banter/internal/ranking"
)

// Validation errors for feed queries.
var (
	ErrInvalidLimit     = errors.New("limit must be positive")
	ErrInvalidTimeRange = errors.New("invalid time range")
)

// Page size defaults. Limits above MaxLimit are clamped rather than
// rejected, matching the tolerant handling of oversized page numbers.
const (
	DefaultLimit = 25
	MaxLimit     = 50
)

// TimeRange bounds the candidate set for top mode.
type TimeRange string

// Time ranges.
const (
	RangeHour  TimeRange = "hour"
	RangeDay   TimeRange = "day"
	RangeWeek  TimeRange = "week"
	RangeMonth TimeRange = "month"
	RangeYear  TimeRange = "year"
	RangeAll   TimeRange = "all"
)

// Duration returns the window for the range and whether a bound
// applies at all. RangeAll and the empty range have no bound.
func (r TimeRange) Duration() (time.Duration, bool) {
	switch r {
	case RangeHour:
		return time.Hour, true
	case RangeDay:
		return 24 * time.Hour, true
	case RangeWeek:
		return 7 * 24 * time.Hour, true
	case RangeMonth:
		return 30 * 24 * time.Hour, true
	case RangeYear:
		return 365 * 24 * time.Hour, true
	}
	return 0, false
}

// valid reports whether the range is one of the recognized values.
func (r TimeRange) valid() bool {
	switch r {
	case "", RangeHour, RangeDay, RangeWeek, RangeMonth, RangeYear, RangeAll:
		return true
	}
	return false
}

// Query is a caller's feed request. Ephemeral; constructed per request
// and discarded after the response.
type Query struct {
	CommunityID *string           `json:"community_id,omitempty"`
	Type        *content.PostType `json:"type,omitempty"`
	Search      string            `json:"search,omitempty"`
	Sort        string            `json:"sort"`
	TimeRange   TimeRange         `json:"time_range,omitempty"`
	Page        int               `json:"page,omitempty"`
	Limit       int               `json:"limit,omitempty"`
}

// Plan is the concrete execution plan derived from a Query: the item
// predicate, the ordering mode and the normalized page window.
type Plan struct {
	Predicate content.Predicate
	Mode      ranking.Mode
	Page      int
	Limit     int
}

// Build translates a Query into a Plan. Pure translation, no I/O.
//
// An invalid sort or non-positive limit is rejected; a page number of
// 0 or below is clamped to 1. The time range is applied only for top
// and silently ignored for other modes, keeping the API tolerant of
// redundant parameters. Soft-deleted items and archived communities
// are always excluded by the stores evaluating the predicate.
func Build(q Query, now time.Time) (Plan, error) {
	mode, err := ranking.ParseMode(q.Sort)
	if err != nil {
		return Plan{}, err
	}

	if q.Limit <= 0 {
		return Plan{}, ErrInvalidLimit
	}
	limit := q.Limit
	if limit > MaxLimit {
		limit = MaxLimit
	}

	page := q.Page
	if page <= 0 {
		page = 1
	}

	if q.Type != nil && !content.ValidPostType(*q.Type) {
		return Plan{}, content.ErrInvalidPostType
	}
	if !q.TimeRange.valid() {
		return Plan{}, ErrInvalidTimeRange
	}

	pred := content.Predicate{
		CommunityID: q.CommunityID,
		PostType:    q.Type,
		TitleSearch: q.Search,
	}
	if mode == ranking.ModeTop {
		if window, ok := q.TimeRange.Duration(); ok {
			after := now.Add(-window)
			pred.CreatedAfter = &after
		}
	}

	return Plan{Predicate: pred, Mode: mode, Page: page, Limit: limit}, nil
}
