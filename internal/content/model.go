// Package content provides the models and stores for ranked content
// items (posts and comments) and their vote aggregates.
package content

import (
	"errors"
	"time"
)

// Common errors for content operations.
var (
	ErrNotFound          = errors.New("item not found")
	ErrItemDeleted       = errors.New("item has been deleted")
	ErrCommunityNotFound = errors.New("community not found")
	ErrCommunityArchived = errors.New("community is archived")
	ErrMaxDepth          = errors.New("comment nesting depth exceeded")
	ErrInvalidPostType   = errors.New("invalid post type")

	// ErrUnavailable wraps storage-level failures so callers can
	// distinguish them from business-rule rejections.
	ErrUnavailable = errors.New("data source unavailable")
)

// Kind distinguishes posts from comments.
type Kind string

// Item kinds.
const (
	KindPost    Kind = "post"
	KindComment Kind = "comment"
)

// PostType classifies the content of a post.
type PostType string

// Post types.
const (
	TypeText  PostType = "text"
	TypeLink  PostType = "link"
	TypeImage PostType = "image"
)

// ValidPostType reports whether t is a recognized post type.
func ValidPostType(t PostType) bool {
	switch t {
	case TypeText, TypeLink, TypeImage:
		return true
	}
	return false
}

// MaxCommentDepth is the maximum nesting depth for comments.
// A top-level comment has depth 0; each reply adds 1.
const MaxCommentDepth = 10

// Item represents a post or comment.
type Item struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"kind"`
	Type        PostType   `json:"type,omitempty"` // posts only
	CommunityID string     `json:"community_id"`
	PostID      string     `json:"post_id,omitempty"`   // comments: owning post
	ParentID    *string    `json:"parent_id,omitempty"` // comments: parent comment, nil if top-level
	Depth       int        `json:"depth,omitempty"`     // comments only
	AuthorID    string     `json:"author_id"`
	Title       string     `json:"title,omitempty"` // posts only
	Body        string     `json:"body,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// Community is the parent scope of a post. Archived communities are
// excluded from every feed.
type Community struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"`
}

// VoteAggregate holds the derived per-item counters. The invariant
// Score == Upvotes - Downvotes holds after every committed mutation.
type VoteAggregate struct {
	Score     int `json:"score"`
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
	Comments  int `json:"comments,omitempty"` // posts only
}

// Vote is one (voter, item) pairing. At most one active vote exists per
// pair; a retraction sets RetractedAt instead of deleting the record.
type Vote struct {
	ID          string     `json:"id"`
	VoterID     string     `json:"voter_id"`
	ItemID      string     `json:"item_id"`
	Value       int        `json:"value"` // +1 or -1
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	RetractedAt *time.Time `json:"retracted_at,omitempty"`
}

// Active reports whether the vote currently counts toward aggregates.
func (v *Vote) Active() bool {
	return v != nil && v.RetractedAt == nil
}

// FeedItem pairs an item with its current aggregate for feed assembly.
type FeedItem struct {
	Item      Item          `json:"item"`
	Aggregate VoteAggregate `json:"aggregate"`
}

// Predicate is the concrete item-set filter produced by the feed query
// builder. The zero value matches all live posts in non-archived
// communities.
type Predicate struct {
	CommunityID  *string    // restrict to one community
	PostType     *PostType  // restrict to one post type
	TitleSearch  string     // substring match against titles only
	CreatedAfter *time.Time // restrict to items created at or after this instant
}

// VoteMutation describes one atomic vote-ledger transition computed by
// the aggregator. PrevValue and NewValue use 0 to mean "no active vote".
type VoteMutation struct {
	ItemID   string
	VoterID  string
	AuthorID string

	PrevValue int // 0, +1 or -1
	NewValue  int // 0 (retract), +1 or -1
}

// Deltas returns the aggregate adjustments implied by the transition:
// net score delta, upvote bucket delta and downvote bucket delta. The
// author karma delta always equals the score delta.
func (m VoteMutation) Deltas() (score, up, down int) {
	score = m.NewValue - m.PrevValue
	if m.PrevValue == 1 {
		up--
	}
	if m.PrevValue == -1 {
		down--
	}
	if m.NewValue == 1 {
		up++
	}
	if m.NewValue == -1 {
		down++
	}
	return score, up, down
}
