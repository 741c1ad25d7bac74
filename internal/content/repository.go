package content

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Ledger is the read-only accessor over items and their vote state.
type Ledger interface {
	// Item retrieves a live item by id. Returns ErrNotFound for missing
	// or soft-deleted items.
	Item(ctx context.Context, id string) (*Item, error)

	// Aggregate returns the item's counters as of the most recently
	// committed mutation.
	Aggregate(ctx context.Context, id string) (VoteAggregate, error)

	// ActiveVote returns the voter's active vote on the item, or nil if
	// the voter has no active vote.
	ActiveVote(ctx context.Context, voterID, itemID string) (*Vote, error)
}

// VoteWriter applies one vote-ledger transition. The vote record, the
// item aggregate and the author karma move in a single atomic step:
// either all are updated or none.
type VoteWriter interface {
	CommitVote(ctx context.Context, m VoteMutation) (VoteAggregate, error)
}

// FeedSource supplies filtered candidate sets to the feed assembler.
type FeedSource interface {
	// CountPosts returns the size of the filtered post set.
	CountPosts(ctx context.Context, p Predicate) (int, error)

	// ListPostsByNew returns one page of posts in strict
	// reverse-chronological order (created_at DESC, id ASC) with the
	// offset/limit applied at the source.
	ListPostsByNew(ctx context.Context, p Predicate, offset, limit int) ([]FeedItem, error)

	// ListPosts returns the full filtered post set with aggregates
	// attached, in no particular order. Used by score-based sorts.
	ListPosts(ctx context.Context, p Predicate) ([]FeedItem, error)

	// ListComments returns all live comments under a post with
	// aggregates attached, in no particular order.
	ListComments(ctx context.Context, postID string) ([]FeedItem, error)
}

// Store is the full data-source contract the engine is constructed
// with. Implementations: InMemoryStore and PostgresStore.
type Store interface {
	Ledger
	VoteWriter
	FeedSource

	// CreateCommunity registers a community.
	CreateCommunity(ctx context.Context, c *Community) error

	// CreatePost inserts a post with a zero aggregate.
	CreatePost(ctx context.Context, item *Item) error

	// CreateComment inserts a comment with a zero aggregate, derives
	// its depth from the parent and bumps the owning post's comment
	// count.
	CreateComment(ctx context.Context, item *Item) error

	// DeleteItem soft-deletes an item.
	DeleteItem(ctx context.Context, id string) error

	// Karma returns the author's cumulative karma.
	Karma(ctx context.Context, authorID string) (int, error)
}

// InMemoryStore is an in-memory implementation of Store.
// Thread-safe via RWMutex.
type InMemoryStore struct {
	mu          sync.RWMutex
	items       map[string]*Item
	aggregates  map[string]*VoteAggregate
	votes       map[string]*Vote // voter\x00item -> latest vote record
	communities map[string]*Community
	karma       map[string]int
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		items:       make(map[string]*Item),
		aggregates:  make(map[string]*VoteAggregate),
		votes:       make(map[string]*Vote),
		communities: make(map[string]*Community),
		karma:       make(map[string]int),
	}
}

// voteKey builds the (voter, item) composite key. A null byte separator
// keeps concatenated ids from colliding.
func voteKey(voterID, itemID string) string {
	return voterID + "\x00" + itemID
}

// CreateCommunity registers a community.
func (s *InMemoryStore) CreateCommunity(ctx context.Context, c *Community) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	cc := *c
	s.communities[c.ID] = &cc
	return nil
}

// CreatePost inserts a post with a zero aggregate.
func (s *InMemoryStore) CreatePost(ctx context.Context, item *Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	community, ok := s.communities[item.CommunityID]
	if !ok {
		return ErrCommunityNotFound
	}
	if community.Archived {
		return ErrCommunityArchived
	}
	if !ValidPostType(item.Type) {
		return ErrInvalidPostType
	}

	now := time.Now()
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	item.Kind = KindPost
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	itemCopy := *item
	s.items[item.ID] = &itemCopy
	s.aggregates[item.ID] = &VoteAggregate{}
	return nil
}

// CreateComment inserts a comment under a post or parent comment.
func (s *InMemoryStore) CreateComment(ctx context.Context, item *Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.items[item.PostID]
	if !ok || post.DeletedAt != nil || post.Kind != KindPost {
		return ErrNotFound
	}

	depth := 0
	if item.ParentID != nil {
		parent, ok := s.items[*item.ParentID]
		if !ok || parent.DeletedAt != nil || parent.Kind != KindComment || parent.PostID != item.PostID {
			return ErrNotFound
		}
		depth = parent.Depth + 1
	}
	if depth > MaxCommentDepth {
		return ErrMaxDepth
	}

	now := time.Now()
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	item.Kind = KindComment
	item.CommunityID = post.CommunityID
	item.Depth = depth
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	itemCopy := *item
	s.items[item.ID] = &itemCopy
	s.aggregates[item.ID] = &VoteAggregate{}
	s.aggregates[post.ID].Comments++
	return nil
}

// DeleteItem soft-deletes an item.
func (s *InMemoryStore) DeleteItem(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok || item.DeletedAt != nil {
		return ErrNotFound
	}
	now := time.Now()
	item.DeletedAt = &now
	return nil
}

// Item retrieves a live item by id.
func (s *InMemoryStore) Item(ctx context.Context, id string) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok || item.DeletedAt != nil {
		return nil, ErrNotFound
	}
	itemCopy := *item
	return &itemCopy, nil
}

// Aggregate returns the item's current counters.
func (s *InMemoryStore) Aggregate(ctx context.Context, id string) (VoteAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok || item.DeletedAt != nil {
		return VoteAggregate{}, ErrNotFound
	}
	return *s.aggregates[id], nil
}

// ActiveVote returns the voter's active vote on the item, or nil.
func (s *InMemoryStore) ActiveVote(ctx context.Context, voterID, itemID string) (*Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if item, ok := s.items[itemID]; !ok || item.DeletedAt != nil {
		return nil, ErrNotFound
	}
	vote, ok := s.votes[voteKey(voterID, itemID)]
	if !ok || !vote.Active() {
		return nil, nil
	}
	voteCopy := *vote
	return &voteCopy, nil
}

// Karma returns the author's cumulative karma.
func (s *InMemoryStore) Karma(ctx context.Context, authorID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.karma[authorID], nil
}

// CommitVote applies one vote-ledger transition atomically.
func (s *InMemoryStore) CommitVote(ctx context.Context, m VoteMutation) (VoteAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[m.ItemID]
	if !ok || item.DeletedAt != nil {
		return VoteAggregate{}, ErrNotFound
	}

	now := time.Now()
	key := voteKey(m.VoterID, m.ItemID)
	switch {
	case m.NewValue == 0:
		// Retraction keeps the historical record.
		if vote, ok := s.votes[key]; ok && vote.Active() {
			vote.RetractedAt = &now
			vote.UpdatedAt = now
		}
	default:
		vote, ok := s.votes[key]
		if !ok {
			s.votes[key] = &Vote{
				ID:        uuid.New().String(),
				VoterID:   m.VoterID,
				ItemID:    m.ItemID,
				Value:     m.NewValue,
				CreatedAt: now,
				UpdatedAt: now,
			}
		} else {
			// Re-vote after a retraction revives the record.
			vote.Value = m.NewValue
			vote.RetractedAt = nil
			vote.UpdatedAt = now
		}
	}

	scoreDelta, upDelta, downDelta := m.Deltas()
	agg := s.aggregates[m.ItemID]
	agg.Score += scoreDelta
	agg.Upvotes += upDelta
	agg.Downvotes += downDelta
	s.karma[m.AuthorID] += scoreDelta

	return *agg, nil
}

// matches reports whether a live post passes the predicate. The caller
// must hold at least a read lock.
func (s *InMemoryStore) matches(item *Item, p Predicate) bool {
	if item.Kind != KindPost || item.DeletedAt != nil {
		return false
	}
	community, ok := s.communities[item.CommunityID]
	if !ok || community.Archived {
		return false
	}
	if p.CommunityID != nil && item.CommunityID != *p.CommunityID {
		return false
	}
	if p.PostType != nil && item.Type != *p.PostType {
		return false
	}
	if p.TitleSearch != "" &&
		!strings.Contains(strings.ToLower(item.Title), strings.ToLower(p.TitleSearch)) {
		return false
	}
	if p.CreatedAfter != nil && item.CreatedAt.Before(*p.CreatedAfter) {
		return false
	}
	return true
}

// collectPosts gathers feed items for all posts passing the predicate.
// The caller must hold at least a read lock.
func (s *InMemoryStore) collectPosts(p Predicate) []FeedItem {
	var out []FeedItem
	for _, item := range s.items {
		if !s.matches(item, p) {
			continue
		}
		out = append(out, FeedItem{Item: *item, Aggregate: *s.aggregates[item.ID]})
	}
	return out
}

// CountPosts returns the size of the filtered post set.
func (s *InMemoryStore) CountPosts(ctx context.Context, p Predicate) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, item := range s.items {
		if s.matches(item, p) {
			n++
		}
	}
	return n, nil
}

// ListPostsByNew returns one page of posts in reverse-chronological
// order with offset/limit applied here rather than by the caller.
func (s *InMemoryStore) ListPostsByNew(ctx context.Context, p Predicate, offset, limit int) ([]FeedItem, error) {
	s.mu.RLock()
	candidates := s.collectPosts(p)
	s.mu.RUnlock()

	sortFeedByCreatedDesc(candidates)

	if offset >= len(candidates) {
		return []FeedItem{}, nil
	}
	end := offset + limit
	if end > len(candidates) {
		end = len(candidates)
	}
	return candidates[offset:end], nil
}

// ListPosts returns the full filtered post set with aggregates.
func (s *InMemoryStore) ListPosts(ctx context.Context, p Predicate) ([]FeedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectPosts(p), nil
}

// ListComments returns all live comments under a post.
func (s *InMemoryStore) ListComments(ctx context.Context, postID string) ([]FeedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, ok := s.items[postID]
	if !ok || post.DeletedAt != nil || post.Kind != KindPost {
		return nil, ErrNotFound
	}

	var out []FeedItem
	for _, item := range s.items {
		if item.Kind != KindComment || item.DeletedAt != nil || item.PostID != postID {
			continue
		}
		out = append(out, FeedItem{Item: *item, Aggregate: *s.aggregates[item.ID]})
	}
	return out, nil
}

// sortFeedByCreatedDesc sorts feed items by created_at DESC, then by ID
// ASC for tie-breaking. Stable ordering is required for pagination.
func sortFeedByCreatedDesc(items []FeedItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Item.CreatedAt.After(items[j].Item.CreatedAt) {
			return true
		}
		if items[i].Item.CreatedAt.Before(items[j].Item.CreatedAt) {
			return false
		}
		return items[i].Item.ID < items[j].Item.ID
	})
}
