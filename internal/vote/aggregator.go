// Package vote applies vote mutations to item aggregates and author
// karma, serializing concurrent mutations per item.
package vote

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/banter-collective/banter/internal/content"
)

// Business-rule errors surfaced to callers.
var (
	// ErrSelfVote is returned when a voter targets their own item.
	ErrSelfVote = errors.New("voting on own content is forbidden")

	// ErrInvalidValue is returned for vote values other than +1 or -1.
	// A "remove my vote" action retracts; zero is never stored.
	ErrInvalidValue = errors.New("vote value must be +1 or -1")
)

// Store is the data-source contract the aggregator mutates through.
type Store interface {
	content.Ledger
	content.VoteWriter
}

// Aggregator applies vote mutations. Mutations on the same item are
// serialized through a per-item lock arena; mutations on different
// items proceed fully in parallel. There is no cross-item atomicity
// requirement.
type Aggregator struct {
	store   Store
	logger  *slog.Logger
	metrics *Metrics

	mu    sync.Mutex
	locks map[string]*sync.Mutex // item id -> mutation lock
}

// NewAggregator creates a vote aggregator over the given store.
// Metrics may be nil to disable instrumentation.
func NewAggregator(store Store, logger *slog.Logger, metrics *Metrics) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		store:   store,
		logger:  logger,
		metrics: metrics,
		locks:   make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutation lock for an item, creating it on first
// use. Locks are never evicted; the arena is bounded by the number of
// items that ever received a vote.
func (a *Aggregator) lockFor(itemID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()

	l, ok := a.locks[itemID]
	if !ok {
		l = &sync.Mutex{}
		a.locks[itemID] = l
	}
	return l
}

// ApplyVote casts or changes one voter's vote on an item and returns
// the updated aggregate. Repeating an identical vote is a no-op.
// Changing sides swings the net score by 2. The author's karma moves
// with the score, atomically with the aggregate.
func (a *Aggregator) ApplyVote(ctx context.Context, voterID, itemID string, value int) (content.VoteAggregate, error) {
	if value != 1 && value != -1 {
		return content.VoteAggregate{}, ErrInvalidValue
	}

	lock := a.lockFor(itemID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()

	item, err := a.store.Item(ctx, itemID)
	if err != nil {
		a.observe(actionCast, false, start)
		return content.VoteAggregate{}, err
	}
	if item.AuthorID == voterID {
		a.observe(actionCast, false, start)
		return content.VoteAggregate{}, ErrSelfVote
	}

	existing, err := a.store.ActiveVote(ctx, voterID, itemID)
	if err != nil {
		a.observe(actionCast, false, start)
		return content.VoteAggregate{}, err
	}

	action := actionCast
	prev := 0
	if existing != nil {
		if existing.Value == value {
			// Idempotent repeat vote: aggregate unchanged.
			agg, err := a.store.Aggregate(ctx, itemID)
			a.observe(actionRepeat, err == nil, start)
			return agg, err
		}
		prev = existing.Value
		action = actionChange
	}

	agg, err := a.store.CommitVote(ctx, content.VoteMutation{
		ItemID:    itemID,
		VoterID:   voterID,
		AuthorID:  item.AuthorID,
		PrevValue: prev,
		NewValue:  value,
	})
	if err != nil {
		a.observe(action, false, start)
		return content.VoteAggregate{}, err
	}

	a.observe(action, true, start)
	a.logger.Debug("vote applied",
		"item_id", itemID,
		"value", value,
		"previous", prev,
		"score", agg.Score,
	)
	return agg, nil
}

// RetractVote removes the voter's active vote on an item and returns
// the updated aggregate. Retracting a non-existent vote is a no-op.
func (a *Aggregator) RetractVote(ctx context.Context, voterID, itemID string) (content.VoteAggregate, error) {
	lock := a.lockFor(itemID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()

	item, err := a.store.Item(ctx, itemID)
	if err != nil {
		a.observe(actionRetract, false, start)
		return content.VoteAggregate{}, err
	}

	existing, err := a.store.ActiveVote(ctx, voterID, itemID)
	if err != nil {
		a.observe(actionRetract, false, start)
		return content.VoteAggregate{}, err
	}
	if existing == nil {
		agg, err := a.store.Aggregate(ctx, itemID)
		a.observe(actionRetractNoop, err == nil, start)
		return agg, err
	}

	agg, err := a.store.CommitVote(ctx, content.VoteMutation{
		ItemID:    itemID,
		VoterID:   voterID,
		AuthorID:  item.AuthorID,
		PrevValue: existing.Value,
		NewValue:  0,
	})
	if err != nil {
		a.observe(actionRetract, false, start)
		return content.VoteAggregate{}, err
	}

	a.observe(actionRetract, true, start)
	return agg, nil
}

// observe records one mutation outcome if metrics are enabled.
func (a *Aggregator) observe(action string, ok bool, start time.Time) {
	if a.metrics == nil {
		return
	}
	a.metrics.RecordMutation(action, ok, time.Since(start))
}
