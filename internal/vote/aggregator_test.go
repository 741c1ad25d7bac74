package vote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/banter-collective/banter/internal/content"
)

func setupAggregator(t *testing.T) (*Aggregator, *content.InMemoryStore, *content.Item) {
	t.Helper()
	store := content.NewInMemoryStore()
	ctx := context.Background()

	community := &content.Community{Name: "gophers"}
	if err := store.CreateCommunity(ctx, community); err != nil {
		t.Fatalf("CreateCommunity failed: %v", err)
	}
	post := &content.Item{
		Type:        content.TypeText,
		CommunityID: community.ID,
		AuthorID:    "author",
		Title:       "votable",
	}
	if err := store.CreatePost(ctx, post); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}
	return NewAggregator(store, nil, nil), store, post
}

func TestApplyVote_CastAndKarma(t *testing.T) {
	agg, store, post := setupAggregator(t)
	ctx := context.Background()

	result, err := agg.ApplyVote(ctx, "voter1", post.ID, 1)
	if err != nil {
		t.Fatalf("ApplyVote failed: %v", err)
	}
	if result.Score != 1 || result.Upvotes != 1 || result.Downvotes != 0 {
		t.Errorf("after first upvote: %+v", result)
	}

	karma, err := store.Karma(ctx, "author")
	if err != nil {
		t.Fatalf("Karma failed: %v", err)
	}
	if karma != 1 {
		t.Errorf("author karma = %d, want 1", karma)
	}
}

func TestApplyVote_InvalidValue(t *testing.T) {
	agg, _, post := setupAggregator(t)

	for _, value := range []int{0, 2, -2, 100} {
		if _, err := agg.ApplyVote(context.Background(), "voter1", post.ID, value); !errors.Is(err, ErrInvalidValue) {
			t.Errorf("value %d: expected ErrInvalidValue, got %v", value, err)
		}
	}
}

func TestApplyVote_SelfVoteForbidden(t *testing.T) {
	agg, store, post := setupAggregator(t)
	ctx := context.Background()

	if _, err := agg.ApplyVote(ctx, "author", post.ID, 1); !errors.Is(err, ErrSelfVote) {
		t.Fatalf("expected ErrSelfVote, got %v", err)
	}

	// Rejection leaves the aggregate untouched.
	result, err := store.Aggregate(ctx, post.ID)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if result != (content.VoteAggregate{}) {
		t.Errorf("aggregate changed by rejected self-vote: %+v", result)
	}
}

func TestApplyVote_MissingItem(t *testing.T) {
	agg, _, _ := setupAggregator(t)

	if _, err := agg.ApplyVote(context.Background(), "voter1", "no-such-item", 1); !errors.Is(err, content.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestApplyVote_IdempotentRepeat(t *testing.T) {
	agg, store, post := setupAggregator(t)
	ctx := context.Background()

	first, err := agg.ApplyVote(ctx, "voter1", post.ID, 1)
	if err != nil {
		t.Fatalf("ApplyVote failed: %v", err)
	}
	second, err := agg.ApplyVote(ctx, "voter1", post.ID, 1)
	if err != nil {
		t.Fatalf("repeat ApplyVote failed: %v", err)
	}
	if first != second {
		t.Errorf("repeat vote changed aggregate: %+v -> %+v", first, second)
	}

	karma, _ := store.Karma(ctx, "author")
	if karma != 1 {
		t.Errorf("repeat vote changed karma: %d", karma)
	}
}

func TestApplyVote_SwingIsTwo(t *testing.T) {
	agg, store, post := setupAggregator(t)
	ctx := context.Background()

	if _, err := agg.ApplyVote(ctx, "voter1", post.ID, 1); err != nil {
		t.Fatalf("ApplyVote failed: %v", err)
	}
	result, err := agg.ApplyVote(ctx, "voter1", post.ID, -1)
	if err != nil {
		t.Fatalf("swing ApplyVote failed: %v", err)
	}
	if result.Score != -1 || result.Upvotes != 0 || result.Downvotes != 1 {
		t.Errorf("after swing to downvote: %+v", result)
	}

	karma, _ := store.Karma(ctx, "author")
	if karma != -1 {
		t.Errorf("author karma after swing = %d, want -1", karma)
	}
}

func TestRetractVote_Symmetry(t *testing.T) {
	agg, store, post := setupAggregator(t)
	ctx := context.Background()

	if _, err := agg.ApplyVote(ctx, "voter1", post.ID, -1); err != nil {
		t.Fatalf("ApplyVote failed: %v", err)
	}
	result, err := agg.RetractVote(ctx, "voter1", post.ID)
	if err != nil {
		t.Fatalf("RetractVote failed: %v", err)
	}
	if result != (content.VoteAggregate{}) {
		t.Errorf("cast then retract should restore the zero aggregate: %+v", result)
	}

	karma, _ := store.Karma(ctx, "author")
	if karma != 0 {
		t.Errorf("author karma after retract = %d, want 0", karma)
	}
}

func TestRetractVote_NoActiveVoteIsNoop(t *testing.T) {
	agg, _, post := setupAggregator(t)
	ctx := context.Background()

	if _, err := agg.ApplyVote(ctx, "voter2", post.ID, 1); err != nil {
		t.Fatalf("ApplyVote failed: %v", err)
	}

	// voter1 never voted; retraction must not disturb voter2's vote.
	result, err := agg.RetractVote(ctx, "voter1", post.ID)
	if err != nil {
		t.Fatalf("RetractVote failed: %v", err)
	}
	if result.Score != 1 || result.Upvotes != 1 {
		t.Errorf("no-op retract changed aggregate: %+v", result)
	}

	// Double retract after a real one is equally harmless.
	if _, err := agg.RetractVote(ctx, "voter2", post.ID); err != nil {
		t.Fatalf("RetractVote failed: %v", err)
	}
	result, err = agg.RetractVote(ctx, "voter2", post.ID)
	if err != nil {
		t.Fatalf("second RetractVote failed: %v", err)
	}
	if result != (content.VoteAggregate{}) {
		t.Errorf("double retract left a residue: %+v", result)
	}
}

func TestRetractVote_MissingItem(t *testing.T) {
	agg, _, _ := setupAggregator(t)

	if _, err := agg.RetractVote(context.Background(), "voter1", "no-such-item"); !errors.Is(err, content.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestApplyVote_ConcurrentVoters(t *testing.T) {
	agg, store, post := setupAggregator(t)
	ctx := context.Background()

	const voters = 100
	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			value := 1
			if n%4 == 0 {
				value = -1
			}
			if _, err := agg.ApplyVote(ctx, fmt.Sprintf("voter%d", n), post.ID, value); err != nil {
				t.Errorf("concurrent ApplyVote failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	result, err := store.Aggregate(ctx, post.ID)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if result.Upvotes != 75 || result.Downvotes != 25 {
		t.Errorf("vote buckets = %d up / %d down, want 75 / 25", result.Upvotes, result.Downvotes)
	}
	if result.Score != result.Upvotes-result.Downvotes {
		t.Errorf("score invariant violated: %+v", result)
	}

	karma, _ := store.Karma(ctx, "author")
	if karma != result.Score {
		t.Errorf("karma %d diverged from score %d", karma, result.Score)
	}
}

func TestApplyVote_ConcurrentChurnSingleVoter(t *testing.T) {
	agg, store, post := setupAggregator(t)
	ctx := context.Background()

	// One voter flipping and retracting concurrently must always land
	// in a state reachable by some serial order: score in {-1, 0, 1}
	// and the invariant intact.
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			switch n % 3 {
			case 0:
				agg.ApplyVote(ctx, "churner", post.ID, 1)
			case 1:
				agg.ApplyVote(ctx, "churner", post.ID, -1)
			default:
				agg.RetractVote(ctx, "churner", post.ID)
			}
		}(i)
	}
	wg.Wait()

	result, err := store.Aggregate(ctx, post.ID)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if result.Score < -1 || result.Score > 1 {
		t.Errorf("single-voter score out of range: %+v", result)
	}
	if result.Score != result.Upvotes-result.Downvotes {
		t.Errorf("score invariant violated: %+v", result)
	}
	if result.Upvotes+result.Downvotes > 1 {
		t.Errorf("single voter holds more than one active vote: %+v", result)
	}
}
