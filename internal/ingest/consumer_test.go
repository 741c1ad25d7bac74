package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/banter-collective/banter/internal/content"
	"github.com/banter-collective/banter/internal/vote"
)

func newConsumerFixture(t *testing.T) (*Consumer, *content.InMemoryStore, *content.Item) {
	t.Helper()
	ctx := context.Background()
	store := content.NewInMemoryStore()

	community := &content.Community{Name: "gophers"}
	if err := store.CreateCommunity(ctx, community); err != nil {
		t.Fatalf("CreateCommunity failed: %v", err)
	}
	post := &content.Item{
		Type:        content.TypeText,
		CommunityID: community.ID,
		AuthorID:    "author",
		Title:       "streamed",
	}
	if err := store.CreatePost(ctx, post); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	agg := vote.NewAggregator(store, nil, nil)
	return NewConsumer(agg, nil, nil), store, post
}

func mustEncode(t *testing.T, ev VoteEvent) []byte {
	t.Helper()
	data, err := EncodeEvent(&ev)
	if err != nil {
		t.Fatalf("EncodeEvent() error = %v", err)
	}
	return data
}

func TestHandleMessage_AppliesVoteAndRetract(t *testing.T) {
	consumer, store, post := newConsumerFixture(t)
	ctx := context.Background()

	frame := mustEncode(t, VoteEvent{Kind: KindVote, ItemID: post.ID, VoterID: "v1", Value: 1})
	if err := consumer.HandleMessage(websocket.BinaryMessage, frame); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	agg, err := store.Aggregate(ctx, post.ID)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if agg.Score != 1 {
		t.Errorf("score after streamed upvote = %d, want 1", agg.Score)
	}

	frame = mustEncode(t, VoteEvent{Kind: KindRetract, ItemID: post.ID, VoterID: "v1"})
	if err := consumer.HandleMessage(websocket.BinaryMessage, frame); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	agg, _ = store.Aggregate(ctx, post.ID)
	if agg.Score != 0 {
		t.Errorf("score after streamed retract = %d, want 0", agg.Score)
	}
}

func TestHandleMessage_MalformedFrameIsSkipped(t *testing.T) {
	consumer, _, _ := newConsumerFixture(t)

	// Bad frames must not kill the connection.
	if err := consumer.HandleMessage(websocket.BinaryMessage, []byte{0xff}); err != nil {
		t.Errorf("malformed frame should be skipped, got %v", err)
	}
	if err := consumer.HandleMessage(websocket.BinaryMessage, nil); err != nil {
		t.Errorf("empty frame should be skipped, got %v", err)
	}
}

func TestHandleMessage_RejectionsAreSkipped(t *testing.T) {
	consumer, _, post := newConsumerFixture(t)

	frames := [][]byte{
		// Unknown item: deterministic rejection, replay would not help.
		mustEncode(t, VoteEvent{Kind: KindVote, ItemID: "no-such-item", VoterID: "v1", Value: 1}),
		// Self-vote.
		mustEncode(t, VoteEvent{Kind: KindVote, ItemID: post.ID, VoterID: "author", Value: 1}),
	}
	for _, frame := range frames {
		if err := consumer.HandleMessage(websocket.BinaryMessage, frame); err != nil {
			t.Errorf("rejected event should be skipped, got %v", err)
		}
	}
}

type failingApplier struct{ err error }

func (f *failingApplier) ApplyVote(ctx context.Context, voterID, itemID string, value int) (content.VoteAggregate, error) {
	return content.VoteAggregate{}, f.err
}

func (f *failingApplier) RetractVote(ctx context.Context, voterID, itemID string) (content.VoteAggregate, error) {
	return content.VoteAggregate{}, f.err
}

func TestHandleMessage_TransientFailurePropagates(t *testing.T) {
	storeDown := errors.New("connection refused")
	consumer := NewConsumer(&failingApplier{err: storeDown}, nil, nil)

	frame := mustEncode(t, VoteEvent{Kind: KindVote, ItemID: "i1", VoterID: "v1", Value: 1})
	if err := consumer.HandleMessage(websocket.BinaryMessage, frame); !errors.Is(err, storeDown) {
		t.Errorf("transient failure should force a reconnect, got %v", err)
	}
}

func TestHandleMessage_Metrics(t *testing.T) {
	m := NewMetrics()
	_, store, post := newConsumerFixture(t)
	agg := vote.NewAggregator(store, nil, nil)
	consumer := NewConsumer(agg, nil, m)

	frames := [][]byte{
		mustEncode(t, VoteEvent{Kind: KindVote, ItemID: post.ID, VoterID: "v1", Value: 1}),
		mustEncode(t, VoteEvent{Kind: KindVote, ItemID: "missing", VoterID: "v1", Value: 1}),
		{0xff},
	}
	for _, frame := range frames {
		if err := consumer.HandleMessage(websocket.BinaryMessage, frame); err != nil {
			t.Fatalf("HandleMessage() error = %v", err)
		}
	}

	if got := counterValue(t, m.eventsApplied); got != 1 {
		t.Errorf("applied = %f, want 1", got)
	}
	if got := counterValue(t, m.eventsRejected); got != 1 {
		t.Errorf("rejected = %f, want 1", got)
	}
	if got := counterValue(t, m.decodeErrors); got != 1 {
		t.Errorf("decode errors = %f, want 1", got)
	}
}
