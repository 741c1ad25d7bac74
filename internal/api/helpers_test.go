package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banter-collective/banter/internal/content"
	"github.com/banter-collective/banter/internal/feed"
	"github.com/banter-collective/banter/internal/middleware"
	"github.com/banter-collective/banter/internal/vote"
)

// testEnv wires the handler set over a fresh in-memory store.
type testEnv struct {
	store   *content.InMemoryStore
	content *ContentHandlers
	feed    *FeedHandlers
	vote    *VoteHandlers
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := content.NewInMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	aggregator := vote.NewAggregator(store, logger, nil)
	assembler := feed.NewAssembler(store, logger)

	return &testEnv{
		store:   store,
		content: NewContentHandlers(store),
		feed:    NewFeedHandlers(assembler),
		vote:    NewVoteHandlers(aggregator),
	}
}

// newRequest builds a request with an optional JSON body and an
// optional authenticated viewer.
func newRequest(t *testing.T, method, path string, body any, viewerID string) *http.Request {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if viewerID != "" {
		req = req.WithContext(middleware.SetViewerID(req.Context(), viewerID))
	}
	return req
}

func (e *testEnv) seedCommunity(t *testing.T, name string) *content.Community {
	t.Helper()
	c := &content.Community{Name: name}
	if err := e.store.CreateCommunity(context.Background(), c); err != nil {
		t.Fatalf("failed to seed community: %v", err)
	}
	return c
}

func (e *testEnv) seedPost(t *testing.T, communityID, authorID, title string) *content.Item {
	t.Helper()
	item := &content.Item{
		Type:        content.TypeText,
		CommunityID: communityID,
		AuthorID:    authorID,
		Title:       title,
	}
	if err := e.store.CreatePost(context.Background(), item); err != nil {
		t.Fatalf("failed to seed post: %v", err)
	}
	return item
}

// decodeError parses the standard error envelope from a response.
func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse error response: %v, body: %s", err, w.Body.String())
	}
	return resp
}
