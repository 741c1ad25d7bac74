package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCastVote_Success(t *testing.T) {
	env := newTestEnv(t)
	community := env.seedCommunity(t, "golang")
	post := env.seedPost(t, community.ID, "author", "Generics in practice")

	req := newRequest(t, http.MethodPut, "/items/"+post.ID+"/vote", CastVoteRequest{Value: 1}, "voter1")
	w := httptest.NewRecorder()

	env.vote.CastVote(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d, body: %s", w.Code, w.Body.String())
	}

	var resp VoteResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.ItemID != post.ID {
		t.Errorf("expected item_id %s, got %s", post.ID, resp.ItemID)
	}
	if resp.Score != 1 || resp.Upvotes != 1 || resp.Downvotes != 0 {
		t.Errorf("unexpected aggregate: score=%d up=%d down=%d", resp.Score, resp.Upvotes, resp.Downvotes)
	}
}

func TestCastVote_ChangeVote(t *testing.T) {
	env := newTestEnv(t)
	community := env.seedCommunity(t, "golang")
	post := env.seedPost(t, community.ID, "author", "Error wrapping")

	for _, value := range []int{1, -1} {
		req := newRequest(t, http.MethodPut, "/items/"+post.ID+"/vote", CastVoteRequest{Value: value}, "voter1")
		w := httptest.NewRecorder()
		env.vote.CastVote(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
	}

	req := newRequest(t, http.MethodPut, "/items/"+post.ID+"/vote", CastVoteRequest{Value: -1}, "voter1")
	w := httptest.NewRecorder()
	env.vote.CastVote(w, req)

	var resp VoteResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Score != -1 || resp.Upvotes != 0 || resp.Downvotes != 1 {
		t.Errorf("unexpected aggregate after change: score=%d up=%d down=%d", resp.Score, resp.Upvotes, resp.Downvotes)
	}
}

func TestCastVote_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)
	community := env.seedCommunity(t, "golang")
	post := env.seedPost(t, community.ID, "author", "Contexts")

	req := newRequest(t, http.MethodPut, "/items/"+post.ID+"/vote", CastVoteRequest{Value: 1}, "")
	w := httptest.NewRecorder()

	env.vote.CastVote(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Error.Code != ErrCodeAuthFailed {
		t.Errorf("expected code %s, got %s", ErrCodeAuthFailed, resp.Error.Code)
	}
}

func TestCastVote_SelfVote(t *testing.T) {
	env := newTestEnv(t)
	community := env.seedCommunity(t, "golang")
	post := env.seedPost(t, community.ID, "author", "Slices and maps")

	req := newRequest(t, http.MethodPut, "/items/"+post.ID+"/vote", CastVoteRequest{Value: 1}, "author")
	w := httptest.NewRecorder()

	env.vote.CastVote(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Error.Code != ErrCodeSelfVote {
		t.Errorf("expected code %s, got %s", ErrCodeSelfVote, resp.Error.Code)
	}
}

func TestCastVote_InvalidValue(t *testing.T) {
	env := newTestEnv(t)
	community := env.seedCommunity(t, "golang")
	post := env.seedPost(t, community.ID, "author", "Channels")

	for _, value := range []int{0, 2, -5} {
		req := newRequest(t, http.MethodPut, "/items/"+post.ID+"/vote", CastVoteRequest{Value: value}, "voter1")
		w := httptest.NewRecorder()

		env.vote.CastVote(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("value %d: expected status 400, got %d", value, w.Code)
		}
		if resp := decodeError(t, w); resp.Error.Code != ErrCodeInvalidVote {
			t.Errorf("value %d: expected code %s, got %s", value, ErrCodeInvalidVote, resp.Error.Code)
		}
	}
}

func TestCastVote_MissingItem(t *testing.T) {
	env := newTestEnv(t)

	req := newRequest(t, http.MethodPut, "/items/nope/vote", CastVoteRequest{Value: 1}, "voter1")
	w := httptest.NewRecorder()

	env.vote.CastVote(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
}

func TestCastVote_BadPath(t *testing.T) {
	env := newTestEnv(t)

	req := newRequest(t, http.MethodPut, "/items//vote", CastVoteRequest{Value: 1}, "voter1")
	w := httptest.NewRecorder()

	env.vote.CastVote(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestCastVote_InvalidJSON(t *testing.T) {
	env := newTestEnv(t)
	community := env.seedCommunity(t, "golang")
	post := env.seedPost(t, community.ID, "author", "Interfaces")

	req := newRequest(t, http.MethodPut, "/items/"+post.ID+"/vote", nil, "voter1")
	w := httptest.NewRecorder()

	env.vote.CastVote(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestRetractVote_Success(t *testing.T) {
	env := newTestEnv(t)
	community := env.seedCommunity(t, "golang")
	post := env.seedPost(t, community.ID, "author", "Testing patterns")

	cast := newRequest(t, http.MethodPut, "/items/"+post.ID+"/vote", CastVoteRequest{Value: 1}, "voter1")
	env.vote.CastVote(httptest.NewRecorder(), cast)

	req := newRequest(t, http.MethodDelete, "/items/"+post.ID+"/vote", nil, "voter1")
	w := httptest.NewRecorder()

	env.vote.RetractVote(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d, body: %s", w.Code, w.Body.String())
	}

	var resp VoteResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Score != 0 || resp.Upvotes != 0 || resp.Downvotes != 0 {
		t.Errorf("unexpected aggregate after retract: score=%d up=%d down=%d", resp.Score, resp.Upvotes, resp.Downvotes)
	}
}

func TestRetractVote_NoActiveVote(t *testing.T) {
	env := newTestEnv(t)
	community := env.seedCommunity(t, "golang")
	post := env.seedPost(t, community.ID, "author", "Build tags")

	req := newRequest(t, http.MethodDelete, "/items/"+post.ID+"/vote", nil, "voter1")
	w := httptest.NewRecorder()

	env.vote.RetractVote(w, req)

	// Retracting without an active vote is a no-op, not an error
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d, body: %s", w.Code, w.Body.String())
	}
}

func TestRetractVote_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)
	community := env.seedCommunity(t, "golang")
	post := env.seedPost(t, community.ID, "author", "Embedding")

	req := newRequest(t, http.MethodDelete, "/items/"+post.ID+"/vote", nil, "")
	w := httptest.NewRecorder()

	env.vote.RetractVote(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
}
