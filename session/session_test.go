package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/parleyhq/parley/types"
)

func msg(id string, seq int64) types.Message {
	return types.Message{ID: id, ConversationID: "conv1", Seq: seq, Text: "m" + id}
}

func page(hasMore bool, endCursor string, msgs ...types.Message) types.Page[types.Message] {
	p := types.Page[types.Message]{Items: msgs}
	p.PageInfo.HasNextPage = hasMore
	if endCursor != "" {
		p.PageInfo.EndCursor = &endCursor
	}
	return p
}

type fakeLoader struct {
	mu    sync.Mutex
	pages []types.Page[types.Message]
	calls int
	err   error
}

func (f *fakeLoader) Messages(ctx context.Context, in types.ListMessages) (types.Page[types.Message], error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return types.Page[types.Message]{}, f.err
	}

	if f.calls >= len(f.pages) {
		return types.Page[types.Message]{}, nil
	}

	p := f.pages[f.calls]
	f.calls++
	return p, nil
}

type fakeStreamer struct {
	mu       sync.Mutex
	events   chan types.ConversationEvent
	failures int
	attempts int
}

func (f *fakeStreamer) ConversationStream(ctx context.Context, conversationID string) (<-chan types.ConversationEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.attempts++
	if f.attempts <= f.failures {
		return nil, errors.New("stream unavailable")
	}

	if f.events == nil {
		f.events = make(chan types.ConversationEvent)
	}
	return f.events, nil
}

func openTestSession(t *testing.T, loader *fakeLoader, streamer *fakeStreamer, cache Cache) *Session {
	t.Helper()

	s, err := Open(t.Context(), Config{
		ConversationID: "conv1",
		PageSize:       3,
		Loader:         loader,
		Streamer:       streamer,
		Cache:          cache,
		MaxRetries:     2,
		Backoff:        time.Millisecond,
	})
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestOpen_liveReplacesCacheSeed(t *testing.T) {
	cache := NewMemoryCache()
	cache.Store("conv1", []types.Message{msg("stale", 1)})

	loader := &fakeLoader{pages: []types.Page[types.Message]{
		page(false, "", msg("b", 2), msg("a", 1)),
	}}

	s := openTestSession(t, loader, &fakeStreamer{}, cache)
	defer s.Close()

	snap := s.Snapshot()
	if snap.FromCache {
		t.Fatal("snapshot still tagged from-cache after live page")
	}
	if len(snap.Messages) != 2 || snap.Messages[0].ID != "a" || snap.Messages[1].ID != "b" {
		t.Fatalf("unexpected snapshot order: %+v", snap.Messages)
	}
}

func TestOpen_cacheCarriesWhenLoaderFails(t *testing.T) {
	cache := NewMemoryCache()
	cache.Store("conv1", []types.Message{msg("a", 1)})

	loader := &fakeLoader{err: errors.New("offline")}

	s := openTestSession(t, loader, &fakeStreamer{failures: 100}, cache)
	defer s.Close()

	snap := s.Snapshot()
	if !snap.FromCache {
		t.Fatal("snapshot should be tagged from-cache")
	}
	if len(snap.Messages) != 1 || snap.Messages[0].ID != "a" {
		t.Fatalf("unexpected cached snapshot: %+v", snap.Messages)
	}
}

func TestOpen_failsWithoutCacheOrLoader(t *testing.T) {
	loader := &fakeLoader{err: errors.New("offline")}

	_, err := Open(t.Context(), Config{
		ConversationID: "conv1",
		Loader:         loader,
		Streamer:       &fakeStreamer{},
	})
	if err == nil {
		t.Fatal("want error when no cache and first page fails")
	}
}

func TestApply_ordersAndDeduplicates(t *testing.T) {
	loader := &fakeLoader{}
	s := openTestSession(t, loader, &fakeStreamer{}, nil)
	defer s.Close()

	m2 := msg("b", 2)
	m1 := msg("a", 1)

	s.Apply(types.ConversationEvent{Kind: types.ConversationEventMessageAppended, ConversationID: "conv1", Message: &m2})
	s.Apply(types.ConversationEvent{Kind: types.ConversationEventMessageAppended, ConversationID: "conv1", Message: &m1})
	// At-least-once delivery: the duplicate must not double-insert.
	s.Apply(types.ConversationEvent{Kind: types.ConversationEventMessageAppended, ConversationID: "conv1", Message: &m2})

	snap := s.Snapshot()
	if len(snap.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(snap.Messages))
	}
	if snap.Messages[0].ID != "a" || snap.Messages[1].ID != "b" {
		t.Fatalf("unexpected order: %+v", snap.Messages)
	}
}

func TestApply_updateAndDelete(t *testing.T) {
	s := openTestSession(t, &fakeLoader{}, &fakeStreamer{}, nil)
	defer s.Close()

	m := msg("a", 1)
	s.Apply(types.ConversationEvent{Kind: types.ConversationEventMessageAppended, ConversationID: "conv1", Message: &m})

	edited := m
	edited.Text = "edited"
	s.Apply(types.ConversationEvent{Kind: types.ConversationEventMessageUpdated, ConversationID: "conv1", Message: &edited})

	if got := s.Snapshot().Messages[0].Text; got != "edited" {
		t.Fatalf("got text %q, want %q", got, "edited")
	}

	deleted := edited
	deleted.IsDeleted = true
	deleted.Text = ""
	s.Apply(types.ConversationEvent{Kind: types.ConversationEventMessageDeleted, ConversationID: "conv1", Message: &deleted})

	snap := s.Snapshot()
	if len(snap.Messages) != 1 {
		t.Fatalf("soft delete must keep the row, got %d messages", len(snap.Messages))
	}
	if !snap.Messages[0].IsDeleted {
		t.Fatal("message not marked deleted")
	}
}

func TestApply_statusChanged(t *testing.T) {
	s := openTestSession(t, &fakeLoader{}, &fakeStreamer{}, nil)
	defer s.Close()

	s.Apply(types.ConversationEvent{Kind: types.ConversationEventStatusChanged, ConversationID: "conv1", Status: types.ConversationStatusAccepted})

	if got := s.Snapshot().ConversationStatus; got != types.ConversationStatusAccepted {
		t.Fatalf("got status %q, want accepted", got)
	}
}

func TestLoadOlder_prependsAndTracksCursor(t *testing.T) {
	loader := &fakeLoader{pages: []types.Page[types.Message]{
		page(true, "cur1", msg("d", 4), msg("c", 3)),
		page(false, "cur2", msg("b", 2), msg("a", 1)),
	}}

	s := openTestSession(t, loader, &fakeStreamer{}, nil)
	defer s.Close()

	more, err := s.LoadOlder(t.Context())
	if err != nil {
		t.Fatalf("load older: %v", err)
	}
	if more {
		t.Fatal("want no more history")
	}

	snap := s.Snapshot()
	want := []string{"a", "b", "c", "d"}
	if len(snap.Messages) != len(want) {
		t.Fatalf("got %d messages, want %d", len(snap.Messages), len(want))
	}
	for i, id := range want {
		if snap.Messages[i].ID != id {
			t.Fatalf("position %d: got %q, want %q", i, snap.Messages[i].ID, id)
		}
	}

	// Exhausted history: no further loads.
	if more, err := s.LoadOlder(t.Context()); err != nil || more {
		t.Fatalf("got (%v, %v), want (false, nil)", more, err)
	}
}

func TestOptimistic_confirmSwapsTentative(t *testing.T) {
	s := openTestSession(t, &fakeLoader{}, &fakeStreamer{}, nil)
	defer s.Close()

	s.ApplyTentative(types.Message{ID: "temp-1", ConversationID: "conv1", Text: "hi"})

	snap := s.Snapshot()
	if len(snap.Messages) != 1 || snap.Messages[0].ID != "temp-1" {
		t.Fatalf("tentative missing: %+v", snap.Messages)
	}

	s.Confirm("temp-1", msg("real-1", 1))

	snap = s.Snapshot()
	if len(snap.Messages) != 1 || snap.Messages[0].ID != "real-1" {
		t.Fatalf("confirm did not swap: %+v", snap.Messages)
	}
}

func TestOptimistic_rollbackNeverRemovesConfirmed(t *testing.T) {
	s := openTestSession(t, &fakeLoader{}, &fakeStreamer{}, nil)
	defer s.Close()

	s.ApplyTentative(types.Message{ID: "temp-1", ConversationID: "conv1", Text: "hi"})

	// The confirmation raced in via the stream before the caller got its
	// response.
	confirmed := msg("real-1", 1)
	s.Apply(types.ConversationEvent{Kind: types.ConversationEventMessageAppended, ConversationID: "conv1", Message: &confirmed})

	s.Rollback("temp-1")

	snap := s.Snapshot()
	if len(snap.Messages) != 1 || snap.Messages[0].ID != "real-1" {
		t.Fatalf("rollback clobbered confirmed state: %+v", snap.Messages)
	}
}

func TestStream_deliversDiffs(t *testing.T) {
	streamer := &fakeStreamer{events: make(chan types.ConversationEvent)}
	s := openTestSession(t, &fakeLoader{}, streamer, nil)
	defer s.Close()

	m := msg("a", 1)
	streamer.events <- types.ConversationEvent{Kind: types.ConversationEventMessageAppended, ConversationID: "conv1", Message: &m}

	waitFor(t, func() bool {
		snap := s.Snapshot()
		return len(snap.Messages) == 1 && snap.Messages[0].ID == "a"
	})
}

func TestStream_degradesAfterRetryCeiling(t *testing.T) {
	streamer := &fakeStreamer{failures: 100}
	s := openTestSession(t, &fakeLoader{}, streamer, nil)
	defer s.Close()

	waitFor(t, func() bool {
		return s.Status() == StatusDegraded
	})
}

func TestClose_persistsSnapshot(t *testing.T) {
	cache := NewMemoryCache()
	loader := &fakeLoader{pages: []types.Page[types.Message]{
		page(false, "", msg("a", 1)),
	}}

	s := openTestSession(t, loader, &fakeStreamer{}, cache)

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	cached, ok := cache.Load("conv1")
	if !ok || len(cached) != 1 || cached[0].ID != "a" {
		t.Fatalf("cache not persisted: %v %+v", ok, cached)
	}
}
