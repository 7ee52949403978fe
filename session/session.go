// Package session is the client-side sync layer for one conversation: an
// ordered local view fed by an initial snapshot (cache-sourced when
// offline), live diffs from the event stream, backward pagination and
// optimistic tentative state. Confirmed state always wins over tentative.
package session

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/parleyhq/parley/errs"
	"github.com/parleyhq/parley/types"
)

type Status int

const (
	StatusLive Status = iota
	// StatusDegraded means the live subscription could not be (re)established
	// within the retry ceiling. The local view stays usable.
	StatusDegraded
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusLive:
		return "live"
	case StatusDegraded:
		return "degraded"
	case StatusClosed:
		return "closed"
	}
	return "unknown"
}

// Loader fetches message pages, newest first.
type Loader interface {
	Messages(ctx context.Context, in types.ListMessages) (types.Page[types.Message], error)
}

// Streamer delivers live conversation events until ctx is done.
type Streamer interface {
	ConversationStream(ctx context.Context, conversationID string) (<-chan types.ConversationEvent, error)
}

// Cache is the offline snapshot store. Implementations may lose data at any
// time; the session treats it as best effort.
type Cache interface {
	Load(conversationID string) ([]types.Message, bool)
	Store(conversationID string, msgs []types.Message)
}

type UpdateKind string

const (
	UpdateDiff   UpdateKind = "diff"
	UpdateStatus UpdateKind = "status"
)

// Update is one incremental change pushed to the consumer. The full view is
// always available via Snapshot; updates never carry a destructive replace.
type Update struct {
	Kind   UpdateKind
	Event  *types.ConversationEvent
	Status Status
}

// Snapshot is the current merged view.
type Snapshot struct {
	Messages []types.Message
	// FromCache is true until the first live page lands.
	FromCache          bool
	Status             Status
	HasMore            bool
	ConversationStatus types.ConversationStatus
}

type Config struct {
	ConversationID string
	PageSize       uint
	Loader         Loader
	Streamer       Streamer
	Cache          Cache
	Logger         *slog.Logger
	// MaxRetries bounds subscription attempts before the session degrades.
	MaxRetries int
	Backoff    time.Duration
}

type Session struct {
	conversationID string
	pageSize       uint
	loader         Loader
	streamer       Streamer
	cache          Cache
	logger         *slog.Logger
	maxRetries     int
	backoff        time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	confirmed  []types.Message // ascending by seq
	tentative  []types.Message
	older      *string
	hasMore    bool
	fromCache  bool
	status     Status
	convStatus types.ConversationStatus

	updates chan Update
}

// Open seeds the session from cache, replaces the seed with the first live
// page, and starts the live subscription. A failed first page is not fatal
// when a cached snapshot exists; the session starts degraded instead.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.ConversationID == "" {
		return nil, errs.NewInvalidArgumentError("ConversationID", "Conversation ID is required")
	}

	if cfg.PageSize == 0 {
		cfg.PageSize = 25
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	runCtx, cancel := context.WithCancel(ctx)

	s := &Session{
		conversationID: cfg.ConversationID,
		pageSize:       cfg.PageSize,
		loader:         cfg.Loader,
		streamer:       cfg.Streamer,
		cache:          cfg.Cache,
		logger:         cfg.Logger,
		maxRetries:     cfg.MaxRetries,
		backoff:        cfg.Backoff,
		cancel:         cancel,
		hasMore:        true,
		fromCache:      true,
		status:         StatusLive,
		updates:        make(chan Update, 64),
	}

	if s.cache != nil {
		if cached, ok := s.cache.Load(s.conversationID); ok {
			s.confirmed = slices.Clone(cached)
		}
	}

	if err := s.refresh(ctx); err != nil {
		if len(s.confirmed) == 0 {
			cancel()
			return nil, err
		}

		// Cached view carries us; the stream loop will keep retrying.
		s.logger.Error("session initial page failed, serving cache", "error", err)
	}

	s.wg.Go(func() {
		s.run(runCtx)
	})

	return s, nil
}

// refresh replaces the seed with the newest live page.
func (s *Session) refresh(ctx context.Context) error {
	first := s.pageSize
	in := types.ListMessages{
		ConversationID: s.conversationID,
		PageArgs:       types.PageArgs{First: &first},
	}

	page, err := s.loader.Messages(ctx, in)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Pages come newest first; the local view is ascending.
	msgs := slices.Clone(page.Items)
	slices.Reverse(msgs)
	s.confirmed = msgs
	s.older = page.PageInfo.EndCursor
	s.hasMore = page.PageInfo.HasNextPage
	s.fromCache = false
	return nil
}

func (s *Session) run(ctx context.Context) {
	for {
		stream, err := s.subscribe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			s.setStatus(StatusDegraded)
			return
		}

		s.setStatus(StatusLive)

	consume:
		for {
			select {
			case ev, ok := <-stream:
				if !ok {
					break consume
				}
				s.Apply(ev)
			case <-ctx.Done():
				return
			}
		}

		if ctx.Err() != nil {
			return
		}
		// Stream dropped; go around and resubscribe.
	}
}

// subscribe retries with linear backoff up to the retry ceiling.
func (s *Session) subscribe(ctx context.Context) (<-chan types.ConversationEvent, error) {
	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * s.backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		stream, err := s.streamer.ConversationStream(ctx, s.conversationID)
		if err == nil {
			return stream, nil
		}

		lastErr = err
		s.logger.Error("session subscribe failed", "attempt", attempt+1, "error", err)
	}

	return nil, lastErr
}

func (s *Session) setStatus(status Status) {
	s.mu.Lock()
	changed := s.status != status && s.status != StatusClosed
	if changed {
		s.status = status
	}
	s.mu.Unlock()

	if changed {
		s.emit(Update{Kind: UpdateStatus, Status: status})
	}
}

func (s *Session) emit(u Update) {
	select {
	case s.updates <- u:
	default:
		// Consumer is not draining; drop rather than wedge the stream. The
		// full view stays correct via Snapshot.
		s.logger.Error("session update dropped", "kind", u.Kind)
	}
}

// Updates is the incremental feed. Consumers merge diffs or re-read
// Snapshot; the channel never replays history.
func (s *Session) Updates() <-chan Update {
	return s.updates
}

// Apply merges one confirmed event into the local view. Idempotent: the
// same append delivered twice inserts once.
func (s *Session) Apply(ev types.ConversationEvent) {
	s.mu.Lock()

	switch ev.Kind {
	case types.ConversationEventMessageAppended:
		if ev.Message != nil {
			s.insertConfirmed(*ev.Message)
		}
	case types.ConversationEventMessageUpdated, types.ConversationEventMessageDeleted:
		if ev.Message != nil {
			s.replaceConfirmed(*ev.Message)
		}
	case types.ConversationEventStatusChanged:
		s.convStatus = ev.Status
	}

	s.mu.Unlock()

	s.emit(Update{Kind: UpdateDiff, Event: &ev})
}

// insertConfirmed keeps ascending seq order and drops any tentative entry
// the confirmed message supersedes. Caller holds the lock.
func (s *Session) insertConfirmed(m types.Message) {
	s.dropTentative(m.ID)

	i, found := slices.BinarySearchFunc(s.confirmed, m, compareMessages)
	if found {
		return
	}

	s.confirmed = slices.Insert(s.confirmed, i, m)
}

func (s *Session) replaceConfirmed(m types.Message) {
	s.dropTentative(m.ID)

	for i := range s.confirmed {
		if s.confirmed[i].ID == m.ID {
			s.confirmed[i] = m
			return
		}
	}

	i, _ := slices.BinarySearchFunc(s.confirmed, m, compareMessages)
	s.confirmed = slices.Insert(s.confirmed, i, m)
}

func (s *Session) dropTentative(id string) {
	s.tentative = slices.DeleteFunc(s.tentative, func(t types.Message) bool {
		return t.ID == id
	})
}

func compareMessages(a, b types.Message) int {
	if a.Seq != b.Seq {
		if a.Seq < b.Seq {
			return -1
		}
		return 1
	}

	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

// LoadOlder fetches the next older page and prepends it. Reports whether
// more history remains.
func (s *Session) LoadOlder(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if !s.hasMore {
		s.mu.Unlock()
		return false, nil
	}
	after := s.older
	s.mu.Unlock()

	first := s.pageSize
	in := types.ListMessages{
		ConversationID: s.conversationID,
		PageArgs:       types.PageArgs{First: &first, After: after},
	}

	page, err := s.loader.Messages(ctx, in)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	older := slices.Clone(page.Items)
	slices.Reverse(older)
	for _, m := range older {
		s.insertConfirmed(m)
	}

	s.older = page.PageInfo.EndCursor
	s.hasMore = page.PageInfo.HasNextPage
	return s.hasMore, nil
}

// ApplyTentative records an optimistic local message. The id is a client
// temp id; it must not collide with server ids.
func (s *Session) ApplyTentative(m types.Message) {
	s.mu.Lock()
	s.tentative = append(s.tentative, m)
	s.mu.Unlock()
}

// Confirm swaps a tentative entry for its confirmed counterpart. When the
// confirmation already arrived via the stream, the stream's copy stands.
func (s *Session) Confirm(tempID string, confirmed types.Message) {
	s.mu.Lock()
	s.dropTentative(tempID)
	s.insertConfirmed(confirmed)
	s.mu.Unlock()
}

// Rollback removes a tentative entry after a failed send. It never touches
// confirmed state, so a confirmation that raced in via the stream survives.
func (s *Session) Rollback(tempID string) {
	s.mu.Lock()
	s.dropTentative(tempID)
	s.mu.Unlock()
}

// Snapshot returns the merged view: confirmed history in seq order followed
// by tentative entries in application order.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := make([]types.Message, 0, len(s.confirmed)+len(s.tentative))
	msgs = append(msgs, s.confirmed...)
	msgs = append(msgs, s.tentative...)

	return Snapshot{
		Messages:           msgs,
		FromCache:          s.fromCache,
		Status:             s.status,
		HasMore:            s.hasMore,
		ConversationStatus: s.convStatus,
	}
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Close stops delivery, persists the confirmed view to the cache and
// releases cursor state.
func (s *Session) Close() error {
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.status = StatusClosed
	confirmed := slices.Clone(s.confirmed)
	s.mu.Unlock()

	if s.cache != nil {
		s.cache.Store(s.conversationID, confirmed)
	}

	close(s.updates)
	return nil
}
