// Package presence maintains a live count of connected session members from
// a channel's presence events, suppressing flicker from brief disconnects
// with a per-key grace window.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultGraceWindow is how long a departed key may rejoin before its
// departure becomes visible in the count.
const DefaultGraceWindow = 10 * time.Second

// Role classifies a presence entry.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleParticipant Role = "participant"
)

// Meta is the payload announced for one presence key.
type Meta struct {
	Key  string `json:"key"`
	Role Role   `json:"role"`
}

// Handle is the presence surface of a channel. The snapshot returned by
// State is the authoritative source; event callbacks only hint at when to
// re-read it.
type Handle interface {
	Track(ctx context.Context, meta Meta) error
	State() []Meta
	OnJoin(fn func(meta Meta))
	OnLeave(fn func(meta Meta))
	OnSync(fn func())
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces the wall clock driving grace timers.
func WithClock(clock clockwork.Clock) Option {
	return func(t *Tracker) {
		t.clock = clock
	}
}

// WithGraceWindow overrides the leave grace window.
func WithGraceWindow(d time.Duration) Option {
	return func(t *Tracker) {
		t.graceWindow = d
	}
}

// Tracker announces its own presence and counts distinct other keys.
// Leaves are absorbed for a grace window before the count is recomputed, and
// every recount reads the current snapshot rather than decrementing, since
// intervening syncs may already have changed it.
type Tracker struct {
	self        Meta
	clock       clockwork.Clock
	graceWindow time.Duration

	mu           sync.Mutex
	handle       Handle
	grace        map[string]clockwork.Timer
	others       int
	participants int
	closed       bool
	onChange     func(participants int)
}

// NewTracker creates a tracker for the given local identity.
func NewTracker(self Meta, opts ...Option) *Tracker {
	t := &Tracker{
		self:        self,
		clock:       clockwork.NewRealClock(),
		graceWindow: DefaultGraceWindow,
		grace:       make(map[string]clockwork.Timer),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Bind registers the tracker's listeners on a channel's presence handle.
// Must run before the channel subscribes so no presence event is lost.
func (t *Tracker) Bind(handle Handle) {
	t.mu.Lock()
	t.handle = handle
	t.mu.Unlock()

	handle.OnSync(t.handleSync)
	handle.OnJoin(t.handleJoin)
	handle.OnLeave(t.handleLeave)
}

// Announce publishes the tracker's own presence. Idempotent; issued again
// after every reconnect. The tracker does not depend on ordering between
// this call and subscribe completion.
func (t *Tracker) Announce(ctx context.Context) error {
	t.mu.Lock()
	handle := t.handle
	t.mu.Unlock()
	if handle == nil {
		return nil
	}
	return handle.Track(ctx, t.self)
}

// Count returns the number of distinct presence keys other than our own.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.others
}

// ParticipantCount returns the count excluding admin entries.
func (t *Tracker) ParticipantCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.participants
}

// OnCountChange registers a handler fired whenever the participant count
// changes. The latest registered handler fires.
func (t *Tracker) OnCountChange(fn func(participants int)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

// Close cancels all pending grace timers. Must run on every channel
// teardown path.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for key, timer := range t.grace {
		timer.Stop()
		delete(t.grace, key)
	}
}

// handleSync recomputes from the snapshot. The snapshot is authoritative:
// it overrides any pending grace state immediately.
func (t *Tracker) handleSync() {
	t.recount()
}

func (t *Tracker) handleJoin(meta Meta) {
	if meta.Key == t.self.Key {
		return
	}

	t.mu.Lock()
	if timer, ok := t.grace[meta.Key]; ok {
		// Reconnect absorbed within the grace window; no visible flicker.
		timer.Stop()
		delete(t.grace, meta.Key)
		t.mu.Unlock()
		log.Debug().Str("key", meta.Key).Msg("presence rejoin within grace window")
		return
	}
	t.mu.Unlock()

	t.recount()
}

func (t *Tracker) handleLeave(meta Meta) {
	if meta.Key == t.self.Key {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if timer, ok := t.grace[meta.Key]; ok {
		timer.Stop()
	}
	key := meta.Key
	t.grace[key] = t.clock.AfterFunc(t.graceWindow, func() {
		t.graceExpired(key)
	})
}

// graceExpired runs when a departed key never rejoined. The count is
// recomputed from the snapshot at this moment, never blindly decremented.
func (t *Tracker) graceExpired(key string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	delete(t.grace, key)
	t.mu.Unlock()

	log.Debug().Str("key", key).Msg("presence leave confirmed after grace window")
	t.recount()
}

// recount rebuilds both counts from the current snapshot.
func (t *Tracker) recount() {
	t.mu.Lock()
	handle := t.handle
	if handle == nil || t.closed {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	snapshot := handle.State()

	others := 0
	participants := 0
	seen := make(map[string]bool, len(snapshot))
	for _, meta := range snapshot {
		if meta.Key == t.self.Key || seen[meta.Key] {
			continue
		}
		seen[meta.Key] = true
		others++
		if meta.Role != RoleAdmin {
			participants++
		}
	}

	t.mu.Lock()
	changed := participants != t.participants
	t.others = others
	t.participants = participants
	onChange := t.onChange
	t.mu.Unlock()

	if changed && onChange != nil {
		onChange(participants)
	}
}
