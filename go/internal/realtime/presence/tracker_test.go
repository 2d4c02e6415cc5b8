package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHandle is an in-memory presence handle driven directly by tests.
type fakeHandle struct {
	mu      sync.Mutex
	state   []Meta
	tracked []Meta
	onJoin  func(Meta)
	onLeave func(Meta)
	onSync  func()
}

func (h *fakeHandle) Track(_ context.Context, meta Meta) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tracked = append(h.tracked, meta)
	return nil
}

func (h *fakeHandle) State() []Meta {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Meta(nil), h.state...)
}

func (h *fakeHandle) OnJoin(fn func(Meta))  { h.onJoin = fn }
func (h *fakeHandle) OnLeave(fn func(Meta)) { h.onLeave = fn }
func (h *fakeHandle) OnSync(fn func())      { h.onSync = fn }

// setState replaces the snapshot without firing any event.
func (h *fakeHandle) setState(state ...Meta) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = state
}

// join updates the snapshot and fires the join event.
func (h *fakeHandle) join(meta Meta) {
	h.mu.Lock()
	h.state = append(h.state, meta)
	h.mu.Unlock()
	h.onJoin(meta)
}

// leave removes the key from the snapshot and fires the leave event.
func (h *fakeHandle) leave(meta Meta) {
	h.mu.Lock()
	kept := h.state[:0]
	for _, m := range h.state {
		if m.Key != meta.Key {
			kept = append(kept, m)
		}
	}
	h.state = kept
	h.mu.Unlock()
	h.onLeave(meta)
}

func newTestTracker(t *testing.T) (*Tracker, *fakeHandle, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	tracker := NewTracker(Meta{Key: "self", Role: RoleParticipant}, WithClock(clock))
	handle := &fakeHandle{}
	tracker.Bind(handle)
	return tracker, handle, clock
}

func TestSyncRecomputesFromSnapshot(t *testing.T) {
	tracker, handle, _ := newTestTracker(t)

	handle.setState(
		Meta{Key: "self", Role: RoleParticipant},
		Meta{Key: "p1", Role: RoleParticipant},
		Meta{Key: "p2", Role: RoleParticipant},
		Meta{Key: "host", Role: RoleAdmin},
	)
	handle.onSync()

	assert.Equal(t, 3, tracker.Count(), "all distinct other keys")
	assert.Equal(t, 2, tracker.ParticipantCount(), "admins excluded")
}

func TestLeaveThenRejoinWithinGraceWindowIsInvisible(t *testing.T) {
	tracker, handle, clock := newTestTracker(t)

	var changes []int
	tracker.OnCountChange(func(n int) { changes = append(changes, n) })

	handle.setState(Meta{Key: "p1", Role: RoleParticipant})
	handle.onSync()
	require.Equal(t, 1, tracker.ParticipantCount())
	changes = nil

	handle.leave(Meta{Key: "p1", Role: RoleParticipant})
	assert.Equal(t, 1, tracker.ParticipantCount(), "leave deferred by grace window")

	clock.Advance(5 * time.Second)
	handle.join(Meta{Key: "p1", Role: RoleParticipant})
	assert.Equal(t, 1, tracker.ParticipantCount())

	// The cancelled grace timer must not fire later.
	clock.Advance(20 * time.Second)
	assert.Equal(t, 1, tracker.ParticipantCount())
	assert.Empty(t, changes, "count never visibly changed")
}

func TestLeaveWithoutRejoinCountsDownAfterGrace(t *testing.T) {
	tracker, handle, clock := newTestTracker(t)

	handle.setState(
		Meta{Key: "p1", Role: RoleParticipant},
		Meta{Key: "p2", Role: RoleParticipant},
	)
	handle.onSync()
	require.Equal(t, 2, tracker.ParticipantCount())

	handle.leave(Meta{Key: "p1", Role: RoleParticipant})
	assert.Equal(t, 2, tracker.ParticipantCount())

	clock.Advance(DefaultGraceWindow + time.Second)
	assert.Equal(t, 1, tracker.ParticipantCount())
}

func TestGraceExpiryRecountsFromCurrentSnapshotNotDecrement(t *testing.T) {
	tracker, handle, clock := newTestTracker(t)

	handle.setState(Meta{Key: "p1", Role: RoleParticipant})
	handle.onSync()
	require.Equal(t, 1, tracker.ParticipantCount())

	handle.leave(Meta{Key: "p1", Role: RoleParticipant})

	// An intervening sync already removed p1 and added two newcomers. The
	// grace expiry must land on the snapshot's truth, not 1-1=0.
	handle.setState(
		Meta{Key: "p2", Role: RoleParticipant},
		Meta{Key: "p3", Role: RoleParticipant},
	)
	handle.onSync()
	require.Equal(t, 2, tracker.ParticipantCount())

	clock.Advance(DefaultGraceWindow + time.Second)
	assert.Equal(t, 2, tracker.ParticipantCount())
}

func TestIndependentGraceTimersPerKey(t *testing.T) {
	tracker, handle, clock := newTestTracker(t)

	handle.setState(
		Meta{Key: "p1", Role: RoleParticipant},
		Meta{Key: "p2", Role: RoleParticipant},
	)
	handle.onSync()

	handle.leave(Meta{Key: "p1", Role: RoleParticipant})
	clock.Advance(4 * time.Second)
	handle.leave(Meta{Key: "p2", Role: RoleParticipant})

	clock.Advance(7 * time.Second)
	assert.Equal(t, 1, tracker.ParticipantCount(), "only p1's window has elapsed")

	clock.Advance(4 * time.Second)
	assert.Equal(t, 0, tracker.ParticipantCount())
}

func TestDuplicateKeysCountedOnce(t *testing.T) {
	tracker, handle, _ := newTestTracker(t)

	handle.setState(
		Meta{Key: "p1", Role: RoleParticipant},
		Meta{Key: "p1", Role: RoleParticipant},
	)
	handle.onSync()
	assert.Equal(t, 1, tracker.ParticipantCount())
}

func TestCloseCancelsPendingGraceTimers(t *testing.T) {
	tracker, handle, clock := newTestTracker(t)

	handle.setState(Meta{Key: "p1", Role: RoleParticipant})
	handle.onSync()
	handle.leave(Meta{Key: "p1", Role: RoleParticipant})

	tracker.Close()
	clock.Advance(DefaultGraceWindow + time.Second)
	assert.Equal(t, 1, tracker.ParticipantCount(), "no recount after close")
}

func TestAnnouncePublishesSelfMeta(t *testing.T) {
	tracker, handle, _ := newTestTracker(t)

	require.NoError(t, tracker.Announce(context.Background()))
	require.Len(t, handle.tracked, 1)
	assert.Equal(t, "self", handle.tracked[0].Key)
	assert.Equal(t, RoleParticipant, handle.tracked[0].Role)
}
