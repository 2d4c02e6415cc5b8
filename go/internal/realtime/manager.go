// Package realtime owns the lifecycle of one pub/sub channel per session:
// connect, register listeners, subscribe, surface status transitions, and
// tear down cleanly. Presence tracking composes in when requested.
package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/realtime/events"
	"github.com/mcdev12/livepoll/go/internal/realtime/presence"
)

// DefaultHandshakeTimeout bounds the subscribe handshake. A handshake that
// never reports is treated as disconnected, terminal until an external retry.
const DefaultHandshakeTimeout = 10 * time.Second

// Status is the externally observable connection state of a managed channel.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusDisconnected Status = "disconnected"
)

// Config describes one managed channel.
type Config struct {
	// SessionID is the session's public id. Empty disables the manager.
	SessionID string

	// Disabled is a caller opt-out; the manager reports disconnected and
	// never touches the transport.
	Disabled bool

	// Setup registers the caller's broadcast handlers. It runs with the
	// channel handle before the subscribe handshake starts, so no delivered
	// message can race past an unregistered handler.
	Setup func(ch Channel)

	// Presence, when non-nil, announces this identity on the channel and
	// maintains a live participant count.
	Presence *presence.Meta

	// HandshakeTimeout overrides DefaultHandshakeTimeout when positive.
	HandshakeTimeout time.Duration
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock replaces the wall clock driving handshake timeouts and presence
// grace timers.
func WithClock(clock clockwork.Clock) ManagerOption {
	return func(m *Manager) {
		m.clock = clock
	}
}

// Manager owns one channel for one session topic.
type Manager struct {
	transport Transport
	cfg       Config
	clock     clockwork.Clock

	mu            sync.Mutex
	ch            Channel
	tracker       *presence.Tracker
	status        Status
	everConnected bool
	handshake     clockwork.Timer
	statusFns     []func(old, new Status)
}

// NewManager creates a manager. A disabled configuration (no session id or
// explicit opt-out) starts disconnected and stays there.
func NewManager(transport Transport, cfg Config, opts ...ManagerOption) *Manager {
	m := &Manager{
		transport: transport,
		cfg:       cfg,
		clock:     clockwork.NewRealClock(),
		status:    StatusConnecting,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled() {
		m.status = StatusDisconnected
	}
	return m
}

func (m *Manager) disabled() bool {
	return m.cfg.Disabled || m.cfg.SessionID == ""
}

// Status returns the current connection status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// HasConnected reports whether the channel has completed at least one
// handshake. Distinguishes an initial connect from a recovery.
func (m *Manager) HasConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.everConnected
}

// OnStatusChange registers an observer of status transitions. Observers see
// both the prior and new status so a recovery (reconnecting -> connected)
// is distinguishable from an initial connect.
func (m *Manager) OnStatusChange(fn func(old, new Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusFns = append(m.statusFns, fn)
}

// Tracker returns the presence tracker, or nil when presence was not
// requested.
func (m *Manager) Tracker() *presence.Tracker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tracker
}

// Open creates the channel, runs setup, and starts the subscribe handshake.
// Opening while a channel already exists tears the previous one down first;
// two channels never run concurrently for the same logical session.
func (m *Manager) Open(ctx context.Context) error {
	if m.disabled() {
		return nil
	}

	m.mu.Lock()
	m.teardownLocked()
	m.mu.Unlock()

	m.setStatus(StatusConnecting)

	topic := SessionTopic(m.cfg.SessionID)
	ch, err := m.transport.Channel(topic)
	if err != nil {
		m.setStatus(StatusDisconnected)
		return err
	}

	// Caller handlers first, then presence listeners, all before subscribe.
	if m.cfg.Setup != nil {
		m.cfg.Setup(ch)
	}

	var tracker *presence.Tracker
	if m.cfg.Presence != nil {
		tracker = presence.NewTracker(*m.cfg.Presence, presence.WithClock(m.clock))
		tracker.Bind(ch.Presence())
	}

	m.mu.Lock()
	m.ch = ch
	m.tracker = tracker
	m.handshake = m.clock.AfterFunc(m.handshakeTimeout(), m.handshakeTimedOut)
	m.mu.Unlock()

	if err := ch.Subscribe(ctx, func(st SubscribeStatus, cause error) {
		m.handleSubscribeStatus(ctx, st, cause)
	}); err != nil {
		m.setStatus(StatusDisconnected)
		return err
	}
	return nil
}

func (m *Manager) handshakeTimeout() time.Duration {
	if m.cfg.HandshakeTimeout > 0 {
		return m.cfg.HandshakeTimeout
	}
	return DefaultHandshakeTimeout
}

func (m *Manager) handshakeTimedOut() {
	m.mu.Lock()
	pending := m.status == StatusConnecting
	m.mu.Unlock()
	if !pending {
		return
	}
	log.Warn().Str("session_id", m.cfg.SessionID).Msg("subscribe handshake timed out")
	m.setStatus(StatusDisconnected)
}

func (m *Manager) handleSubscribeStatus(ctx context.Context, st SubscribeStatus, cause error) {
	switch st {
	case SubscribeOK:
		m.mu.Lock()
		if m.handshake != nil {
			m.handshake.Stop()
			m.handshake = nil
		}
		m.everConnected = true
		tracker := m.tracker
		m.mu.Unlock()

		m.setStatus(StatusConnected)

		// Announce only after the handshake reports success: the transport
		// buffers presence tracking differently from broadcast sends, so
		// this ordering is load-bearing.
		if tracker != nil {
			if err := tracker.Announce(ctx); err != nil {
				log.Error().Err(err).Str("session_id", m.cfg.SessionID).Msg("presence announce failed")
			}
		}

	case SubscribeError:
		// The transport retries on its own; reconciliation repairs anything
		// missed once it reports OK again.
		log.Warn().Err(cause).Str("session_id", m.cfg.SessionID).Msg("channel degraded")
		m.setStatus(StatusReconnecting)

	case SubscribeTimedOut:
		m.setStatus(StatusDisconnected)
	}
}

// Send publishes a broadcast. Refused until the handshake has completed:
// pre-subscribe sends are unreliable and never relied on.
func (m *Manager) Send(ctx context.Context, eventType events.EventType, payload interface{}) error {
	m.mu.Lock()
	ch := m.ch
	connected := m.status == StatusConnected
	m.mu.Unlock()

	if ch == nil || !connected {
		return ErrNotConnected
	}
	return ch.Send(ctx, eventType, payload)
}

// Close tears the channel down: unsubscribe, destroy, and cancel any pending
// presence grace timers. Runs on every exit path and is idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	m.teardownLocked()
	m.mu.Unlock()
	m.setStatus(StatusDisconnected)
}

// teardownLocked releases the current channel and its timers. Callers hold m.mu.
func (m *Manager) teardownLocked() {
	if m.handshake != nil {
		m.handshake.Stop()
		m.handshake = nil
	}
	if m.tracker != nil {
		m.tracker.Close()
		m.tracker = nil
	}
	if m.ch != nil {
		if err := m.ch.Unsubscribe(); err != nil {
			log.Error().Err(err).Str("session_id", m.cfg.SessionID).Msg("channel unsubscribe failed")
		}
		m.ch = nil
	}
}

func (m *Manager) setStatus(next Status) {
	m.mu.Lock()
	prev := m.status
	if prev == next {
		m.mu.Unlock()
		return
	}
	m.status = next
	fns := append(([]func(old, new Status))(nil), m.statusFns...)
	m.mu.Unlock()

	log.Debug().
		Str("session_id", m.cfg.SessionID).
		Str("from", string(prev)).
		Str("to", string(next)).
		Msg("channel status changed")

	for _, fn := range fns {
		fn(prev, next)
	}
}
