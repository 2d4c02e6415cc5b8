package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/realtime/events"
	"github.com/mcdev12/livepoll/go/internal/realtime/presence"
)

// NATSConfig holds configuration for the NATS transport.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	FlushTimeout  time.Duration
	// PresenceQueryWindow bounds how long a presence snapshot query gathers
	// replies from other members.
	PresenceQueryWindow time.Duration
}

// DefaultNATSConfig returns default NATS transport configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:                 nats.DefaultURL,
		SubjectPrefix:       "livepoll",
		MaxReconnects:       -1, // Infinite
		ReconnectWait:       2 * time.Second,
		FlushTimeout:        5 * time.Second,
		PresenceQueryWindow: 250 * time.Millisecond,
	}
}

// NATSTransport implements Transport over core NATS pub/sub. Broadcasts are
// fire-and-forget; a client that was disconnected repairs itself through
// reconciliation, never through redelivery.
type NATSTransport struct {
	nc  *nats.Conn
	cfg NATSConfig

	mu       sync.Mutex
	channels map[*natsChannel]bool
}

// NewNATSTransport connects to NATS and maps connection-level transitions
// onto every open channel's status callback.
func NewNATSTransport(cfg NATSConfig) (*NATSTransport, error) {
	t := &NATSTransport{
		cfg:      cfg,
		channels: make(map[*natsChannel]bool),
	}

	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
			t.fanStatus(SubscribeError, err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
			t.fanStatus(SubscribeOK, nil)
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	t.nc = nc
	return t, nil
}

// Channel creates a channel for the given topic.
func (t *NATSTransport) Channel(topic string) (Channel, error) {
	ch := &natsChannel{
		transport: t,
		topic:     topic,
		handlers:  make(map[events.EventType][]func(env *events.Envelope)),
	}
	ch.pres = &natsPresence{ch: ch}

	t.mu.Lock()
	t.channels[ch] = true
	t.mu.Unlock()
	return ch, nil
}

// Close drains the connection. Channels report disconnected afterwards.
func (t *NATSTransport) Close() {
	if t.nc != nil {
		t.nc.Close()
	}
}

func (t *NATSTransport) fanStatus(st SubscribeStatus, err error) {
	t.mu.Lock()
	chans := make([]*natsChannel, 0, len(t.channels))
	for ch := range t.channels {
		chans = append(chans, ch)
	}
	t.mu.Unlock()

	for _, ch := range chans {
		ch.notifyStatus(st, err)
		if st == SubscribeOK {
			ch.pres.fireSync()
		}
	}
}

func (t *NATSTransport) remove(ch *natsChannel) {
	t.mu.Lock()
	delete(t.channels, ch)
	t.mu.Unlock()
}

type natsChannel struct {
	transport *NATSTransport
	topic     string

	mu       sync.Mutex
	handlers map[events.EventType][]func(env *events.Envelope)
	statusFn func(SubscribeStatus, error)
	subs     []*nats.Subscription
	pres     *natsPresence
	closed   bool
}

func (c *natsChannel) subject(parts ...string) string {
	s := c.transport.cfg.SubjectPrefix + "." + c.topic
	for _, p := range parts {
		s += "." + p
	}
	return s
}

func (c *natsChannel) OnBroadcast(eventType events.EventType, fn func(env *events.Envelope)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[eventType] = append(c.handlers[eventType], fn)
}

func (c *natsChannel) Subscribe(ctx context.Context, status func(SubscribeStatus, error)) error {
	c.mu.Lock()
	c.statusFn = status
	c.mu.Unlock()

	broadcastSub, err := c.transport.nc.Subscribe(c.subject("broadcast"), c.handleBroadcast)
	if err != nil {
		status(SubscribeError, err)
		return fmt.Errorf("subscribe broadcast: %w", err)
	}

	presSubs, err := c.pres.subscribe()
	if err != nil {
		_ = broadcastSub.Unsubscribe()
		status(SubscribeError, err)
		return fmt.Errorf("subscribe presence: %w", err)
	}

	c.mu.Lock()
	c.subs = append([]*nats.Subscription{broadcastSub}, presSubs...)
	c.mu.Unlock()

	// Round-trip to the server confirms the subscriptions are live.
	if err := c.transport.nc.FlushTimeout(c.transport.cfg.FlushTimeout); err != nil {
		status(SubscribeTimedOut, err)
		return nil
	}

	status(SubscribeOK, nil)
	c.pres.fireSync()
	return nil
}

func (c *natsChannel) handleBroadcast(msg *nats.Msg) {
	var env events.Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("unmarshal broadcast envelope")
		return
	}

	c.mu.Lock()
	fns := append(([]func(env *events.Envelope))(nil), c.handlers[env.Type]...)
	c.mu.Unlock()

	for _, fn := range fns {
		fn(&env)
	}
}

func (c *natsChannel) Send(ctx context.Context, eventType events.EventType, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	env := events.Envelope{
		EventID:   uuid.New().String(),
		SessionID: strings.TrimPrefix(c.topic, "session."),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   data,
	}
	envBytes, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	if err := c.transport.nc.Publish(c.subject("broadcast"), envBytes); err != nil {
		return fmt.Errorf("publish broadcast: %w", err)
	}
	return nil
}

func (c *natsChannel) Presence() presence.Handle {
	return c.pres
}

func (c *natsChannel) Unsubscribe() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	c.pres.announceLeave()

	var firstErr error
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.transport.remove(c)
	return firstErr
}

func (c *natsChannel) notifyStatus(st SubscribeStatus, err error) {
	c.mu.Lock()
	fn := c.statusFn
	closed := c.closed
	c.mu.Unlock()
	if fn == nil || closed {
		return
	}
	fn(st, err)
}

// natsPresence implements presence over core NATS: joins and leaves are
// published as events, and snapshots are built by a request-many query that
// every tracked member answers with its own entry.
type natsPresence struct {
	ch *natsChannel

	mu      sync.Mutex
	self    *presence.Meta
	onJoin  func(presence.Meta)
	onLeave func(presence.Meta)
	onSync  func()
}

func (p *natsPresence) Track(ctx context.Context, meta presence.Meta) error {
	p.mu.Lock()
	p.self = &meta
	p.mu.Unlock()

	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal presence meta: %w", err)
	}
	if err := p.ch.transport.nc.Publish(p.ch.subject("presence", "join"), data); err != nil {
		return fmt.Errorf("publish presence join: %w", err)
	}
	return nil
}

func (p *natsPresence) State() []presence.Meta {
	nc := p.ch.transport.nc
	inbox := nats.NewInbox()

	sub, err := nc.SubscribeSync(inbox)
	if err != nil {
		log.Error().Err(err).Msg("presence query inbox subscribe failed")
		return p.selfOnly()
	}
	defer sub.Unsubscribe()

	if err := nc.PublishRequest(p.ch.subject("presence", "query"), inbox, nil); err != nil {
		log.Error().Err(err).Msg("presence query publish failed")
		return p.selfOnly()
	}

	window := p.ch.transport.cfg.PresenceQueryWindow
	deadline := time.Now().Add(window)

	var snapshot []presence.Meta
	seen := make(map[string]bool)
	for {
		wait := time.Until(deadline)
		if wait <= 0 {
			break
		}
		msg, err := sub.NextMsg(wait)
		if err != nil {
			break
		}
		var meta presence.Meta
		if err := json.Unmarshal(msg.Data, &meta); err != nil {
			continue
		}
		if !seen[meta.Key] {
			seen[meta.Key] = true
			snapshot = append(snapshot, meta)
		}
	}

	p.mu.Lock()
	self := p.self
	p.mu.Unlock()
	if self != nil && !seen[self.Key] {
		snapshot = append(snapshot, *self)
	}
	return snapshot
}

func (p *natsPresence) selfOnly() []presence.Meta {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.self == nil {
		return nil
	}
	return []presence.Meta{*p.self}
}

func (p *natsPresence) OnJoin(fn func(presence.Meta)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onJoin = fn
}

func (p *natsPresence) OnLeave(fn func(presence.Meta)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onLeave = fn
}

func (p *natsPresence) OnSync(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onSync = fn
}

// subscribe registers the join/leave/query subscriptions for this channel.
func (p *natsPresence) subscribe() ([]*nats.Subscription, error) {
	nc := p.ch.transport.nc

	joinSub, err := nc.Subscribe(p.ch.subject("presence", "join"), func(msg *nats.Msg) {
		p.dispatch(msg.Data, func(meta presence.Meta) {
			p.mu.Lock()
			fn := p.onJoin
			p.mu.Unlock()
			if fn != nil {
				fn(meta)
			}
		})
	})
	if err != nil {
		return nil, err
	}

	leaveSub, err := nc.Subscribe(p.ch.subject("presence", "leave"), func(msg *nats.Msg) {
		p.dispatch(msg.Data, func(meta presence.Meta) {
			p.mu.Lock()
			fn := p.onLeave
			p.mu.Unlock()
			if fn != nil {
				fn(meta)
			}
		})
	})
	if err != nil {
		_ = joinSub.Unsubscribe()
		return nil, err
	}

	querySub, err := nc.Subscribe(p.ch.subject("presence", "query"), func(msg *nats.Msg) {
		p.mu.Lock()
		self := p.self
		p.mu.Unlock()
		if self == nil {
			return
		}
		data, err := json.Marshal(*self)
		if err != nil {
			return
		}
		if err := msg.Respond(data); err != nil {
			log.Debug().Err(err).Msg("presence query respond failed")
		}
	})
	if err != nil {
		_ = joinSub.Unsubscribe()
		_ = leaveSub.Unsubscribe()
		return nil, err
	}

	return []*nats.Subscription{joinSub, leaveSub, querySub}, nil
}

func (p *natsPresence) dispatch(data []byte, fn func(presence.Meta)) {
	var meta presence.Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		log.Error().Err(err).Msg("unmarshal presence meta")
		return
	}
	fn(meta)
}

// announceLeave publishes this member's departure on teardown.
func (p *natsPresence) announceLeave() {
	p.mu.Lock()
	self := p.self
	p.mu.Unlock()
	if self == nil {
		return
	}
	data, err := json.Marshal(*self)
	if err != nil {
		return
	}
	if err := p.ch.transport.nc.Publish(p.ch.subject("presence", "leave"), data); err != nil {
		log.Debug().Err(err).Msg("publish presence leave failed")
	}
}

func (p *natsPresence) fireSync() {
	p.mu.Lock()
	fn := p.onSync
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}
