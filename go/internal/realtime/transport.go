package realtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcdev12/livepoll/go/internal/realtime/events"
	"github.com/mcdev12/livepoll/go/internal/realtime/presence"
)

// ErrNotConnected is returned by Manager.Send before the subscribe handshake
// has completed. Pre-subscribe sends are treated as unreliable by design:
// the transport buffers presence tracking, not broadcasts.
var ErrNotConnected = errors.New("realtime: channel not connected")

// SessionTopic derives the one pub/sub topic for a session from its public
// id. There are no per-question or per-batch sub-topics.
func SessionTopic(sessionPublicID string) string {
	return fmt.Sprintf("session.%s", sessionPublicID)
}

// SubscribeStatus is reported by the transport's subscribe handshake and on
// later connection transitions.
type SubscribeStatus string

const (
	// SubscribeOK means the handshake succeeded or the connection recovered.
	SubscribeOK SubscribeStatus = "ok"
	// SubscribeError means the transport hit an error it will retry itself.
	SubscribeError SubscribeStatus = "error"
	// SubscribeTimedOut means the handshake never completed; terminal until
	// an external retry.
	SubscribeTimedOut SubscribeStatus = "timed_out"
)

// Transport creates pub/sub channels by topic name.
type Transport interface {
	Channel(topic string) (Channel, error)
}

// Channel is one pub/sub channel for a session topic. Handlers must be
// registered before Subscribe so no delivered message races past them.
type Channel interface {
	// OnBroadcast registers a handler for one event type.
	OnBroadcast(eventType events.EventType, fn func(env *events.Envelope))

	// Subscribe initiates the handshake. The status callback is long-lived:
	// it fires for the initial handshake result and for every later
	// connection transition the transport observes.
	Subscribe(ctx context.Context, status func(SubscribeStatus, error)) error

	// Send publishes a fire-and-forget broadcast to all current subscribers.
	Send(ctx context.Context, eventType events.EventType, payload interface{}) error

	// Presence returns the channel's presence handle.
	Presence() presence.Handle

	// Unsubscribe tears the channel down. Safe to call more than once.
	Unsubscribe() error
}
