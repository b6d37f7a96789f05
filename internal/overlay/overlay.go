// Package overlay defines the Overlay interface the Room Router depends
// on (spec.md §6's "overlay-facing" contract) together with two
// implementations: a go-libp2p-backed adapter for real deployments and an
// in-memory fake for tests that don't need a live network.
package overlay

import (
	"context"
	"errors"
)

// ErrNoPeers is returned by Publish when the overlay has no remote
// subscribers for the topic. The Room Router treats this as success
// (spec.md §4.6/§7's PublishIsolated) rather than failure — it is a
// structured sentinel rather than a substring match against the pubsub
// library's error text, fixing the brittleness flagged in spec.md §9.
var ErrNoPeers = errors.New("overlay: no peers subscribed to topic")

// ErrClosed is returned by any operation performed after Close.
var ErrClosed = errors.New("overlay: closed")

// MessageHandler receives a single inbound pub/sub message. fromPeer is
// the overlay's opaque string identifier for the remote publisher — the
// core never interprets it beyond self-echo suppression.
type MessageHandler func(topic string, fromPeer string, data []byte)

// Overlay is the pub/sub transport the Room Router drives. One Overlay
// instance is shared by every Session in the process; the Router
// multiplexes per-room views on top of it.
type Overlay interface {
	// Subscribe joins topic so that Publish from other peers on it
	// reaches the registered MessageHandler. Subscribing to an
	// already-subscribed topic is a no-op.
	Subscribe(ctx context.Context, topic string) error

	// Unsubscribe leaves topic. Idempotent.
	Unsubscribe(topic string) error

	// Publish sends data on topic. Returns ErrNoPeers if nobody remote
	// is subscribed — callers must treat that as success, not failure.
	Publish(ctx context.Context, topic string, data []byte) error

	// Peers returns the overlay's current view of remote subscribers
	// for topic.
	Peers(topic string) []string

	// OnMessage installs the single inbound listener the Router uses
	// to receive messages for every subscribed topic. Calling it again
	// replaces the previous handler.
	OnMessage(h MessageHandler)

	// LocalID returns this node's opaque overlay identifier.
	LocalID() string

	// Close tears down every subscription and releases the underlying
	// network resources.
	Close() error
}
