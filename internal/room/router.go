// Package room implements the Room Router (spec.md §4.6): the adapter
// between logical chat rooms and the overlay's gossip pub/sub topics.
// Grounded on internal/relay/chat_relay.go's registry-over-transport
// shape, generalized from the teacher's fixed relay channel to a shared
// Router multiplexing many sessions' room subscriptions over a single
// internal/overlay.Overlay instance — the "one shared Router with
// (room -> list-of-handlers)" alternative spec.md §9 calls out as
// equivalent to one wrapper per session, provided self-echo suppression
// by fingerprint remains correct (done one layer up, in internal/session).
package room

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dastanhayama/whisper/internal/chatmsg"
	"github.com/dastanhayama/whisper/internal/overlay"
)

const topicPrefix = "/whisper/room/"

// Handler processes one inbound, already-decoded message for a room.
// fromPeer is the overlay's opaque publisher identifier, passed through
// unexamined — self-echo suppression beyond the overlay's own
// emitSelf=false is the Session's responsibility (spec.md §4.6).
type Handler func(room string, fromPeer string, msg chatmsg.ChatMessage)

// Token identifies one JoinRoom subscription for later LeaveRoom.
type Token uint64

// Topic maps a lowercased room name to its wire topic name.
func Topic(room string) string {
	return topicPrefix + strings.ToLower(room)
}

// RoomFromTopic reverses Topic, rejecting anything without the prefix.
func RoomFromTopic(topic string) (string, bool) {
	if !strings.HasPrefix(topic, topicPrefix) {
		return "", false
	}
	return strings.TrimPrefix(topic, topicPrefix), true
}

type subscriber struct {
	token   Token
	handler Handler
}

// Router is the shared adapter every Session's room operations go
// through. It installs itself as the Overlay's single inbound listener
// and fans each message out to every handler subscribed to that
// message's room.
type Router struct {
	ov overlay.Overlay

	mu        sync.Mutex
	subs      map[string][]subscriber // room (lowercased) -> subscribers
	nextToken Token
}

// New creates a Router backed by ov and installs its inbound dispatch
// as ov's message handler. Construct exactly one Router per Overlay.
func New(ov overlay.Overlay) *Router {
	r := &Router{ov: ov, subs: make(map[string][]subscriber)}
	ov.OnMessage(r.handleInbound)
	return r
}

func (r *Router) handleInbound(topic, fromPeer string, data []byte) {
	room, ok := RoomFromTopic(topic)
	if !ok {
		slog.Debug("room: dropping message on non-whisper topic", "topic", topic)
		return
	}
	room = strings.ToLower(room)

	msg, err := chatmsg.Decode(data)
	if err != nil {
		slog.Debug("room: dropping undecodable message", "room", room, "err", err)
		return
	}

	r.mu.Lock()
	subs := append([]subscriber(nil), r.subs[room]...)
	r.mu.Unlock()

	for _, s := range subs {
		s.handler(room, fromPeer, msg)
	}
}

// JoinRoom subscribes handler to room, joining the overlay topic if
// necessary (the overlay is idempotent about repeat Subscribe calls, so
// every session subscribing to an already-joined room is cheap and
// safe). Returns a Token for the matching LeaveRoom.
func (r *Router) JoinRoom(ctx context.Context, roomName string, handler Handler) (Token, error) {
	key := strings.ToLower(roomName)

	r.mu.Lock()
	r.nextToken++
	tok := r.nextToken
	r.subs[key] = append(r.subs[key], subscriber{token: tok, handler: handler})
	r.mu.Unlock()

	if err := r.ov.Subscribe(ctx, Topic(key)); err != nil {
		r.mu.Lock()
		r.removeLocked(key, tok)
		r.mu.Unlock()
		return 0, fmt.Errorf("room: join %q: %w", key, err)
	}
	return tok, nil
}

// LeaveRoom drops tok's subscription to room and, if it was the last
// one, unsubscribes the overlay topic. Idempotent.
func (r *Router) LeaveRoom(roomName string, tok Token) error {
	key := strings.ToLower(roomName)

	r.mu.Lock()
	removed := r.removeLocked(key, tok)
	empty := len(r.subs[key]) == 0
	if empty {
		delete(r.subs, key)
	}
	r.mu.Unlock()

	if !removed || !empty {
		return nil
	}
	return r.ov.Unsubscribe(Topic(key))
}

func (r *Router) removeLocked(key string, tok Token) bool {
	list := r.subs[key]
	for i, s := range list {
		if s.token == tok {
			r.subs[key] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// SendMessage encodes m and publishes it to room. A publish into an
// empty topic is not an error: overlay.ErrNoPeers is swallowed here
// exactly as spec.md §4.6 requires, because the local caller has
// already been notified via the Session's own echo path.
func (r *Router) SendMessage(ctx context.Context, roomName string, m chatmsg.ChatMessage) error {
	data, err := chatmsg.Encode(m)
	if err != nil {
		return fmt.Errorf("room: encode message for %q: %w", roomName, err)
	}

	err = r.ov.Publish(ctx, Topic(roomName), data)
	if err == nil {
		return nil
	}
	if err == overlay.ErrNoPeers {
		slog.Debug("room: publish-to-empty-topic treated as success", "room", roomName)
		return nil
	}
	return fmt.Errorf("room: publish to %q: %w", roomName, err)
}

// GetSubscribedRooms returns every room with at least one subscriber.
func (r *Router) GetSubscribedRooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	rooms := make([]string, 0, len(r.subs))
	for room := range r.subs {
		rooms = append(rooms, room)
	}
	return rooms
}

// GetRoomPeers returns the overlay's current view of remote subscribers
// for room's topic.
func (r *Router) GetRoomPeers(roomName string) []string {
	return r.ov.Peers(Topic(roomName))
}
