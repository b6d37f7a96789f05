// Package directory implements the Chat Directory: the shared,
// process-wide authority over who is in which room, bounded per-room
// message history, and the event broadcaster that fans state changes out
// to every attached Session.
//
// The subscriber list is guarded by its own mutex, separate from the one
// guarding users/roomMessages, so that notify can snapshot subscribers
// and invoke them without holding the data lock — mirroring
// internal/relay/workers.go's WingRegistry, which keeps its dashboard
// subscriber list (subMu) independent of its wing map (mu).
package directory

import (
	"strings"
	"sync"
	"time"

	"github.com/dastanhayama/whisper/internal/buffer"
	"github.com/dastanhayama/whisper/internal/chatmsg"
)

// DefaultMaxMessagesPerRoom is the default maxMessagesPerRoom from
// spec.md §6 (MAX_MESSAGES_IN_MEMORY).
const DefaultMaxMessagesPerRoom = 100

// UserInfo is the directory's record for one connected user (spec.md §3).
type UserInfo struct {
	SessionID   string
	Nick        string
	Fingerprint string
	Room        string
	JoinedAt    int64 // ms since epoch
}

// EventKind enumerates the events the Directory broadcasts.
type EventKind string

const (
	EventUserJoin  EventKind = "user:join"
	EventUserLeave EventKind = "user:leave"
	EventUserNick  EventKind = "user:nick"
	EventUserRoom  EventKind = "user:room"
	EventMessage   EventKind = "message"
)

// Event is delivered to every subscriber on every directory mutation.
// Only the fields relevant to Kind are populated.
type Event struct {
	Kind    EventKind
	User    UserInfo
	OldNick string
	OldRoom string
	Message chatmsg.ChatMessage
}

// Listener receives directory events. Listeners must not call back into
// mutating Directory operations; read-only operations are safe.
type Listener func(Event)

// Token identifies a subscription for later removal.
type Token uint64

// Directory is the shared in-process chat authority.
type Directory struct {
	maxMessagesPerRoom int

	mu    sync.Mutex
	users map[string]UserInfo          // sessionID -> user
	rooms map[string]*buffer.Bounded[chatmsg.ChatMessage] // room -> history

	subMu     sync.Mutex
	listeners map[Token]Listener
	nextToken Token
}

// New constructs a Directory with the given per-room history capacity. A
// non-positive capacity falls back to DefaultMaxMessagesPerRoom.
func New(maxMessagesPerRoom int) *Directory {
	if maxMessagesPerRoom <= 0 {
		maxMessagesPerRoom = DefaultMaxMessagesPerRoom
	}
	return &Directory{
		maxMessagesPerRoom: maxMessagesPerRoom,
		users:              make(map[string]UserInfo),
		rooms:              make(map[string]*buffer.Bounded[chatmsg.ChatMessage]),
		listeners:          make(map[Token]Listener),
	}
}

// Subscribe registers fn to receive every future event and returns a
// Token for Unsubscribe.
func (d *Directory) Subscribe(fn Listener) Token {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	d.nextToken++
	tok := d.nextToken
	d.listeners[tok] = fn
	return tok
}

// Unsubscribe removes a previously registered listener. Idempotent.
func (d *Directory) Unsubscribe(tok Token) {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	delete(d.listeners, tok)
}

// emit snapshots the current listener set and invokes each outside any
// data lock.
func (d *Directory) emit(ev Event) {
	d.subMu.Lock()
	snapshot := make([]Listener, 0, len(d.listeners))
	for _, fn := range d.listeners {
		snapshot = append(snapshot, fn)
	}
	d.subMu.Unlock()

	for _, fn := range snapshot {
		fn(ev)
	}
}

// AddUser inserts a UserInfo for sessionID, overwriting any prior entry
// with the same sessionID (callers must avoid calling this twice for the
// same session — it is a precondition violation, not a recoverable
// error). Emits user:join.
func (d *Directory) AddUser(sessionID, nick, fingerprint, room string) UserInfo {
	user := UserInfo{
		SessionID:   sessionID,
		Nick:        nick,
		Fingerprint: fingerprint,
		Room:        room,
		JoinedAt:    time.Now().UnixMilli(),
	}
	d.mu.Lock()
	d.users[sessionID] = user
	d.mu.Unlock()

	d.emit(Event{Kind: EventUserJoin, User: user})
	return user
}

// RemoveUser deletes sessionID if present and emits user:leave with the
// removed value. Reports whether a user was actually removed.
func (d *Directory) RemoveUser(sessionID string) (UserInfo, bool) {
	d.mu.Lock()
	user, ok := d.users[sessionID]
	if ok {
		delete(d.users, sessionID)
	}
	d.mu.Unlock()

	if !ok {
		return UserInfo{}, false
	}
	d.emit(Event{Kind: EventUserLeave, User: user})
	return user, true
}

// SetNick updates sessionID's nick in place and emits user:nick. Reports
// whether the session existed. Uniqueness is NOT enforced here — the
// Session checks IsNickTaken before calling.
func (d *Directory) SetNick(sessionID, newNick string) bool {
	d.mu.Lock()
	user, ok := d.users[sessionID]
	if !ok {
		d.mu.Unlock()
		return false
	}
	oldNick := user.Nick
	user.Nick = newNick
	d.users[sessionID] = user
	d.mu.Unlock()

	d.emit(Event{Kind: EventUserNick, User: user, OldNick: oldNick})
	return true
}

// SetRoom updates sessionID's room in place and emits user:room. Reports
// whether the session existed.
func (d *Directory) SetRoom(sessionID, newRoom string) bool {
	d.mu.Lock()
	user, ok := d.users[sessionID]
	if !ok {
		d.mu.Unlock()
		return false
	}
	oldRoom := user.Room
	user.Room = newRoom
	d.users[sessionID] = user
	d.mu.Unlock()

	d.emit(Event{Kind: EventUserRoom, User: user, OldRoom: oldRoom})
	return true
}

// GetUser returns the UserInfo for sessionID, if any.
func (d *Directory) GetUser(sessionID string) (UserInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[sessionID]
	return u, ok
}

// GetUserByFingerprint returns the first user found with the given
// fingerprint, if any. Fingerprints are not unique (spec.md §3).
func (d *Directory) GetUserByFingerprint(fingerprint string) (UserInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.Fingerprint == fingerprint {
			return u, true
		}
	}
	return UserInfo{}, false
}

// GetUsersInRoom returns a snapshot of every user currently in room.
func (d *Directory) GetUsersInRoom(room string) []UserInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	var result []UserInfo
	for _, u := range d.users {
		if u.Room == room {
			result = append(result, u)
		}
	}
	return result
}

// GetKnownRooms returns the union of rooms currently occupied and rooms
// with recorded history.
func (d *Directory) GetKnownRooms() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	seen := make(map[string]struct{})
	for _, u := range d.users {
		seen[u.Room] = struct{}{}
	}
	for room := range d.rooms {
		seen[room] = struct{}{}
	}
	rooms := make([]string, 0, len(seen))
	for room := range seen {
		rooms = append(rooms, room)
	}
	return rooms
}

// GetUserCount returns the total number of connected users.
func (d *Directory) GetUserCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.users)
}

// AddMessage appends m to its room's bounded history, creating the
// history lazily, then emits message after the insertion is visible.
//
// Idempotent on m.ID: with multiple local Sessions sharing one Router in
// the same room, a single remote publish reaches this method once per
// local subscriber (room.Router.handleInbound fans out to every
// subscriber's handler); without a dedup check here, each of those calls
// would append its own copy of the same message and every client's
// history/replay would show N duplicates. The check is a linear scan of
// the room's already-bounded history, which is cheap at
// maxMessagesPerRoom scale and needs no extra state.
func (d *Directory) AddMessage(m chatmsg.ChatMessage) {
	d.mu.Lock()
	hist, ok := d.rooms[m.Room]
	if !ok {
		hist = buffer.New[chatmsg.ChatMessage](d.maxMessagesPerRoom)
		d.rooms[m.Room] = hist
	}
	for _, existing := range hist.GetAll() {
		if existing.ID == m.ID {
			d.mu.Unlock()
			return
		}
	}
	hist.Push(m)
	d.mu.Unlock()

	d.emit(Event{Kind: EventMessage, Message: m})
}

// GetRecentMessages returns a snapshot of the most recent messages in
// room (or all of them, if count <= 0), empty if room is unknown.
func (d *Directory) GetRecentMessages(room string, count int) []chatmsg.ChatMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	hist, ok := d.rooms[room]
	if !ok {
		return []chatmsg.ChatMessage{}
	}
	if count <= 0 {
		return hist.GetAll()
	}
	return hist.GetLast(count)
}

// IsNickTaken reports whether nick (case-insensitive) is in use by any
// user in room other than excludeSessionID.
func (d *Directory) IsNickTaken(nick, room, excludeSessionID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	lowerNick := strings.ToLower(nick)
	for _, u := range d.users {
		if u.SessionID == excludeSessionID {
			continue
		}
		if u.Room == room && strings.ToLower(u.Nick) == lowerNick {
			return true
		}
	}
	return false
}
