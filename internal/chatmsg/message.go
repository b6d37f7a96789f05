// Package chatmsg defines the Whisper wire message: construction helpers,
// JSON wire encode/decode, and the size check applied to free-text
// content. The wire format follows the teacher's own tagged-JSON-struct
// convention (internal/ws/protocol.go) rather than inventing a new one.
package chatmsg

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type enumerates the kinds of ChatMessage.
type Type string

const (
	TypeText   Type = "text"
	TypeJoin   Type = "join"
	TypeLeave  Type = "leave"
	TypeNick   Type = "nick"
	TypeAction Type = "action"
)

// DefaultMaxMessageSize is the default maxMessageSize from spec.md §6.
const DefaultMaxMessageSize = 4096

// ErrBadMessage is returned by Decode when the payload cannot be parsed
// into a well-formed ChatMessage.
var ErrBadMessage = errors.New("chatmsg: bad message")

// ChatMessage is the wire and in-memory chat record described in
// spec.md §3.
type ChatMessage struct {
	ID          string `json:"id"`
	Timestamp   int64  `json:"timestamp"`
	Room        string `json:"room"`
	Nick        string `json:"nick"`
	Fingerprint string `json:"fingerprint"`
	Type        Type   `json:"type"`
	Content     string `json:"content"`
	OldNick     string `json:"oldNick,omitempty"`
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func newID() string {
	return uuid.NewString()
}

// Text builds a text message.
func Text(room, nick, fingerprint, content string) ChatMessage {
	return ChatMessage{
		ID:          newID(),
		Timestamp:   nowMillis(),
		Room:        room,
		Nick:        nick,
		Fingerprint: fingerprint,
		Type:        TypeText,
		Content:     content,
	}
}

// Join builds a join-event message.
func Join(room, nick, fingerprint string) ChatMessage {
	return ChatMessage{
		ID:          newID(),
		Timestamp:   nowMillis(),
		Room:        room,
		Nick:        nick,
		Fingerprint: fingerprint,
		Type:        TypeJoin,
		Content:     fmt.Sprintf("%s has joined the room", nick),
	}
}

// Leave builds a leave-event message.
func Leave(room, nick, fingerprint string) ChatMessage {
	return ChatMessage{
		ID:          newID(),
		Timestamp:   nowMillis(),
		Room:        room,
		Nick:        nick,
		Fingerprint: fingerprint,
		Type:        TypeLeave,
		Content:     fmt.Sprintf("%s has left the room", nick),
	}
}

// Nick builds a nick-change message.
func Nick(room, oldNick, newNick, fingerprint string) ChatMessage {
	return ChatMessage{
		ID:          newID(),
		Timestamp:   nowMillis(),
		Room:        room,
		Nick:        newNick,
		Fingerprint: fingerprint,
		Type:        TypeNick,
		Content:     fmt.Sprintf("%s is now known as %s", oldNick, newNick),
		OldNick:     oldNick,
	}
}

// Action builds a /me-style action message.
func Action(room, nick, fingerprint, action string) ChatMessage {
	return ChatMessage{
		ID:          newID(),
		Timestamp:   nowMillis(),
		Room:        room,
		Nick:        nick,
		Fingerprint: fingerprint,
		Type:        TypeAction,
		Content:     action,
	}
}

// Encode serializes m to its UTF-8 wire form.
func Encode(m ChatMessage) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("chatmsg encode: %w", err)
	}
	return b, nil
}

// Decode parses the wire form produced by Encode. Malformed input or a
// payload missing required fields yields ErrBadMessage.
func Decode(data []byte) (ChatMessage, error) {
	var m ChatMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return ChatMessage{}, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	if m.ID == "" || m.Room == "" || m.Type == "" {
		return ChatMessage{}, fmt.Errorf("%w: missing required field", ErrBadMessage)
	}
	switch m.Type {
	case TypeText, TypeJoin, TypeLeave, TypeNick, TypeAction:
	default:
		return ChatMessage{}, fmt.Errorf("%w: unknown type %q", ErrBadMessage, m.Type)
	}
	return m, nil
}

// SizeValid reports whether content's UTF-8 byte length is within max.
func SizeValid(content string, max int) bool {
	return len(content) <= max
}
