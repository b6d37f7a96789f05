// Package session implements the Session state machine (spec.md §4.7):
// the object that binds one connected user to the Chat Directory, the
// Room Router, and the terminal UI. Grounded on internal/relay/pty_relay.go's
// per-connection routing entry (a small bit of mutex-guarded state wired
// into a shared registry) and internal/ui/model.go's shape of "one state
// machine emits typed UI events through callbacks" — generalized from a
// bubbletea Model's tea.Cmd batch to a plain set of Output callbacks,
// since Session has no terminal of its own; internal/sshui owns that.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dastanhayama/whisper/internal/chatmsg"
	"github.com/dastanhayama/whisper/internal/command"
	"github.com/dastanhayama/whisper/internal/config"
	"github.com/dastanhayama/whisper/internal/directory"
	"github.com/dastanhayama/whisper/internal/identity"
	"github.com/dastanhayama/whisper/internal/ratelimit"
	"github.com/dastanhayama/whisper/internal/room"
)

// Output is the set of callbacks a Session drives its UI through. All
// fields are required; sshui (or a test harness) supplies them.
type Output struct {
	Message    func(chatmsg.ChatMessage)
	SystemMsg  func(string)
	UserList   func([]directory.UserInfo)
	RoomChange func(newRoom string)
	Disconnect func()
	Clear      func()
}

// Session binds one connected identity to the shared Directory and
// Router for the lifetime of one connection.
type Session struct {
	id          string
	identity    identity.Identity
	fingerprint string

	dir    *directory.Directory
	router *room.Router
	cfg    config.Config
	out    Output

	limiter *ratelimit.Limiter

	mu          sync.Mutex
	nick        string
	roomName    string
	isConnected bool
	roomToken   room.Token
	dirToken    directory.Token
}

// New constructs a Session. Derived state (fingerprint, default nick,
// default room, fresh Rate Limiter) is computed here; Start must be
// called before any public operation other than Disconnect/Destroy.
func New(id string, ident identity.Identity, dir *directory.Directory, router *room.Router, cfg config.Config, out Output) *Session {
	fp := ident.Fingerprint()
	return &Session{
		id:          id,
		identity:    ident,
		fingerprint: fp,
		dir:         dir,
		router:      router,
		cfg:         cfg,
		out:         out,
		limiter:     ratelimit.New(cfg.RateLimit),
		nick:        "anon_" + fp[:6],
		roomName:    cfg.DefaultRoom,
	}
}

// Start registers the session in the Directory, attaches Directory
// listeners, performs the initial room join, and marks the session
// connected.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	room0 := s.roomName
	s.mu.Unlock()

	s.dir.AddUser(s.id, s.Nick(), s.fingerprint, room0)
	s.dirToken = s.dir.Subscribe(s.onDirectoryEvent)

	if err := s.doJoinRoom(ctx, room0, true); err != nil {
		return fmt.Errorf("session: start: %w", err)
	}

	s.mu.Lock()
	s.isConnected = true
	s.mu.Unlock()

	s.out.SystemMsg("Welcome to Whisper.")
	s.out.SystemMsg(fmt.Sprintf("You are anonymous, known as %s.", s.Nick()))
	s.out.SystemMsg("Type /help to see available commands.")
	return nil
}

// Nick returns the session's current display name.
func (s *Session) Nick() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nick
}

// Room returns the session's current room.
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomName
}

// Fingerprint returns this session's identity fingerprint.
func (s *Session) Fingerprint() string {
	return s.fingerprint
}

// Identity returns the ephemeral keypair backing this session. The
// overlay's libp2p peer identity is not derived from it; the overlay
// holds its own process-wide key.
func (s *Session) Identity() identity.Identity {
	return s.identity
}

// Limits reports the configured nick/room name length caps, satisfying
// command.SessionOps.
func (s *Session) Limits() (maxNick, maxRoom int) {
	return s.cfg.MaxNickLength, s.cfg.MaxRoomNameLength
}

func (s *Session) connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isConnected
}

// onDirectoryEvent implements the listener discipline spec.md §4.7
// requires: message events are filtered by room and self-fingerprint;
// roster-affecting events refresh the user list when they touch the
// session's current room.
func (s *Session) onDirectoryEvent(ev directory.Event) {
	myRoom := s.Room()

	switch ev.Kind {
	case directory.EventMessage:
		if ev.Message.Room != myRoom || ev.Message.Fingerprint == s.fingerprint {
			return
		}
		s.out.Message(ev.Message)

	case directory.EventUserJoin, directory.EventUserLeave:
		if ev.User.Room == myRoom {
			s.refreshUserList()
		}

	case directory.EventUserNick:
		if ev.User.Room == myRoom {
			s.refreshUserList()
		}

	case directory.EventUserRoom:
		if ev.User.Room == myRoom || ev.OldRoom == myRoom {
			s.refreshUserList()
		}
	}
}

func (s *Session) refreshUserList() {
	s.out.UserList(s.dir.GetUsersInRoom(s.Room()))
}

// HandleInput dispatches one line of raw terminal input: empty lines are
// ignored, slash-prefixed lines go to the Command Processor, everything
// else is a chat message. Session satisfies command.SessionOps
// structurally, so no import cycle is needed for command to act on it.
func (s *Session) HandleInput(ctx context.Context, line string) {
	if !s.guardConnected() {
		return
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if strings.HasPrefix(line, "/") {
		command.Dispatch(ctx, s, line)
		return
	}
	s.SendMessage(ctx, line)
}

// guardConnected implements the "no-op with a system message if
// !isConnected" rule shared by every public operation except
// Disconnect/Destroy.
func (s *Session) guardConnected() bool {
	if s.connected() {
		return true
	}
	s.out.SystemMsg("Not connected.")
	return false
}

// SendMessage rate-limits, size-checks, publishes, echoes locally on
// success, and records the message in Directory history.
func (s *Session) SendMessage(ctx context.Context, text string) {
	if !s.guardConnected() {
		return
	}
	if !s.limiter.Record() {
		s.out.SystemMsg("You're sending messages too fast. Please slow down.")
		return
	}
	if !chatmsg.SizeValid(text, s.cfg.MaxMessageSize) {
		s.out.SystemMsg(fmt.Sprintf("Message too long (max %d characters).", s.cfg.MaxMessageSize))
		return
	}

	myRoom := s.Room()
	msg := chatmsg.Text(myRoom, s.Nick(), s.fingerprint, text)

	if err := s.router.SendMessage(ctx, myRoom, msg); err != nil {
		slog.Warn("session: publish failed", "session", s.id, "err", err)
		s.out.SystemMsg("Failed to send message.")
		return
	}

	s.out.Message(msg)
	s.dir.AddMessage(msg)
}

// SendAction is SendMessage's /me sibling: no size check, same
// rate-limit/publish/echo/history sequence (source does not size-check
// actions; preserved).
func (s *Session) SendAction(ctx context.Context, text string) {
	if !s.guardConnected() {
		return
	}
	if !s.limiter.Record() {
		s.out.SystemMsg("You're sending messages too fast. Please slow down.")
		return
	}

	myRoom := s.Room()
	msg := chatmsg.Action(myRoom, s.Nick(), s.fingerprint, text)

	if err := s.router.SendMessage(ctx, myRoom, msg); err != nil {
		slog.Warn("session: publish failed", "session", s.id, "err", err)
		s.out.SystemMsg("Failed to send message.")
		return
	}

	s.out.Message(msg)
	s.dir.AddMessage(msg)
}

// ChangeNick validates uniqueness, updates local and Directory state,
// and publishes a nick-change record. A publish failure is logged but
// never rolled back.
func (s *Session) ChangeNick(ctx context.Context, newNick string) {
	if !s.guardConnected() {
		return
	}
	oldNick := s.Nick()
	if newNick == oldNick {
		s.out.SystemMsg("That's already your nickname.")
		return
	}
	myRoom := s.Room()
	if s.dir.IsNickTaken(newNick, myRoom, s.id) {
		s.out.SystemMsg(fmt.Sprintf("Nickname %q is already in use in this room.", newNick))
		return
	}

	s.mu.Lock()
	s.nick = newNick
	s.mu.Unlock()

	s.dir.SetNick(s.id, newNick)

	msg := chatmsg.Nick(myRoom, oldNick, newNick, s.fingerprint)
	if err := s.router.SendMessage(ctx, myRoom, msg); err != nil {
		slog.Warn("session: publish nick change failed", "session", s.id, "err", err)
	}
	s.dir.AddMessage(msg)
	s.out.SystemMsg(fmt.Sprintf("You are now known as %s.", newNick))
}

// JoinRoom is the guarded public entry point over doJoinRoom: a no-op
// (with a system message) if already in newRoom while connected.
func (s *Session) JoinRoom(ctx context.Context, newRoom string) {
	if !s.guardConnected() {
		return
	}
	if newRoom == s.Room() {
		s.out.SystemMsg(fmt.Sprintf("You're already in #%s.", newRoom))
		return
	}
	if err := s.doJoinRoom(ctx, newRoom, false); err != nil {
		slog.Warn("session: join room failed", "session", s.id, "room", newRoom, "err", err)
		s.out.SystemMsg(fmt.Sprintf("Failed to join #%s.", newRoom))
	}
}

// doJoinRoom implements the full join algorithm. initial is true during
// Start(): there is no old room to leave, so the leave sequence and the
// room-change/roster/history UI updates are skipped.
func (s *Session) doJoinRoom(ctx context.Context, newRoom string, initial bool) error {
	oldRoom := s.Room()

	if !initial {
		leaveMsg := chatmsg.Leave(oldRoom, s.Nick(), s.fingerprint)
		if err := s.router.SendMessage(ctx, oldRoom, leaveMsg); err != nil {
			slog.Warn("session: publish leave failed", "session", s.id, "room", oldRoom, "err", err)
		}
		if err := s.router.LeaveRoom(oldRoom, s.roomToken); err != nil {
			slog.Warn("session: unsubscribe old room failed", "session", s.id, "room", oldRoom, "err", err)
		}
	}

	s.mu.Lock()
	s.roomName = newRoom
	s.mu.Unlock()

	s.dir.SetRoom(s.id, newRoom)

	tok, err := s.router.JoinRoom(ctx, newRoom, s.onRoomMessage)
	if err != nil {
		return fmt.Errorf("join room %q: %w", newRoom, err)
	}
	s.mu.Lock()
	s.roomToken = tok
	s.mu.Unlock()

	joinMsg := chatmsg.Join(newRoom, s.Nick(), s.fingerprint)
	if err := s.router.SendMessage(ctx, newRoom, joinMsg); err != nil {
		slog.Warn("session: publish join failed", "session", s.id, "room", newRoom, "err", err)
	}
	s.dir.AddMessage(joinMsg)

	if !initial {
		s.out.RoomChange(newRoom)
		s.refreshUserList()
		s.out.SystemMsg(fmt.Sprintf("Joined #%s.", newRoom))
		s.replayHistory(newRoom)
	}
	return nil
}

// onRoomMessage is the Router-level inbound handler installed for the
// session's current room subscription. It only forwards into the
// Directory; the Directory's own message event (filtered by room and
// self-fingerprint in onDirectoryEvent) is what actually reaches the UI.
// Every local Session in a room registers its own onRoomMessage with the
// one shared Router, so a message from a remote peer reaches this method
// once per local subscriber in that room — Directory.AddMessage is what
// collapses those duplicate calls down to a single stored message and a
// single emitted event, by deduping on msg.ID.
func (s *Session) onRoomMessage(roomName, fromPeer string, msg chatmsg.ChatMessage) {
	s.dir.AddMessage(msg)
}

// replayHistory prints recent Directory history for newRoom, excluding
// this session's own messages, framed by the delimiters spec.md §4.7
// specifies.
func (s *Session) replayHistory(newRoom string) {
	history := s.dir.GetRecentMessages(newRoom, 0)
	var toShow []chatmsg.ChatMessage
	for _, m := range history {
		if m.Fingerprint != s.fingerprint {
			toShow = append(toShow, m)
		}
	}
	if len(toShow) == 0 {
		return
	}
	s.out.SystemMsg("--- Recent messages ---")
	for _, m := range toShow {
		s.out.Message(m)
	}
	s.out.SystemMsg("--- End of history ---")
}

// ShowUserList renders the current room's roster as a system message.
func (s *Session) ShowUserList(ctx context.Context) {
	if !s.guardConnected() {
		return
	}
	users := s.dir.GetUsersInRoom(s.Room())
	var b strings.Builder
	fmt.Fprintf(&b, "Users in #%s (%d):", s.Room(), len(users))
	for _, u := range users {
		fmt.Fprintf(&b, "\n  %s", u.Nick)
	}
	s.out.SystemMsg(b.String())
}

// ShowRoomList renders every known room as a system message.
func (s *Session) ShowRoomList(ctx context.Context) {
	if !s.guardConnected() {
		return
	}
	rooms := s.dir.GetKnownRooms()
	var b strings.Builder
	fmt.Fprintf(&b, "Known rooms (%d):", len(rooms))
	for _, r := range rooms {
		fmt.Fprintf(&b, "\n  #%s", r)
	}
	s.out.SystemMsg(b.String())
}

// ClearMessages asks the UI to clear its transcript.
func (s *Session) ClearMessages(ctx context.Context) {
	if !s.guardConnected() {
		return
	}
	s.out.Clear()
}

// ShowSystemMessage is a pass-through to the UI's system-message callback.
func (s *Session) ShowSystemMessage(ctx context.Context, text string) {
	if !s.guardConnected() {
		return
	}
	s.out.SystemMsg(text)
}

// Disconnect is idempotent: publishes a leave record, unsubscribes from
// the Router, deregisters from the Directory, and emits onDisconnect.
func (s *Session) Disconnect(ctx context.Context) {
	s.mu.Lock()
	if !s.isConnected {
		s.mu.Unlock()
		return
	}
	s.isConnected = false
	myRoom := s.roomName
	tok := s.roomToken
	s.mu.Unlock()

	leaveMsg := chatmsg.Leave(myRoom, s.Nick(), s.fingerprint)
	if err := s.router.SendMessage(ctx, myRoom, leaveMsg); err != nil {
		slog.Warn("session: publish leave on disconnect failed", "session", s.id, "err", err)
	}
	if err := s.router.LeaveRoom(myRoom, tok); err != nil {
		slog.Warn("session: leave room on disconnect failed", "session", s.id, "err", err)
	}
	s.dir.RemoveUser(s.id)
	s.out.Disconnect()
}

// Destroy disconnects (if still connected) and detaches this session's
// Directory listener.
func (s *Session) Destroy(ctx context.Context) {
	s.Disconnect(ctx)
	s.dir.Unsubscribe(s.dirToken)
}
