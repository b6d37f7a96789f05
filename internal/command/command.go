// Package command implements the Command Processor (spec.md §4.8):
// tokenizing slash-prefixed input and dispatching to a narrow SessionOps
// interface. SessionOps — not a concrete *session.Session — is what lets
// internal/session depend on internal/command (to route HandleInput's
// slash-prefixed lines here) without a circular import: command never
// imports session, and any type satisfying SessionOps structurally
// works, exactly the "accept interfaces" idiom the teacher's
// internal/interfaces package applies to filesystems and stores.
package command

import (
	"context"
	"fmt"
	"strings"
)

// SessionOps is the subset of Session operations slash commands invoke.
type SessionOps interface {
	ChangeNick(ctx context.Context, newNick string)
	JoinRoom(ctx context.Context, newRoom string)
	ShowUserList(ctx context.Context)
	ShowRoomList(ctx context.Context)
	Disconnect(ctx context.Context)
	SendAction(ctx context.Context, text string)
	ClearMessages(ctx context.Context)
	ShowSystemMessage(ctx context.Context, text string)
	// Limits reports the configured nick and room name length caps, so
	// sanitization can enforce them without this package importing config.
	Limits() (maxNick, maxRoom int)
}

type entry struct {
	name string
	args string
	run  func(ctx context.Context, ops SessionOps, args []string) error
}

var table = []entry{
	{"nick", "<name>", cmdNick},
	{"join", "<room>", cmdJoin},
	{"users", "", cmdUsers},
	{"rooms", "", cmdRooms},
	{"help", "", cmdHelp},
	{"quit", "", cmdQuit},
	{"me", "<text…>", cmdMe},
	{"clear", "", cmdClear},
}

var aliases = map[string]string{
	"n":    "nick",
	"j":    "join",
	"who":  "users",
	"w":    "users",
	"r":    "rooms",
	"h":    "help",
	"?":    "help",
	"q":    "quit",
	"exit": "quit",
	"cls":  "clear",
}

func lookup(name string) (entry, bool) {
	if canon, ok := aliases[name]; ok {
		name = canon
	}
	for _, e := range table {
		if e.name == name {
			return e, true
		}
	}
	return entry{}, false
}

// Dispatch tokenizes line (expected to start with "/") and runs the
// matching command against ops, surfacing unknown-command and
// handler-exception errors as system messages exactly as spec.md §4.8
// specifies.
func Dispatch(ctx context.Context, ops SessionOps, line string) {
	name, args := tokenize(line)
	if name == "" {
		return
	}

	e, ok := lookup(name)
	if !ok {
		ops.ShowSystemMessage(ctx, fmt.Sprintf("Unknown command: /%s. Type /help for available commands.", name))
		return
	}

	if err := runSafely(e.run, ctx, ops, args); err != nil {
		ops.ShowSystemMessage(ctx, fmt.Sprintf("Command failed: %s", err))
	}
}

// runSafely recovers a panicking handler and turns it into an error, so
// one bad command can never bring down a session.
func runSafely(fn func(context.Context, SessionOps, []string) error, ctx context.Context, ops SessionOps, args []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return fn(ctx, ops, args)
}

// tokenize strips the leading "/", splits on whitespace runs, and
// lowercases the command name.
func tokenize(line string) (name string, args []string) {
	line = strings.TrimPrefix(line, "/")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}

func cmdNick(ctx context.Context, ops SessionOps, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: /nick <name>")
	}
	maxNick, _ := ops.Limits()
	nick := sanitize(args[0], maxNick, false)
	if !validate(nick) {
		return fmt.Errorf("invalid nickname")
	}
	ops.ChangeNick(ctx, nick)
	return nil
}

func cmdJoin(ctx context.Context, ops SessionOps, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: /join <room>")
	}
	_, maxRoom := ops.Limits()
	room := sanitize(args[0], maxRoom, true)
	if !validate(room) {
		return fmt.Errorf("invalid room name")
	}
	ops.JoinRoom(ctx, room)
	return nil
}

func cmdUsers(ctx context.Context, ops SessionOps, _ []string) error {
	ops.ShowUserList(ctx)
	return nil
}

func cmdRooms(ctx context.Context, ops SessionOps, _ []string) error {
	ops.ShowRoomList(ctx)
	return nil
}

func cmdHelp(ctx context.Context, ops SessionOps, _ []string) error {
	ops.ShowSystemMessage(ctx, helpText())
	return nil
}

func cmdQuit(ctx context.Context, ops SessionOps, _ []string) error {
	ops.ShowSystemMessage(ctx, "Goodbye!")
	ops.Disconnect(ctx)
	return nil
}

func cmdMe(ctx context.Context, ops SessionOps, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: /me <text>")
	}
	ops.SendAction(ctx, strings.Join(args, " "))
	return nil
}

func cmdClear(ctx context.Context, ops SessionOps, _ []string) error {
	ops.ClearMessages(ctx)
	return nil
}

func helpText() string {
	var b strings.Builder
	b.WriteString("Available commands:")
	rows := []struct{ cmd, aliases, args, effect string }{
		{"nick", "n", "<name>", "Change your nickname"},
		{"join", "j", "<room>", "Join or switch to a room"},
		{"users", "who, w", "", "List users in this room"},
		{"rooms", "r", "", "List known rooms"},
		{"help", "h, ?", "", "Show this help"},
		{"quit", "q, exit", "", "Disconnect"},
		{"me", "", "<text…>", "Send an action message"},
		{"clear", "cls", "", "Clear your screen"},
	}
	for _, r := range rows {
		fmt.Fprintf(&b, "\n  /%s %s", r.cmd, r.args)
		if r.aliases != "" {
			fmt.Fprintf(&b, " (aliases: %s)", r.aliases)
		}
		fmt.Fprintf(&b, " — %s", r.effect)
	}
	return b.String()
}

var validPattern = func() func(rune) bool {
	return func(r rune) bool {
		return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-'
	}
}()

const defaultSanitizeLimit = 32

// sanitize strips every character outside [a-zA-Z0-9_-], truncates to
// max (falling back to the fixed 32-character limit spec.md §4.8
// specifies when max <= 0), and lowercases when lower is true.
func sanitize(s string, max int, lower bool) string {
	if max <= 0 {
		max = defaultSanitizeLimit
	}
	var b strings.Builder
	for _, r := range s {
		if validPattern(r) {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > max {
		out = out[:max]
	}
	if lower {
		out = strings.ToLower(out)
	}
	return out
}

// validate applies the same predicate as sanitize plus a non-empty check.
func validate(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !validPattern(r) {
			return false
		}
	}
	return true
}
