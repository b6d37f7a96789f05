package directory

import (
	"sync"
	"testing"

	"github.com/dastanhayama/whisper/internal/chatmsg"
)

func TestAddUserEmitsJoin(t *testing.T) {
	d := New(10)
	var got Event
	d.Subscribe(func(ev Event) { got = ev })

	d.AddUser("s1", "alice", "AAAAAAAA", "lobby")

	if got.Kind != EventUserJoin {
		t.Fatalf("kind = %v, want user:join", got.Kind)
	}
	if got.User.Nick != "alice" || got.User.Room != "lobby" {
		t.Fatalf("user = %+v", got.User)
	}
}

func TestRemoveUserEmitsLeaveAndReportsMissing(t *testing.T) {
	d := New(10)
	var kinds []EventKind
	d.Subscribe(func(ev Event) { kinds = append(kinds, ev.Kind) })

	d.AddUser("s1", "alice", "AAAAAAAA", "lobby")
	_, ok := d.RemoveUser("s1")
	if !ok {
		t.Fatalf("expected removal to report true")
	}
	if _, ok := d.RemoveUser("s1"); ok {
		t.Fatalf("second removal of same session should report false")
	}

	if len(kinds) != 2 || kinds[0] != EventUserJoin || kinds[1] != EventUserLeave {
		t.Fatalf("kinds = %v", kinds)
	}
}

func TestSetNickEmitsOldNick(t *testing.T) {
	d := New(10)
	d.AddUser("s1", "bob", "AAAAAAAA", "lobby")

	var got Event
	d.Subscribe(func(ev Event) { got = ev })
	if !d.SetNick("s1", "robert") {
		t.Fatalf("SetNick reported false for existing session")
	}
	if got.Kind != EventUserNick || got.OldNick != "bob" || got.User.Nick != "robert" {
		t.Fatalf("event = %+v", got)
	}
	if d.SetNick("ghost", "x") {
		t.Fatalf("SetNick on unknown session should report false")
	}
}

func TestSetRoomEmitsOldRoom(t *testing.T) {
	d := New(10)
	d.AddUser("s1", "bob", "AAAAAAAA", "lobby")

	var got Event
	d.Subscribe(func(ev Event) { got = ev })
	d.SetRoom("s1", "general")

	if got.Kind != EventUserRoom || got.OldRoom != "lobby" || got.User.Room != "general" {
		t.Fatalf("event = %+v", got)
	}
}

func TestGetUsersInRoomAndKnownRooms(t *testing.T) {
	d := New(10)
	d.AddUser("s1", "alice", "AAAAAAAA", "lobby")
	d.AddUser("s2", "bob", "BBBBBBBB", "lobby")
	d.AddUser("s3", "carol", "CCCCCCCC", "general")

	lobby := d.GetUsersInRoom("lobby")
	if len(lobby) != 2 {
		t.Fatalf("lobby users = %d, want 2", len(lobby))
	}

	rooms := d.GetKnownRooms()
	seen := map[string]bool{}
	for _, r := range rooms {
		seen[r] = true
	}
	if !seen["lobby"] || !seen["general"] {
		t.Fatalf("known rooms = %v", rooms)
	}
}

func TestAddMessageAndGetRecentMessages(t *testing.T) {
	d := New(3)
	for i := 0; i < 5; i++ {
		d.AddMessage(chatmsg.Text("lobby", "alice", "AAAAAAAA", "msg"))
	}
	recent := d.GetRecentMessages("lobby", 0)
	if len(recent) != 3 {
		t.Fatalf("recent messages = %d, want 3 (bounded capacity)", len(recent))
	}
	if got := d.GetRecentMessages("unknown-room", 5); len(got) != 0 {
		t.Fatalf("unknown room should yield empty slice, got %v", got)
	}
}

func TestIsNickTakenIsCaseInsensitiveAndScopedToRoom(t *testing.T) {
	d := New(10)
	d.AddUser("s1", "Alice", "AAAAAAAA", "lobby")

	if !d.IsNickTaken("alice", "lobby", "s2") {
		t.Fatalf("expected case-insensitive collision in same room")
	}
	if d.IsNickTaken("alice", "lobby", "s1") {
		t.Fatalf("excluding the owning session should not report a collision")
	}
	if d.IsNickTaken("alice", "general", "s2") {
		t.Fatalf("nick collisions should be scoped to the room")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	d := New(10)
	count := 0
	tok := d.Subscribe(func(ev Event) { count++ })

	d.AddUser("s1", "alice", "AAAAAAAA", "lobby")
	d.Unsubscribe(tok)
	d.AddUser("s2", "bob", "BBBBBBBB", "lobby")

	if count != 1 {
		t.Fatalf("count = %d, want 1 (events after unsubscribe should not be delivered)", count)
	}
}

func TestConcurrentMutationDoesNotRace(t *testing.T) {
	d := New(50)
	d.Subscribe(func(ev Event) {})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sid := string(rune('a' + n%26))
			d.AddUser(sid, "nick", "AAAAAAAA", "lobby")
			d.AddMessage(chatmsg.Text("lobby", "nick", "AAAAAAAA", "hi"))
			d.RemoveUser(sid)
		}(i)
	}
	wg.Wait()
}
