package room

import (
	"context"
	"testing"

	"github.com/dastanhayama/whisper/internal/chatmsg"
	"github.com/dastanhayama/whisper/internal/overlay"
)

func TestTopicRoundTrip(t *testing.T) {
	if got := Topic("Lobby"); got != "/whisper/room/lobby" {
		t.Fatalf("Topic = %q", got)
	}
	room, ok := RoomFromTopic("/whisper/room/lobby")
	if !ok || room != "lobby" {
		t.Fatalf("RoomFromTopic = %q, %v", room, ok)
	}
	if _, ok := RoomFromTopic("/other/topic"); ok {
		t.Fatalf("non-whisper topic should not parse")
	}
}

func TestJoinRoomDeliversToBothSubscribers(t *testing.T) {
	net := overlay.NewNetwork()
	ovA := net.NewPeer("a")
	ovB := net.NewPeer("b")

	ra := New(ovA)
	rb := New(ovB)

	var aGot, bGot []string
	ra.JoinRoom(context.Background(), "lobby", func(room, from string, msg chatmsg.ChatMessage) {
		aGot = append(aGot, msg.Content)
	})
	rb.JoinRoom(context.Background(), "lobby", func(room, from string, msg chatmsg.ChatMessage) {
		bGot = append(bGot, msg.Content)
	})

	m := chatmsg.Text("lobby", "alice", "AAAAAAAA", "hi")
	if err := ra.SendMessage(context.Background(), "lobby", m); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if len(aGot) != 0 {
		t.Fatalf("publisher's own router should not see its own message via overlay echo, got %v", aGot)
	}
	if len(bGot) != 1 || bGot[0] != "hi" {
		t.Fatalf("bGot = %v, want [hi]", bGot)
	}
}

func TestSendMessageToEmptyTopicIsNotAnError(t *testing.T) {
	net := overlay.NewNetwork()
	ov := net.NewPeer("solo")
	r := New(ov)

	r.JoinRoom(context.Background(), "lobby", func(string, string, chatmsg.ChatMessage) {})
	m := chatmsg.Text("lobby", "alice", "AAAAAAAA", "hi")
	err := r.SendMessage(context.Background(), "lobby", m)
	if err != nil {
		t.Fatalf("publish to empty topic should succeed, got %v", err)
	}
}

func TestLeaveRoomUnsubscribesOnlyAfterLastLeaver(t *testing.T) {
	net := overlay.NewNetwork()
	ovA := net.NewPeer("a")
	ovB := net.NewPeer("b")
	ra := New(ovA)
	rb := New(ovB)

	tokA, _ := ra.JoinRoom(context.Background(), "lobby", func(string, string, chatmsg.ChatMessage) {})
	rb.JoinRoom(context.Background(), "lobby", func(string, string, chatmsg.ChatMessage) {})

	if err := ra.LeaveRoom("lobby", tokA); err != nil {
		t.Fatalf("LeaveRoom: %v", err)
	}
	// b is still subscribed at the overlay level even though a left.
	if peers := ovB.Peers(Topic("lobby")); len(peers) != 0 {
		t.Fatalf("b should have no remaining peers after a left, got %v", peers)
	}
	if err := ra.LeaveRoom("lobby", tokA); err != nil {
		t.Fatalf("second LeaveRoom with same token should be idempotent, got %v", err)
	}
}

func TestGetSubscribedRoomsAndPeers(t *testing.T) {
	net := overlay.NewNetwork()
	ovA := net.NewPeer("a")
	ovB := net.NewPeer("b")
	ra := New(ovA)
	rb := New(ovB)

	ra.JoinRoom(context.Background(), "lobby", func(string, string, chatmsg.ChatMessage) {})
	rb.JoinRoom(context.Background(), "lobby", func(string, string, chatmsg.ChatMessage) {})

	rooms := ra.GetSubscribedRooms()
	if len(rooms) != 1 || rooms[0] != "lobby" {
		t.Fatalf("rooms = %v", rooms)
	}
	peers := ra.GetRoomPeers("lobby")
	if len(peers) != 1 || peers[0] != "b" {
		t.Fatalf("peers = %v, want [b]", peers)
	}
}

func TestNonWhisperTopicIsIgnoredByInboundDispatch(t *testing.T) {
	net := overlay.NewNetwork()
	ov := net.NewPeer("a")
	r := New(ov)

	called := false
	r.JoinRoom(context.Background(), "lobby", func(string, string, chatmsg.ChatMessage) { called = true })

	r.handleInbound("/not-whisper/lobby", "someone", []byte("x"))
	if called {
		t.Fatalf("handler for lobby should not fire for an unrelated topic")
	}
}

func TestUndecodableMessageIsDroppedNotDelivered(t *testing.T) {
	net := overlay.NewNetwork()
	ov := net.NewPeer("a")
	r := New(ov)

	called := false
	r.JoinRoom(context.Background(), "lobby", func(string, string, chatmsg.ChatMessage) { called = true })

	r.handleInbound(Topic("lobby"), "someone", []byte("not json"))
	if called {
		t.Fatalf("handler should not fire for an undecodable payload")
	}
}
