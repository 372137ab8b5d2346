package hub

import (
	"encoding/json"
	"testing"

	"go.uber.org/zap"

	"github.com/aditya2785/web-chat/internal/auth"
	"github.com/aditya2785/web-chat/internal/event"
	"github.com/aditya2785/web-chat/internal/presence"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(presence.NewRegistry(), auth.NewTokenService("test-secret"), zap.NewNop())
	t.Cleanup(h.Stop)
	return h
}

// addTestClient registers a pumpless client directly, bypassing the
// register channel so tests stay deterministic.
func addTestClient(h *Hub, userID string) *Client {
	c := newClient(userID, nil, h)
	h.addClient(c)
	return c
}

// drain empties a client's egress buffer and returns what was queued.
func drain(c *Client) []event.WsEvent {
	var out []event.WsEvent
	for {
		select {
		case ev := <-c.egress:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func drainAll(clients ...*Client) {
	for _, c := range clients {
		drain(c)
	}
}

func TestSendToUserFanOut(t *testing.T) {
	h := newTestHub(t)

	// Bob on two devices, alice on one.
	c1 := addTestClient(h, "bob")
	c2 := addTestClient(h, "bob")
	c3 := addTestClient(h, "alice")
	drainAll(c1, c2, c3)

	ev, _ := event.New(event.EventNewMessage, map[string]string{"text": "hi"})
	h.SendToUser("bob", ev)

	for _, c := range []*Client{c1, c2} {
		got := drain(c)
		if len(got) != 1 {
			t.Fatalf("connection %s got %d events, want 1", c.ID, len(got))
		}
		if got[0].Event != event.EventNewMessage {
			t.Errorf("connection %s got %q", c.ID, got[0].Event)
		}
	}
	if got := drain(c3); len(got) != 0 {
		t.Errorf("alice's connection got %d events, want 0", len(got))
	}
}

func TestSendToUserOfflineDropsSilently(t *testing.T) {
	h := newTestHub(t)

	c1 := addTestClient(h, "alice")
	drain(c1)

	ev, _ := event.New(event.EventNewMessage, "anything")
	h.SendToUser("nobody", ev)

	if got := drain(c1); len(got) != 0 {
		t.Errorf("bystander received %d events for an offline target", len(got))
	}
}

func TestRosterBroadcastOnRegisterAndUnregister(t *testing.T) {
	h := newTestHub(t)

	c1 := addTestClient(h, "alice")
	drain(c1)

	c2 := addTestClient(h, "bob")
	// Both connections hear about bob coming online.
	for _, c := range []*Client{c1, c2} {
		got := drain(c)
		if len(got) != 1 || got[0].Event != event.EventOnlineUsers {
			t.Fatalf("expected one roster event on connection %s, got %v", c.ID, got)
		}
		var roster []string
		if err := json.Unmarshal(got[0].Payload, &roster); err != nil {
			t.Fatalf("roster payload: %v", err)
		}
		if len(roster) != 2 {
			t.Errorf("roster = %v, want alice and bob", roster)
		}
	}

	h.removeClient(c2)
	got := drain(c1)
	if len(got) != 1 || got[0].Event != event.EventOnlineUsers {
		t.Fatalf("expected one roster event after unregister, got %v", got)
	}
	var roster []string
	json.Unmarshal(got[0].Payload, &roster)
	if len(roster) != 1 || roster[0] != "alice" {
		t.Errorf("roster after bob left = %v, want [alice]", roster)
	}
}

func TestMultiDevicePresenceSurvivesOneDisconnect(t *testing.T) {
	h := newTestHub(t)

	c1 := addTestClient(h, "bob")
	c2 := addTestClient(h, "bob")
	c3 := addTestClient(h, "alice")
	drainAll(c1, c2, c3)

	h.removeClient(c1)
	drainAll(c2, c3)

	ev, _ := event.New(event.EventNewMessage, "still here")
	h.SendToUser("bob", ev)

	if got := drain(c2); len(got) != 1 {
		t.Fatalf("surviving device got %d events, want 1", len(got))
	}

	h.removeClient(c2)
	drain(c3)
	h.SendToUser("bob", ev)
	if got := drain(c3); len(got) != 0 {
		t.Errorf("events delivered after bob's last device left: %v", got)
	}
}

func TestDoubleUnregisterIsNoOp(t *testing.T) {
	h := newTestHub(t)

	c1 := addTestClient(h, "alice")
	c2 := addTestClient(h, "bob")
	drainAll(c1, c2)

	h.removeClient(c1)
	drain(c2)
	h.removeClient(c1)

	// The second removal must not fire another roster broadcast.
	if got := drain(c2); len(got) != 0 {
		t.Errorf("double unregister broadcast %d extra events", len(got))
	}
}

func TestTypingRoutedToReceiverOnly(t *testing.T) {
	h := newTestHub(t)

	bob := addTestClient(h, "bob")
	alice := addTestClient(h, "alice")
	carol := addTestClient(h, "carol")
	drainAll(bob, alice, carol)

	payload, _ := json.Marshal(event.TypingSignal{SenderID: "spoofed", ReceiverID: "alice"})
	h.handleEvent(event.WsEvent{Event: event.EventClientTyping, Payload: payload}, bob)

	got := drain(alice)
	if len(got) != 1 || got[0].Event != event.EventTyping {
		t.Fatalf("alice expected one typing event, got %v", got)
	}
	var sig event.TypingSignal
	json.Unmarshal(got[0].Payload, &sig)
	if sig.SenderID != "bob" {
		t.Errorf("typing sender = %q, want the authenticated user bob", sig.SenderID)
	}

	if got := drain(carol); len(got) != 0 {
		t.Error("typing signal must never broadcast")
	}
	if got := drain(bob); len(got) != 0 {
		t.Error("typing signal must not echo to the sender")
	}
}

func TestTypingWithoutReceiverDropped(t *testing.T) {
	h := newTestHub(t)

	bob := addTestClient(h, "bob")
	alice := addTestClient(h, "alice")
	drainAll(bob, alice)

	payload, _ := json.Marshal(event.TypingSignal{SenderID: "bob"})
	h.handleEvent(event.WsEvent{Event: event.EventClientStopTyping, Payload: payload}, bob)

	if got := drain(alice); len(got) != 0 {
		t.Errorf("signal without receiver routed anyway: %v", got)
	}
}

func TestOptimisticSendRelay(t *testing.T) {
	h := newTestHub(t)

	bob := addTestClient(h, "bob")
	alice1 := addTestClient(h, "alice")
	alice2 := addTestClient(h, "alice")
	drainAll(bob, alice1, alice2)

	record := map[string]string{
		"_id":        "abc123",
		"senderId":   "bob",
		"receiverId": "alice",
		"text":       "hi",
	}
	payload, _ := json.Marshal(record)
	h.handleEvent(event.WsEvent{Event: event.EventClientSend, Payload: payload}, bob)

	for _, c := range []*Client{alice1, alice2} {
		got := drain(c)
		if len(got) != 1 || got[0].Event != event.EventNewMessage {
			t.Fatalf("receiver connection expected newMessage, got %v", got)
		}
	}

	got := drain(bob)
	if len(got) != 1 || got[0].Event != event.EventMessageDelivered {
		t.Fatalf("sender expected messageDelivered, got %v", got)
	}
	var id string
	json.Unmarshal(got[0].Payload, &id)
	if id != "abc123" {
		t.Errorf("delivered id = %q, want abc123", id)
	}
}

func TestMonitorStats(t *testing.T) {
	h := newTestHub(t)
	ms := NewMonitorService(h)

	if stats := ms.GetStats(); stats.Status != "idle" {
		t.Errorf("empty hub status = %q, want idle", stats.Status)
	}

	addTestClient(h, "bob")
	addTestClient(h, "bob")
	addTestClient(h, "alice")

	stats := ms.GetStats()
	if stats.Status != "healthy" {
		t.Errorf("status = %q, want healthy", stats.Status)
	}
	if stats.Connections.TotalConnected != 3 {
		t.Errorf("TotalConnected = %d, want 3", stats.Connections.TotalConnected)
	}
	if stats.Connections.OnlineUsers != 2 {
		t.Errorf("OnlineUsers = %d, want 2", stats.Connections.OnlineUsers)
	}
	for _, u := range stats.Users {
		want := 1
		if u.UserID == "bob" {
			want = 2
		}
		if u.Connections != want {
			t.Errorf("user %s connections = %d, want %d", u.UserID, u.Connections, want)
		}
	}
}
