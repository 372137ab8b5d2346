package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/aditya2785/web-chat/internal/event"
	"github.com/aditya2785/web-chat/internal/model"
	"github.com/aditya2785/web-chat/internal/repo"
)

// -----------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------

type sentEvent struct {
	userID string
	ev     event.WsEvent
}

type fakeNotifier struct {
	sent      []sentEvent
	broadcast []event.WsEvent
}

func (f *fakeNotifier) SendToUser(userID string, ev event.WsEvent) {
	f.sent = append(f.sent, sentEvent{userID: userID, ev: ev})
}

func (f *fakeNotifier) Broadcast(ev event.WsEvent) {
	f.broadcast = append(f.broadcast, ev)
}

func (f *fakeNotifier) eventsFor(userID, name string) []event.WsEvent {
	var out []event.WsEvent
	for _, s := range f.sent {
		if s.userID == userID && s.ev.Event == name {
			out = append(out, s.ev)
		}
	}
	return out
}

type fakeMessageRepo struct {
	messages  []model.Message
	failWrite bool
}

func (f *fakeMessageRepo) InsertMessage(_ context.Context, msg *model.Message) (*model.Message, error) {
	if f.failWrite {
		return nil, errors.New("store unavailable")
	}
	msg.ID = primitive.NewObjectID()
	f.messages = append(f.messages, *msg)
	return msg, nil
}

func (f *fakeMessageRepo) GetConversation(_ context.Context, userID, peerID string) ([]model.Message, error) {
	var out []model.Message
	for _, m := range f.messages {
		s, r := m.SenderID.Hex(), m.ReceiverID.Hex()
		if (s == userID && r == peerID) || (s == peerID && r == userID) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMessageRepo) GetMessage(_ context.Context, id string) (*model.Message, error) {
	for i := range f.messages {
		if f.messages[i].ID.Hex() == id {
			m := f.messages[i]
			return &m, nil
		}
	}
	return nil, repo.ErrMessageNotFound
}

func (f *fakeMessageRepo) MarkConversationSeen(_ context.Context, senderID, receiverID string) ([]model.Message, error) {
	if f.failWrite {
		return nil, errors.New("store unavailable")
	}
	var affected []model.Message
	for i := range f.messages {
		m := &f.messages[i]
		if m.SenderID.Hex() == senderID && m.ReceiverID.Hex() == receiverID && !m.Seen {
			m.Seen = true
			affected = append(affected, *m)
		}
	}
	return affected, nil
}

func (f *fakeMessageRepo) MarkMessageSeen(_ context.Context, id string) (*model.Message, bool, error) {
	for i := range f.messages {
		if f.messages[i].ID.Hex() == id {
			if f.messages[i].Seen {
				m := f.messages[i]
				return &m, false, nil
			}
			f.messages[i].Seen = true
			m := f.messages[i]
			return &m, true, nil
		}
	}
	return nil, false, repo.ErrMessageNotFound
}

func (f *fakeMessageRepo) CountUnseen(_ context.Context, senderID, receiverID string) (int64, error) {
	var n int64
	for _, m := range f.messages {
		if m.SenderID.Hex() == senderID && m.ReceiverID.Hex() == receiverID && !m.Seen {
			n++
		}
	}
	return n, nil
}

type fakeUserRepo struct {
	users map[string]model.User
}

func (f *fakeUserRepo) CreateUser(_ context.Context, u *model.User) (*model.User, error) {
	u.ID = primitive.NewObjectID()
	f.users[u.ID.Hex()] = *u
	return u, nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, repo.ErrUserNotFound
	}
	return &u, nil
}

func (f *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, repo.ErrUserNotFound
}

func (f *fakeUserRepo) ListUsersExcept(_ context.Context, id string) ([]model.User, error) {
	var out []model.User
	for _, u := range f.users {
		if u.ID.Hex() != id {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeUserRepo) UpdateUser(_ context.Context, id string, _ bson.M) (*model.User, error) {
	u := f.users[id]
	return &u, nil
}

func (f *fakeUserRepo) DeleteUser(_ context.Context, id string) error {
	delete(f.users, id)
	return nil
}

type fakeMedia struct{}

func (fakeMedia) SaveImage(context.Context, string) (string, error) {
	return "/media/fake.png", nil
}

func (fakeMedia) SaveBlob(context.Context, string, string, []byte) (string, error) {
	return "/media/fake.bin", nil
}

// -----------------------------------------------------------------
// Fixture
// -----------------------------------------------------------------

type fixture struct {
	svc      ConversationService
	messages *fakeMessageRepo
	notifier *fakeNotifier
	alice    string
	bob      string
	carol    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	users := &fakeUserRepo{users: make(map[string]model.User)}
	var ids []string
	for _, name := range []string{"alice", "bob", "carol"} {
		u, err := users.CreateUser(context.Background(), &model.User{
			FullName: name,
			Email:    name + "@example.com",
		})
		if err != nil {
			t.Fatalf("create user: %v", err)
		}
		ids = append(ids, u.ID.Hex())
	}

	messages := &fakeMessageRepo{}
	notifier := &fakeNotifier{}
	svc := NewConversationService(messages, users, notifier, fakeMedia{}, zap.NewNop())

	return &fixture{
		svc:      svc,
		messages: messages,
		notifier: notifier,
		alice:    ids[0],
		bob:      ids[1],
		carol:    ids[2],
	}
}

func textPayload(text string) model.MessagePayload {
	return model.MessagePayload{Text: text}
}

// -----------------------------------------------------------------
// Send fan-out
// -----------------------------------------------------------------

func TestSendMessageFanOut(t *testing.T) {
	f := newFixture(t)

	msg, err := f.svc.SendMessage(context.Background(), f.alice, f.bob, textPayload("hi"))
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if msg.ID.IsZero() {
		t.Fatal("returned message has no assigned id")
	}
	if msg.Seen || msg.Delivered {
		t.Error("new message must start with seen=false delivered=false")
	}
	if msg.Kind != model.KindText {
		t.Errorf("expected kind text, got %q", msg.Kind)
	}

	// Exactly one newMessage toward bob, carrying the full record.
	news := f.notifier.eventsFor(f.bob, event.EventNewMessage)
	if len(news) != 1 {
		t.Fatalf("expected 1 newMessage to receiver, got %d", len(news))
	}
	var record model.Message
	if err := json.Unmarshal(news[0].Payload, &record); err != nil {
		t.Fatalf("newMessage payload not a message record: %v", err)
	}
	if record.ID != msg.ID || record.Text != "hi" {
		t.Errorf("newMessage carries wrong record: %+v", record)
	}

	// Exactly one messageDelivered toward alice, carrying the id.
	delivered := f.notifier.eventsFor(f.alice, event.EventMessageDelivered)
	if len(delivered) != 1 {
		t.Fatalf("expected 1 messageDelivered to sender, got %d", len(delivered))
	}
	var id string
	if err := json.Unmarshal(delivered[0].Payload, &id); err != nil || id != msg.ID.Hex() {
		t.Errorf("messageDelivered payload = %s, want %s", delivered[0].Payload, msg.ID.Hex())
	}

	// Nothing for anyone else.
	if got := f.notifier.eventsFor(f.carol, event.EventNewMessage); len(got) != 0 {
		t.Errorf("carol received %d events, want 0", len(got))
	}
	if len(f.notifier.sent) != 2 {
		t.Errorf("expected exactly 2 events total, got %d", len(f.notifier.sent))
	}
}

func TestSendMessageValidation(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name    string
		payload model.MessagePayload
	}{
		{"empty", model.MessagePayload{}},
		{"two kinds", model.MessagePayload{Text: "hi", Image: "http://x/i.png"}},
		{"file without url", model.MessagePayload{File: &model.FileInfo{Name: "a.pdf"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.SendMessage(context.Background(), f.alice, f.bob, tc.payload)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("validation failures must not fan out events, got %d", len(f.notifier.sent))
	}
	if len(f.messages.messages) != 0 {
		t.Errorf("validation failures must not persist, got %d records", len(f.messages.messages))
	}
}

func TestSendMessageUnknownReceiver(t *testing.T) {
	f := newFixture(t)

	ghost := primitive.NewObjectID().Hex()
	_, err := f.svc.SendMessage(context.Background(), f.alice, ghost, textPayload("hi"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(f.notifier.sent) != 0 {
		t.Error("no events may fire for a rejected send")
	}
}

func TestSendMessagePersistBeforeNotify(t *testing.T) {
	// A failed store commit must produce zero events.
	f := newFixture(t)
	f.messages.failWrite = true

	_, err := f.svc.SendMessage(context.Background(), f.alice, f.bob, textPayload("hi"))
	if err == nil {
		t.Fatal("expected store failure to surface")
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("events fired despite failed commit: %d", len(f.notifier.sent))
	}
}

func TestSendMessageOfflineReceiver(t *testing.T) {
	// Presence is the notifier's concern; the service persists and reports
	// success regardless. The notifier fake here stands in for a hub whose
	// registry has no connections for bob: the event is handed over and
	// dropped there, never an error.
	f := newFixture(t)

	msg, err := f.svc.SendMessage(context.Background(), f.alice, f.bob, textPayload("hi"))
	if err != nil {
		t.Fatalf("send to offline receiver must succeed: %v", err)
	}
	if len(f.messages.messages) != 1 {
		t.Fatalf("message not persisted: %d records", len(f.messages.messages))
	}
	if msg.Seen {
		t.Error("message must persist unseen")
	}
}

func TestSendMessageResolvesInlineImage(t *testing.T) {
	f := newFixture(t)

	msg, err := f.svc.SendMessage(context.Background(), f.alice, f.bob, model.MessagePayload{
		Image: "data:image/png;base64,aGk=",
	})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if msg.Image != "/media/fake.png" {
		t.Errorf("inline image not resolved to a URL: %q", msg.Image)
	}
	if msg.Kind != model.KindImage {
		t.Errorf("expected kind image, got %q", msg.Kind)
	}
}

// -----------------------------------------------------------------
// Fetch / seen semantics
// -----------------------------------------------------------------

func TestFetchConversationMarksSeenAndNotifies(t *testing.T) {
	f := newFixture(t)

	// Bob sends two messages to alice; alice sends one back.
	m1, _ := f.svc.SendMessage(context.Background(), f.bob, f.alice, textPayload("one"))
	m2, _ := f.svc.SendMessage(context.Background(), f.bob, f.alice, textPayload("two"))
	f.svc.SendMessage(context.Background(), f.alice, f.bob, textPayload("reply"))
	f.notifier.sent = nil

	msgs, err := f.svc.FetchConversation(context.Background(), f.alice, f.bob)
	if err != nil {
		t.Fatalf("FetchConversation failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}

	// One messageSeenUpdate per affected message, toward bob only.
	seenEvents := f.notifier.eventsFor(f.bob, event.EventMessageSeen)
	if len(seenEvents) != 2 {
		t.Fatalf("expected 2 messageSeenUpdate events, got %d", len(seenEvents))
	}
	got := map[string]bool{}
	for _, ev := range seenEvents {
		var id string
		json.Unmarshal(ev.Payload, &id)
		got[id] = true
	}
	if !got[m1.ID.Hex()] || !got[m2.ID.Hex()] {
		t.Errorf("seen events name wrong ids: %v", got)
	}
	if len(f.notifier.sent) != 2 {
		t.Errorf("expected exactly 2 events total, got %d", len(f.notifier.sent))
	}

	// Returned slice reflects the flips.
	for _, m := range msgs {
		if m.SenderID.Hex() == f.bob && !m.Seen {
			t.Errorf("message %s still unseen in fetch result", m.ID.Hex())
		}
	}
}

func TestFetchConversationNoUnseenIsNoOp(t *testing.T) {
	f := newFixture(t)

	f.svc.SendMessage(context.Background(), f.bob, f.alice, textPayload("one"))
	f.notifier.sent = nil

	// First fetch flips the flag; second must be silent.
	if _, err := f.svc.FetchConversation(context.Background(), f.alice, f.bob); err != nil {
		t.Fatal(err)
	}
	f.notifier.sent = nil

	if _, err := f.svc.FetchConversation(context.Background(), f.alice, f.bob); err != nil {
		t.Fatal(err)
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("re-fetch with nothing unseen fired %d events, want 0", len(f.notifier.sent))
	}
}

func TestMarkSeenMonotonic(t *testing.T) {
	f := newFixture(t)

	msg, _ := f.svc.SendMessage(context.Background(), f.alice, f.bob, textPayload("hi"))
	f.notifier.sent = nil

	// First mark transitions and fires exactly one event to the sender.
	if _, err := f.svc.MarkSeen(context.Background(), msg.ID.Hex()); err != nil {
		t.Fatalf("MarkSeen failed: %v", err)
	}
	if got := f.notifier.eventsFor(f.alice, event.EventMessageSeen); len(got) != 1 {
		t.Fatalf("expected 1 messageSeenUpdate, got %d", len(got))
	}

	// Re-marking is idempotent and silent.
	f.notifier.sent = nil
	got, err := f.svc.MarkSeen(context.Background(), msg.ID.Hex())
	if err != nil {
		t.Fatalf("second MarkSeen failed: %v", err)
	}
	if !got.Seen {
		t.Error("message lost its seen flag")
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("re-mark fired %d events, want 0", len(f.notifier.sent))
	}
}

func TestMarkSeenUnknownMessage(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.MarkSeen(context.Background(), primitive.NewObjectID().Hex())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(f.notifier.sent) != 0 {
		t.Error("no events may fire for an unknown message")
	}
}

// -----------------------------------------------------------------
// ListPeers
// -----------------------------------------------------------------

func TestListPeersUnseenCounts(t *testing.T) {
	f := newFixture(t)

	f.svc.SendMessage(context.Background(), f.bob, f.alice, textPayload("one"))
	f.svc.SendMessage(context.Background(), f.bob, f.alice, textPayload("two"))
	f.svc.SendMessage(context.Background(), f.carol, f.alice, textPayload("three"))
	f.notifier.sent = nil

	peers, err := f.svc.ListPeers(context.Background(), f.alice)
	if err != nil {
		t.Fatalf("ListPeers failed: %v", err)
	}
	if len(peers) != 2 {
		t.Fatalf("expected 2 peers, got %d", len(peers))
	}

	counts := map[string]int64{}
	for _, p := range peers {
		counts[p.User.ID.Hex()] = p.UnseenCount
	}
	if counts[f.bob] != 2 {
		t.Errorf("bob unseen count = %d, want 2", counts[f.bob])
	}
	if counts[f.carol] != 1 {
		t.Errorf("carol unseen count = %d, want 1", counts[f.carol])
	}
	if len(f.notifier.sent) != 0 {
		t.Error("ListPeers is a pure read and must not fan out")
	}
}

// -----------------------------------------------------------------
// End-to-end scenario: offline receiver catches up
// -----------------------------------------------------------------

func TestOfflineReceiverCatchesUpOnFetch(t *testing.T) {
	f := newFixture(t)

	// Alice sends while bob is "offline" (events go to the notifier and
	// would be dropped by a hub with no connections for bob).
	msg, err := f.svc.SendMessage(context.Background(), f.alice, f.bob, textPayload("hi"))
	if err != nil {
		t.Fatal(err)
	}
	f.notifier.sent = nil

	// Bob comes back and fetches: the message appears, seen flips now, and
	// the sender is told.
	msgs, err := f.svc.FetchConversation(context.Background(), f.bob, f.alice)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].ID != msg.ID {
		t.Fatalf("bob does not see the stored message: %+v", msgs)
	}
	if !msgs[0].Seen {
		t.Error("seen must flip at fetch time")
	}
	if got := f.notifier.eventsFor(f.alice, event.EventMessageSeen); len(got) != 1 {
		t.Errorf("expected 1 messageSeenUpdate to alice, got %d", len(got))
	}
}
