package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/aditya2785/web-chat/internal/event"
	"github.com/aditya2785/web-chat/internal/media"
	"github.com/aditya2785/web-chat/internal/metrics"
	"github.com/aditya2785/web-chat/internal/model"
	"github.com/aditya2785/web-chat/internal/repo"
)

var (
	ErrValidation = errors.New("invalid request")
	ErrNotFound   = errors.New("not found")
)

// Notifier pushes realtime events to a user's live connections. A user with
// zero connections receives nothing; that is never an error. Implemented by
// the hub, faked in tests.
type Notifier interface {
	// SendToUser delivers ev to every live connection of userID.
	SendToUser(userID string, ev event.WsEvent)
	// Broadcast delivers ev to every live connection.
	Broadcast(ev event.WsEvent)
}

// ConversationService implements the conversation operations. Every mutation
// follows the same shape: commit to the store first, fan out events second.
// An event is never observable before its state is durably persisted.
type ConversationService interface {
	ListPeers(ctx context.Context, userID string) ([]model.Peer, error)
	FetchConversation(ctx context.Context, userID, peerID string) ([]model.Message, error)
	SendMessage(ctx context.Context, senderID, receiverID string, payload model.MessagePayload) (*model.Message, error)
	MarkSeen(ctx context.Context, messageID string) (*model.Message, error)
}

type conversationService struct {
	messages repo.MessageRepository
	users    repo.UserRepository
	notifier Notifier
	media    media.Storage
	logger   *zap.Logger
}

func NewConversationService(
	messages repo.MessageRepository,
	users repo.UserRepository,
	notifier Notifier,
	mediaStore media.Storage,
	logger *zap.Logger,
) ConversationService {
	return &conversationService{
		messages: messages,
		users:    users,
		notifier: notifier,
		media:    mediaStore,
		logger:   logger,
	}
}

// -----------------------------------------------------------------------------
// ListPeers
// -----------------------------------------------------------------------------

func (s *conversationService) ListPeers(ctx context.Context, userID string) ([]model.Peer, error) {
	users, err := s.users.ListUsersExcept(ctx, userID)
	if err != nil {
		return nil, err
	}

	peers := make([]model.Peer, 0, len(users))
	for _, u := range users {
		count, err := s.messages.CountUnseen(ctx, u.ID.Hex(), userID)
		if err != nil {
			return nil, err
		}
		peers = append(peers, model.Peer{User: u, UnseenCount: count})
	}
	return peers, nil
}

// -----------------------------------------------------------------------------
// FetchConversation
// -----------------------------------------------------------------------------

func (s *conversationService) FetchConversation(ctx context.Context, userID, peerID string) ([]model.Message, error) {
	msgs, err := s.messages.GetConversation(ctx, userID, peerID)
	if err != nil {
		return nil, err
	}

	// Fetching a conversation means the caller is looking at it: flip seen on
	// everything the peer sent that the caller had not seen, then tell the
	// peer, one event per transitioned message. When nothing was unseen this
	// is a strict no-op, not an empty broadcast.
	affected, err := s.messages.MarkConversationSeen(ctx, peerID, userID)
	if err != nil {
		return nil, err
	}

	for _, m := range affected {
		s.emitToUser(peerID, event.EventMessageSeen, m.ID.Hex())
	}

	// Reflect the flips in the returned slice so the caller sees current state.
	if len(affected) > 0 {
		seen := make(map[primitive.ObjectID]bool, len(affected))
		for _, m := range affected {
			seen[m.ID] = true
		}
		for i := range msgs {
			if seen[msgs[i].ID] {
				msgs[i].Seen = true
			}
		}
	}

	return msgs, nil
}

// -----------------------------------------------------------------------------
// SendMessage
// -----------------------------------------------------------------------------

func (s *conversationService) SendMessage(ctx context.Context, senderID, receiverID string, payload model.MessagePayload) (*model.Message, error) {
	kind := payload.Kind()
	if kind == "" {
		return nil, fmt.Errorf("%w: %v", ErrValidation, model.ErrInvalidPayload)
	}

	senderOID, err := primitive.ObjectIDFromHex(senderID)
	if err != nil {
		return nil, fmt.Errorf("%w: bad sender id", ErrValidation)
	}
	receiverOID, err := primitive.ObjectIDFromHex(receiverID)
	if err != nil {
		return nil, fmt.Errorf("%w: bad receiver id", ErrValidation)
	}
	if _, err := s.users.GetUserByID(ctx, receiverID); err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: receiver", ErrNotFound)
		}
		return nil, err
	}

	// Inline image payloads are uploaded before anything is persisted; the
	// stored record only ever carries the resulting URL. Voice payloads pass
	// through as-is, matching the existing client contract.
	if kind == model.KindImage && strings.HasPrefix(payload.Image, "data:") {
		url, err := s.media.SaveImage(ctx, payload.Image)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		payload.Image = url
	}

	msg := &model.Message{
		SenderID:   senderOID,
		ReceiverID: receiverOID,
		Kind:       kind,
		Text:       payload.Text,
		Image:      payload.Image,
		Voice:      payload.Voice,
		File:       payload.File,
		Seen:       false,
		Delivered:  false,
		CreatedAt:  time.Now().UTC(),
	}

	persisted, err := s.messages.InsertMessage(ctx, msg)
	if err != nil {
		// No fan-out on a failed commit.
		return nil, err
	}

	metrics.MessagesTotal.WithLabelValues(kind).Inc()

	// Store commit succeeded; now notify. Receiver gets the full record,
	// sender gets a delivery acknowledgement on every one of its own
	// connections (multi-device senders included).
	s.emitToUser(receiverID, event.EventNewMessage, persisted)
	s.emitToUser(senderID, event.EventMessageDelivered, persisted.ID.Hex())

	return persisted, nil
}

// -----------------------------------------------------------------------------
// MarkSeen
// -----------------------------------------------------------------------------

func (s *conversationService) MarkSeen(ctx context.Context, messageID string) (*model.Message, error) {
	msg, transitioned, err := s.messages.MarkMessageSeen(ctx, messageID)
	if err != nil {
		if errors.Is(err, repo.ErrMessageNotFound) {
			return nil, fmt.Errorf("%w: message %s", ErrNotFound, messageID)
		}
		return nil, err
	}

	// Re-marking an already-seen message produces no event.
	if transitioned {
		s.emitToUser(msg.SenderID.Hex(), event.EventMessageSeen, msg.ID.Hex())
	}
	return msg, nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (s *conversationService) emitToUser(userID, name string, payload any) {
	ev, err := event.New(name, payload)
	if err != nil {
		s.logger.Error("failed to encode event",
			zap.String("event", name),
			zap.Error(err),
		)
		return
	}
	s.notifier.SendToUser(userID, ev)
}
