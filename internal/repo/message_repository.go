package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/aditya2785/web-chat/internal/db"
	"github.com/aditya2785/web-chat/internal/model"
)

var (
	ErrInvalidMessage  = errors.New("invalid message: message cannot be nil")
	ErrInvalidUserID   = errors.New("invalid user ID: cannot be empty")
	ErrMessageNotFound = errors.New("message not found")
)

const (
	// Timeouts
	defaultWriteTimeout = 5 * time.Second
	defaultReadTimeout  = 30 * time.Second

	// Retry configuration
	maxRetries     = 3
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 2 * time.Second
)

type messageRepository struct {
	mongoRepo *db.Repository[model.Message]
	logger    *zap.Logger
}

// MessageRepository is the sole source of truth for conversation history and
// seen state at rest. Fan-out happens strictly after these operations return.
type MessageRepository interface {
	// InsertMessage persists a new message and returns it with its assigned id.
	InsertMessage(ctx context.Context, msg *model.Message) (*model.Message, error)
	// GetConversation returns all messages between the pair, ordered by
	// creation time ascending.
	GetConversation(ctx context.Context, userID, peerID string) ([]model.Message, error)
	// GetMessage returns a single message by id, or ErrMessageNotFound.
	GetMessage(ctx context.Context, id string) (*model.Message, error)
	// MarkConversationSeen flips seen on every unseen message sent by
	// senderID to receiverID and returns the affected messages. An empty
	// result means nothing was unseen.
	MarkConversationSeen(ctx context.Context, senderID, receiverID string) ([]model.Message, error)
	// MarkMessageSeen flips seen on one message. The bool reports whether
	// the flag actually transitioned false->true.
	MarkMessageSeen(ctx context.Context, id string) (*model.Message, bool, error)
	// CountUnseen counts unseen messages sent by senderID to receiverID.
	CountUnseen(ctx context.Context, senderID, receiverID string) (int64, error)
}

func NewMessageRepository(repo *db.Repository[model.Message], logger *zap.Logger) MessageRepository {
	return &messageRepository{
		mongoRepo: repo,
		logger:    logger,
	}
}

// -----------------------------------------------------------------------------
// InsertMessage
// -----------------------------------------------------------------------------

func (m *messageRepository) InsertMessage(ctx context.Context, msg *model.Message) (*model.Message, error) {
	if msg == nil {
		return nil, ErrInvalidMessage
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := m.waitForRetry(ctx, attempt); err != nil {
				return nil, err
			}
		}

		result, err := m.mongoRepo.Create(ctx, *msg)
		if err == nil {
			if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
				msg.ID = oid
			}

			m.logger.Info("message inserted",
				zap.String("message_id", msg.ID.Hex()),
				zap.String("sender_id", msg.SenderID.Hex()),
				zap.String("receiver_id", msg.ReceiverID.Hex()),
				zap.String("kind", msg.Kind),
				zap.Int("attempt", attempt+1),
			)
			return msg, nil
		}

		lastErr = err
		if !m.isRetryableError(err) {
			break
		}

		m.logger.Warn("insert attempt failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxRetries),
		)
	}

	m.logger.Error("failed to insert message after all retries", zap.Error(lastErr))
	return nil, fmt.Errorf("insert message failed: %w", lastErr)
}

// -----------------------------------------------------------------------------
// GetConversation
// -----------------------------------------------------------------------------

func (m *messageRepository) GetConversation(ctx context.Context, userID, peerID string) ([]model.Message, error) {
	if userID == "" || peerID == "" {
		return nil, ErrInvalidUserID
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	userOID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", userID, err)
	}
	peerOID, err := primitive.ObjectIDFromHex(peerID)
	if err != nil {
		return nil, fmt.Errorf("invalid peer id %q: %w", peerID, err)
	}

	filter := db.NewFilter().Or(
		bson.M{"senderId": userOID, "receiverId": peerOID},
		bson.M{"senderId": peerOID, "receiverId": userOID},
	).Build()

	msgs, err := m.mongoRepo.FindAllSorted(ctx, filter, "createdAt", false)
	if err != nil {
		return nil, fmt.Errorf("get conversation failed: %w", err)
	}

	m.logger.Debug("conversation fetched",
		zap.String("user_id", userID),
		zap.String("peer_id", peerID),
		zap.Int("count", len(msgs)),
	)
	return msgs, nil
}

// -----------------------------------------------------------------------------
// GetMessage / MarkMessageSeen
// -----------------------------------------------------------------------------

func (m *messageRepository) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	msg, err := m.mongoRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("get message failed: %w", err)
	}
	return msg, nil
}

func (m *messageRepository) MarkMessageSeen(ctx context.Context, id string) (*model.Message, bool, error) {
	msg, err := m.GetMessage(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if msg.Seen {
		// Already seen: idempotent, no transition.
		return msg, false, nil
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	if _, err := m.mongoRepo.UpdateByID(ctx, id, bson.M{"seen": true}); err != nil {
		return nil, false, fmt.Errorf("mark message seen failed: %w", err)
	}

	msg.Seen = true
	m.logger.Debug("message marked seen", zap.String("message_id", id))
	return msg, true, nil
}

// -----------------------------------------------------------------------------
// MarkConversationSeen
// -----------------------------------------------------------------------------

func (m *messageRepository) MarkConversationSeen(ctx context.Context, senderID, receiverID string) ([]model.Message, error) {
	if senderID == "" || receiverID == "" {
		return nil, ErrInvalidUserID
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := m.directedUnseenFilter(senderID, receiverID)

	// Collect the affected messages first so the caller can emit exactly one
	// event per transitioned message, then commit the flag flip.
	unseen, err := m.mongoRepo.FindAllSorted(ctx, filter, "createdAt", false)
	if err != nil {
		return nil, fmt.Errorf("find unseen messages failed: %w", err)
	}
	if len(unseen) == 0 {
		return nil, nil
	}

	if _, err := m.mongoRepo.UpdateMany(ctx, filter, bson.M{"seen": true}); err != nil {
		return nil, fmt.Errorf("mark conversation seen failed: %w", err)
	}

	for i := range unseen {
		unseen[i].Seen = true
	}

	m.logger.Debug("conversation marked seen",
		zap.String("sender_id", senderID),
		zap.String("receiver_id", receiverID),
		zap.Int("count", len(unseen)),
	)
	return unseen, nil
}

// -----------------------------------------------------------------------------
// CountUnseen
// -----------------------------------------------------------------------------

func (m *messageRepository) CountUnseen(ctx context.Context, senderID, receiverID string) (int64, error) {
	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	return m.mongoRepo.Count(ctx, m.directedUnseenFilter(senderID, receiverID))
}

// -----------------------------------------------------------------------------
// Private Helper Methods
// -----------------------------------------------------------------------------

func (m *messageRepository) directedUnseenFilter(senderID, receiverID string) bson.M {
	return db.NewFilter().
		ObjectID("senderId", senderID).
		ObjectID("receiverId", receiverID).
		Eq("seen", false).
		Build()
}

func (m *messageRepository) ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func (m *messageRepository) waitForRetry(ctx context.Context, attempt int) error {
	delay := time.Duration(1<<uint(attempt)) * baseRetryDelay
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (m *messageRepository) isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	return mongo.IsTimeout(err) || mongo.IsNetworkError(err)
}
