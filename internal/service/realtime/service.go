package realtime

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/velora-app/velora/internal/app"
	"github.com/velora-app/velora/internal/apperrors"
	"github.com/velora-app/velora/internal/db"
	"github.com/velora-app/velora/internal/hub"
	"github.com/velora-app/velora/internal/repository"
)

// messagePreviewLen bounds how much message text leaks into the
// notification body.
const messagePreviewLen = 30

// Service owns notifications, chat messages and presence. Messaging is
// gated on an active connection between the two users.
type Service struct {
	appCtx      *app.AppContext
	users       *repository.UserRepository
	profiles    *repository.ProfileRepository
	connections *repository.ConnectionRepository
	notifs      *repository.NotificationRepository
	messages    *repository.MessageRepository
}

func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:      appCtx,
		users:       repository.NewUserRepository(appCtx.DB),
		profiles:    repository.NewProfileRepository(appCtx.DB),
		connections: repository.NewConnectionRepository(appCtx.DB),
		notifs:      repository.NewNotificationRepository(appCtx.DB),
		messages:    repository.NewMessageRepository(appCtx.DB),
	}
}

// --- notifications ---

func (s *Service) Notifications(ctx context.Context, userID uint64, limit, offset int, unreadOnly bool) ([]db.Notification, error) {
	notifs, err := s.notifs.List(ctx, userID, limit, offset, unreadOnly)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return notifs, nil
}

func (s *Service) MarkNotificationRead(ctx context.Context, notificationID, userID uint64) error {
	marked, err := s.notifs.MarkRead(ctx, notificationID, userID)
	if err != nil {
		return apperrors.Internal(err)
	}
	if !marked {
		return apperrors.NotFound("notification not found")
	}
	return nil
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context, userID uint64) (int64, error) {
	count, err := s.notifs.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, apperrors.Internal(err)
	}
	return count, nil
}

func (s *Service) UnreadNotificationCount(ctx context.Context, userID uint64) (int64, error) {
	count, err := s.notifs.CountUnread(ctx, userID)
	if err != nil {
		return 0, apperrors.Internal(err)
	}
	return count, nil
}

// --- messages ---

// SendMessage delivers a chat message between matched users. The recipient
// gets a durable notification plus realtime pushes for both the message and
// the notification envelope.
func (s *Service) SendMessage(ctx context.Context, senderID, recipientID uint64, content string) (*db.Message, error) {
	if content == "" {
		return nil, apperrors.Validation("message content is required")
	}
	if senderID == recipientID {
		return nil, apperrors.Precondition("cannot message yourself")
	}

	active, err := s.connections.HasActive(ctx, senderID, recipientID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !active {
		return nil, apperrors.Precondition("you can only message your matches")
	}

	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	msg := &db.Message{SenderID: senderID, RecipientID: recipientID, Content: content}
	var notif *db.Notification

	err = s.appCtx.DB.Transaction(func(tx *gorm.DB) error {
		mr := s.messages.WithTx(tx)
		nr := s.notifs.WithTx(tx)
		cr := s.connections.WithTx(tx)

		if err := mr.Create(ctx, msg); err != nil {
			return err
		}

		notif = &db.Notification{
			UserID:   recipientID,
			SenderID: &senderID,
			Type:     db.NotifMessage,
			Content:  fmt.Sprintf("New message from %s: %s", sender.FirstName, preview(content)),
		}
		if err := nr.Create(ctx, notif); err != nil {
			return err
		}

		conn, err := cr.GetByUsers(ctx, senderID, recipientID)
		if err != nil {
			return err
		}
		return cr.Touch(ctx, conn.ID)
	})
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	s.appCtx.Hub.SendIfPresent(recipientID, hub.Event{
		Type: "message",
		Data: hub.MessageData{
			SenderID:    senderID,
			RecipientID: recipientID,
			Content:     content,
			Timestamp:   msg.CreatedAt.UTC().Format(time.RFC3339),
		},
	})
	s.appCtx.Hub.SendIfPresent(recipientID, hub.NewNotificationEvent(db.NotifMessage, senderID, notif.Content))

	return msg, nil
}

// MessagesWith returns the conversation with another user in chronological
// order and marks the caller's side read.
func (s *Service) MessagesWith(ctx context.Context, userID, otherID uint64, limit, offset int) ([]db.Message, error) {
	active, err := s.connections.HasActive(ctx, userID, otherID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !active {
		return nil, apperrors.Precondition("you can only message your matches")
	}

	messages, err := s.messages.ListBetween(ctx, userID, otherID, limit, offset)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return messages, nil
}

// Conversation summarizes one active match for the chat list.
type Conversation struct {
	PeerUserID  uint64
	Peer        *db.User
	LastMessage *db.Message
	UnreadCount int64
}

// Conversations lists active matches with their latest message and unread
// count, most recently touched first.
func (s *Service) Conversations(ctx context.Context, userID uint64, limit, offset int) ([]Conversation, error) {
	conns, err := s.connections.ListActive(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	out := make([]Conversation, 0, len(conns))
	for _, conn := range conns {
		peerID := conn.UserAID
		if peerID == userID {
			peerID = conn.UserBID
		}

		peer, err := s.users.GetByID(ctx, peerID)
		if err != nil {
			continue
		}
		last, err := s.messages.LatestBetween(ctx, userID, peerID)
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		unread, err := s.messages.CountUnreadFrom(ctx, userID, peerID)
		if err != nil {
			return nil, apperrors.Internal(err)
		}

		out = append(out, Conversation{
			PeerUserID:  peerID,
			Peer:        peer,
			LastMessage: last,
			UnreadCount: unread,
		})
	}
	return out, nil
}

func (s *Service) UnreadMessageCount(ctx context.Context, userID uint64) (int64, error) {
	count, err := s.messages.CountUnread(ctx, userID)
	if err != nil {
		return 0, apperrors.Internal(err)
	}
	return count, nil
}

// --- presence ---

// Connected is invoked when a websocket opens: presence key set, the users
// row flipped online.
func (s *Service) Connected(ctx context.Context, userID uint64) {
	if err := s.appCtx.RedisCache.MarkOnline(ctx, userID); err != nil {
		s.appCtx.Logger.Warn("presence mark online failed", "user_id", userID, "err", err)
	}
	if err := s.users.SetOnline(ctx, userID, true); err != nil {
		s.appCtx.Logger.Warn("online flag update failed", "user_id", userID, "err", err)
	}
}

// Heartbeat refreshes the presence TTL; called on every inbound ping.
func (s *Service) Heartbeat(ctx context.Context, userID uint64) {
	if err := s.appCtx.RedisCache.MarkOnline(ctx, userID); err != nil {
		s.appCtx.Logger.Warn("presence refresh failed", "user_id", userID, "err", err)
	}
}

// Disconnected is invoked when the websocket closes for any reason.
func (s *Service) Disconnected(ctx context.Context, userID uint64) {
	if err := s.appCtx.RedisCache.MarkOffline(ctx, userID); err != nil {
		s.appCtx.Logger.Warn("presence mark offline failed", "user_id", userID, "err", err)
	}
	if err := s.users.SetOnline(ctx, userID, false); err != nil {
		s.appCtx.Logger.Warn("offline flag update failed", "user_id", userID, "err", err)
	}
}

// IsOnline consults the presence key, which expires on its own when the
// peer goes silent.
func (s *Service) IsOnline(ctx context.Context, userID uint64) bool {
	online, err := s.appCtx.RedisCache.IsOnline(ctx, userID)
	if err != nil {
		return false
	}
	return online
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= messagePreviewLen {
		return content
	}
	return string(runes[:messagePreviewLen]) + "..."
}
