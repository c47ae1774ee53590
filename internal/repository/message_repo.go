package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/velora-app/velora/internal/db"
)

// MessageRepository provides data access for chat messages.
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(database *gorm.DB) *MessageRepository {
	return &MessageRepository{db: database}
}

// WithTx returns a repository bound to the given transaction.
func (r *MessageRepository) WithTx(tx *gorm.DB) *MessageRepository {
	return &MessageRepository{db: tx}
}

func (r *MessageRepository) Create(ctx context.Context, m *db.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// ListBetween returns the conversation between two users in chronological
// order and marks messages addressed to readerID as read.
func (r *MessageRepository) ListBetween(ctx context.Context, readerID, otherID uint64, limit, offset int) ([]db.Message, error) {
	var messages []db.Message
	err := r.db.WithContext(ctx).
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)",
			readerID, otherID, otherID, readerID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var readIDs []uint64
	for i := range messages {
		if messages[i].RecipientID == readerID && !messages[i].IsRead {
			readIDs = append(readIDs, messages[i].ID)
			messages[i].IsRead = true
			messages[i].ReadAt = &now
		}
	}
	if len(readIDs) > 0 {
		err = r.db.WithContext(ctx).Model(&db.Message{}).
			Where("id IN ?", readIDs).
			Updates(map[string]any{"is_read": true, "read_at": &now}).Error
		if err != nil {
			return nil, err
		}
	}

	// reverse into chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// LatestBetween returns the newest message of a conversation, or nil.
func (r *MessageRepository) LatestBetween(ctx context.Context, u1, u2 uint64) (*db.Message, error) {
	var m db.Message
	err := r.db.WithContext(ctx).
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)",
			u1, u2, u2, u1).
		Order("created_at DESC, id DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CountUnreadFrom counts unread messages sent by otherID to userID.
func (r *MessageRepository) CountUnreadFrom(ctx context.Context, userID, otherID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&db.Message{}).
		Where("sender_id = ? AND recipient_id = ? AND is_read = ?", otherID, userID, false).
		Count(&count).Error
	return count, err
}

// CountUnread counts all unread messages addressed to the user.
func (r *MessageRepository) CountUnread(ctx context.Context, userID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&db.Message{}).
		Where("recipient_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}
