package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/velora-app/velora/internal/db"
)

// NotificationRepository provides data access for notifications.
type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(database *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: database}
}

// WithTx returns a repository bound to the given transaction.
func (r *NotificationRepository) WithTx(tx *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: tx}
}

func (r *NotificationRepository) Create(ctx context.Context, n *db.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

// List returns the user's notifications, newest first.
func (r *NotificationRepository) List(ctx context.Context, userID uint64, limit, offset int, unreadOnly bool) ([]db.Notification, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var notifs []db.Notification
	err := query.Find(&notifs).Error
	return notifs, err
}

// MarkRead flips one notification read; marked reports whether the row
// existed and belonged to the user.
func (r *NotificationRepository) MarkRead(ctx context.Context, notificationID, userID uint64) (marked bool, err error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&db.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Updates(map[string]any{"is_read": true, "read_at": &now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkAllRead returns how many notifications were updated.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID uint64) (int64, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&db.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{"is_read": true, "read_at": &now})
	return res.RowsAffected, res.Error
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&db.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}
