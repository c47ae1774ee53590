package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/velora-app/velora/internal/db"
)

// ConnectionRepository provides data access for the durable match record
// between two users. Pairs are stored ordered; see db.OrderPair.
type ConnectionRepository struct {
	db *gorm.DB
}

func NewConnectionRepository(database *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{db: database}
}

// WithTx returns a repository bound to the given transaction.
func (r *ConnectionRepository) WithTx(tx *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{db: tx}
}

// GetByUsers returns the connection between two users regardless of order.
func (r *ConnectionRepository) GetByUsers(ctx context.Context, u1, u2 uint64) (*db.Connection, error) {
	a, b := db.OrderPair(u1, u2)
	var conn db.Connection
	err := r.db.WithContext(ctx).
		Where("user_a_id = ? AND user_b_id = ?", a, b).
		First(&conn).Error
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

// EnsureActive creates the connection, or reactivates an inactive one.
// activated reports a transition into the active state (new row or flip),
// which is what triggers match notifications.
func (r *ConnectionRepository) EnsureActive(ctx context.Context, u1, u2 uint64) (conn *db.Connection, activated bool, err error) {
	a, b := db.OrderPair(u1, u2)

	row := db.Connection{UserAID: a, UserBID: b, IsActive: true}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_a_id"}, {Name: "user_b_id"}},
			DoNothing: true,
		}).
		Create(&row)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return &row, true, nil
	}

	// row already existed: reactivate if needed
	existing, err := r.GetByUsers(ctx, u1, u2)
	if err != nil {
		return nil, false, err
	}
	if existing.IsActive {
		return existing, false, nil
	}
	err = r.db.WithContext(ctx).Model(existing).
		Updates(map[string]any{"is_active": true, "updated_at": time.Now().UTC()}).Error
	if err != nil {
		return nil, false, err
	}
	existing.IsActive = true
	return existing, true, nil
}

// Deactivate flips the connection inactive; a missing row is not an error.
func (r *ConnectionRepository) Deactivate(ctx context.Context, u1, u2 uint64) error {
	conn, err := r.GetByUsers(ctx, u1, u2)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !conn.IsActive {
		return nil
	}
	return r.db.WithContext(ctx).Model(conn).Update("is_active", false).Error
}

// HasActive reports whether an active connection exists between the users.
// This is the authorization gate for messaging.
func (r *ConnectionRepository) HasActive(ctx context.Context, u1, u2 uint64) (bool, error) {
	a, b := db.OrderPair(u1, u2)
	var count int64
	err := r.db.WithContext(ctx).Model(&db.Connection{}).
		Where("user_a_id = ? AND user_b_id = ? AND is_active = ?", a, b, true).
		Count(&count).Error
	return count > 0, err
}

// ListActive returns the user's active connections, most recently touched
// first.
func (r *ConnectionRepository) ListActive(ctx context.Context, userID uint64, limit, offset int) ([]db.Connection, error) {
	var conns []db.Connection
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND (user_a_id = ? OR user_b_id = ?)", true, userID, userID).
		Order("updated_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&conns).Error
	return conns, err
}

// Touch bumps the connection's updated_at (called on message traffic).
func (r *ConnectionRepository) Touch(ctx context.Context, connID uint64) error {
	return r.db.WithContext(ctx).Model(&db.Connection{}).
		Where("id = ?", connID).
		Update("updated_at", time.Now().UTC()).Error
}
