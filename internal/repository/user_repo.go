package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/velora-app/velora/internal/db"
)

// UserRepository provides data access for identity records.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(database *gorm.DB) *UserRepository {
	return &UserRepository{db: database}
}

// WithTx returns a repository bound to the given transaction.
func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{db: tx}
}

func (r *UserRepository) GetByID(ctx context.Context, id uint64) (*db.User, error) {
	var u db.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*db.User, error) {
	var u db.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*db.User, error) {
	var u db.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) Create(ctx context.Context, u *db.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

// SetOnline flips the durable online flag; the realtime layer also keeps a
// TTL presence key in Redis as the live source of truth.
func (r *UserRepository) SetOnline(ctx context.Context, userID uint64, online bool) error {
	updates := map[string]any{"is_online": online}
	if !online {
		now := time.Now().UTC()
		updates["last_online_at"] = &now
	}
	return r.db.WithContext(ctx).Model(&db.User{}).Where("id = ?", userID).Updates(updates).Error
}
