package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/velora-app/velora/internal/db"
	"github.com/velora-app/velora/internal/utils/pagination"
)

// InteractionRepository provides data access for likes, blocks, visits and
// reports between profiles.
type InteractionRepository struct {
	db *gorm.DB
}

func NewInteractionRepository(database *gorm.DB) *InteractionRepository {
	return &InteractionRepository{db: database}
}

// WithTx returns a repository bound to the given transaction.
func (r *InteractionRepository) WithTx(tx *gorm.DB) *InteractionRepository {
	return &InteractionRepository{db: tx}
}

// --- likes ---

// CreateLike inserts the directed like edge. The composite PK makes retries
// idempotent; created reports whether a new row was actually written.
func (r *InteractionRepository) CreateLike(ctx context.Context, likerID, likedID uint64) (created bool, err error) {
	like := db.Like{LikerID: likerID, LikedID: likedID}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "liker_id"}, {Name: "liked_id"}},
			DoNothing: true,
		}).
		Create(&like)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *InteractionRepository) HasLike(ctx context.Context, likerID, likedID uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&db.Like{}).
		Where("liker_id = ? AND liked_id = ?", likerID, likedID).
		Count(&count).Error
	return count > 0, err
}

// DeleteLike removes the directed edge; deleted reports whether it existed.
func (r *InteractionRepository) DeleteLike(ctx context.Context, likerID, likedID uint64) (deleted bool, err error) {
	res := r.db.WithContext(ctx).
		Where("liker_id = ? AND liked_id = ?", likerID, likedID).
		Delete(&db.Like{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DeleteLikesBetween removes likes in both directions (block cascade).
func (r *InteractionRepository) DeleteLikesBetween(ctx context.Context, a, b uint64) error {
	return r.db.WithContext(ctx).
		Where("(liker_id = ? AND liked_id = ?) OR (liker_id = ? AND liked_id = ?)", a, b, b, a).
		Delete(&db.Like{}).Error
}

func (r *InteractionRepository) CountLikesReceived(ctx context.Context, profileID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&db.Like{}).
		Where("liked_id = ?", profileID).
		Count(&count).Error
	return count, err
}

// LikesReceived returns the profiles that liked the given profile, newest
// first, with cursor pagination over (created_at, liker_id).
func (r *InteractionRepository) LikesReceived(
	ctx context.Context,
	profileID uint64,
	paginationToken *string,
	limit int,
) ([]db.Like, *string, error) {
	cursor, err := pagination.Decode(derefString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	query := r.db.WithContext(ctx).Model(&db.Like{}).
		Where("liked_id = ?", profileID).
		Order("created_at DESC, liker_id DESC").
		Limit(limit + 1)

	if cursor.ProfileID > 0 && cursor.CreatedUnix > 0 {
		ts := time.UnixMilli(cursor.CreatedUnix)
		query = query.Where(
			"(created_at < ? OR (created_at = ? AND liker_id < ?))",
			ts, ts, cursor.ProfileID,
		)
	}

	var likes []db.Like
	if err := query.Find(&likes).Error; err != nil {
		return nil, nil, err
	}

	var nextToken *string
	if len(likes) > limit {
		last := likes[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{
			ProfileID:   last.LikerID,
			CreatedUnix: last.CreatedAt.UnixMilli(),
		})
		nextToken = &token
		likes = likes[:limit]
	}

	return likes, nextToken, nil
}

// --- blocks ---

// CreateBlock inserts the directed block edge; idempotent on retry.
func (r *InteractionRepository) CreateBlock(ctx context.Context, blockerID, blockedID uint64) (created bool, err error) {
	block := db.Block{BlockerID: blockerID, BlockedID: blockedID}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "blocker_id"}, {Name: "blocked_id"}},
			DoNothing: true,
		}).
		Create(&block)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *InteractionRepository) DeleteBlock(ctx context.Context, blockerID, blockedID uint64) (deleted bool, err error) {
	res := r.db.WithContext(ctx).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(&db.Block{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// IsBlockedEither reports whether a block exists in either direction.
func (r *InteractionRepository) IsBlockedEither(ctx context.Context, a, b uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&db.Block{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&count).Error
	return count > 0, err
}

// BlockedProfileIDs returns every profile id blocked by or blocking the
// given profile. Used as the suggestion engine's hard exclusion set.
func (r *InteractionRepository) BlockedProfileIDs(ctx context.Context, profileID uint64) ([]uint64, error) {
	var blocked []uint64
	err := r.db.WithContext(ctx).Model(&db.Block{}).
		Where("blocker_id = ?", profileID).
		Pluck("blocked_id", &blocked).Error
	if err != nil {
		return nil, err
	}

	var blockers []uint64
	err = r.db.WithContext(ctx).Model(&db.Block{}).
		Where("blocked_id = ?", profileID).
		Pluck("blocker_id", &blockers).Error
	if err != nil {
		return nil, err
	}

	return append(blocked, blockers...), nil
}

// --- visits ---

func (r *InteractionRepository) CreateVisit(ctx context.Context, visitorID, visitedID uint64) error {
	visit := db.Visit{VisitorID: visitorID, VisitedID: visitedID}
	return r.db.WithContext(ctx).Create(&visit).Error
}

// HasVisitSince reports whether the visitor already viewed the profile after
// the given instant (spam dedup window).
func (r *InteractionRepository) HasVisitSince(ctx context.Context, visitorID, visitedID uint64, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&db.Visit{}).
		Where("visitor_id = ? AND visited_id = ? AND created_at >= ?", visitorID, visitedID, since).
		Count(&count).Error
	return count > 0, err
}

func (r *InteractionRepository) CountVisitsReceived(ctx context.Context, profileID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&db.Visit{}).
		Where("visited_id = ?", profileID).
		Count(&count).Error
	return count, err
}

// VisitsReceived returns who visited the given profile, newest first, with
// cursor pagination over (created_at, visitor_id).
func (r *InteractionRepository) VisitsReceived(
	ctx context.Context,
	profileID uint64,
	paginationToken *string,
	limit int,
) ([]db.Visit, *string, error) {
	cursor, err := pagination.Decode(derefString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	query := r.db.WithContext(ctx).Model(&db.Visit{}).
		Where("visited_id = ?", profileID).
		Order("created_at DESC, visitor_id DESC").
		Limit(limit + 1)

	if cursor.ProfileID > 0 && cursor.CreatedUnix > 0 {
		ts := time.UnixMilli(cursor.CreatedUnix)
		query = query.Where(
			"(created_at < ? OR (created_at = ? AND visitor_id < ?))",
			ts, ts, cursor.ProfileID,
		)
	}

	var visits []db.Visit
	if err := query.Find(&visits).Error; err != nil {
		return nil, nil, err
	}

	var nextToken *string
	if len(visits) > limit {
		last := visits[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{
			ProfileID:   last.VisitorID,
			CreatedUnix: last.CreatedAt.UnixMilli(),
		})
		nextToken = &token
		visits = visits[:limit]
	}

	return visits, nextToken, nil
}

// --- reports ---

func (r *InteractionRepository) CreateReport(ctx context.Context, reporterID, reportedID uint64, reason, description string) (*db.Report, error) {
	report := db.Report{
		ReporterID:  reporterID,
		ReportedID:  reportedID,
		Reason:      reason,
		Description: description,
	}
	if err := r.db.WithContext(ctx).Create(&report).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
