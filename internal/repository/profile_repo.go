package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/velora-app/velora/internal/db"
)

// ProfileRepository provides data access for profiles, pictures and tags.
// Completeness is recomputed here after every mutation so the derivation
// lives in exactly one code path.
type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(database *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: database}
}

// WithTx returns a repository bound to the given transaction.
func (r *ProfileRepository) WithTx(tx *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: tx}
}

func (r *ProfileRepository) preloaded(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Pictures").Preload("Tags")
}

func (r *ProfileRepository) GetByID(ctx context.Context, id uint64) (*db.Profile, error) {
	var p db.Profile
	if err := r.preloaded(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProfileRepository) GetByUserID(ctx context.Context, userID uint64) (*db.Profile, error) {
	var p db.Profile
	if err := r.preloaded(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ListByIDs fetches profiles in bulk with pictures and tags preloaded.
func (r *ProfileRepository) ListByIDs(ctx context.Context, ids []uint64) ([]db.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var profiles []db.Profile
	err := r.preloaded(ctx).Where("id IN ?", ids).Find(&profiles).Error
	return profiles, err
}

// Create inserts the empty profile made at registration time.
func (r *ProfileRepository) Create(ctx context.Context, p *db.Profile) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// UpdateAttributes applies the given column updates and refreshes the
// completeness flag.
func (r *ProfileRepository) UpdateAttributes(ctx context.Context, profileID uint64, updates map[string]any) (*db.Profile, error) {
	if len(updates) > 0 {
		err := r.db.WithContext(ctx).Model(&db.Profile{}).Where("id = ?", profileID).Updates(updates).Error
		if err != nil {
			return nil, err
		}
	}
	return r.refreshCompleteness(ctx, profileID)
}

func (r *ProfileRepository) refreshCompleteness(ctx context.Context, profileID uint64) (*db.Profile, error) {
	p, err := r.GetByID(ctx, profileID)
	if err != nil {
		return nil, err
	}
	complete := p.ComputeComplete()
	if complete != p.IsComplete {
		if err := r.db.WithContext(ctx).Model(&db.Profile{}).
			Where("id = ?", profileID).Update("is_complete", complete).Error; err != nil {
			return nil, err
		}
		p.IsComplete = complete
	}
	return p, nil
}

// --- tags ---

// ReplaceTags swaps the profile's tag set. Names are lowercased and
// deduplicated; vocabulary rows are created on demand.
func (r *ProfileRepository) ReplaceTags(ctx context.Context, profileID uint64, names []string) ([]db.Tag, error) {
	seen := make(map[string]struct{}, len(names))
	tags := make([]db.Tag, 0, len(names))

	for _, name := range names {
		n := strings.ToLower(strings.TrimSpace(name))
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}

		tag := db.Tag{Name: n}
		err := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "name"}},
				DoNothing: true,
			}).
			Create(&tag).Error
		if err != nil {
			return nil, err
		}
		// DoNothing leaves ID zero for existing rows; reload by name.
		if tag.ID == 0 {
			if err := r.db.WithContext(ctx).Where("name = ?", n).First(&tag).Error; err != nil {
				return nil, err
			}
		}
		tags = append(tags, tag)
	}

	var p db.Profile
	if err := r.db.WithContext(ctx).First(&p, profileID).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&p).Association("Tags").Replace(tags); err != nil {
		return nil, err
	}
	if _, err := r.refreshCompleteness(ctx, profileID); err != nil {
		return nil, err
	}
	return tags, nil
}

// TagIDsByNames resolves case-insensitive tag names to vocabulary IDs.
// Unknown names are simply absent from the result; callers that need strict
// semantics compare lengths.
func (r *ProfileRepository) TagIDsByNames(ctx context.Context, names []string) ([]uint64, error) {
	lowered := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		l := strings.ToLower(strings.TrimSpace(n))
		if l == "" {
			continue
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		lowered = append(lowered, l)
	}
	if len(lowered) == 0 {
		return nil, nil
	}

	var ids []uint64
	err := r.db.WithContext(ctx).Model(&db.Tag{}).
		Where("name IN ?", lowered).
		Pluck("id", &ids).Error
	return ids, err
}

// --- pictures ---

const maxPictures = 5

// AddPicture appends a picture, enforcing the 5-picture cap and the
// one-primary invariant (first picture is always primary).
func (r *ProfileRepository) AddPicture(ctx context.Context, profileID uint64, filePath string, isPrimary bool) (*db.ProfilePicture, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&db.ProfilePicture{}).
		Where("profile_id = ?", profileID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count >= maxPictures {
		return nil, gorm.ErrInvalidData
	}

	if count == 0 {
		isPrimary = true
	}
	if isPrimary {
		if err := r.db.WithContext(ctx).Model(&db.ProfilePicture{}).
			Where("profile_id = ?", profileID).Update("is_primary", false).Error; err != nil {
			return nil, err
		}
	}

	pic := db.ProfilePicture{ProfileID: profileID, FilePath: filePath, IsPrimary: isPrimary}
	if err := r.db.WithContext(ctx).Create(&pic).Error; err != nil {
		return nil, err
	}
	if _, err := r.refreshCompleteness(ctx, profileID); err != nil {
		return nil, err
	}
	return &pic, nil
}

// RemovePicture deletes a picture; if it was primary, the oldest remaining
// picture is promoted.
func (r *ProfileRepository) RemovePicture(ctx context.Context, profileID, pictureID uint64) error {
	var pic db.ProfilePicture
	err := r.db.WithContext(ctx).
		Where("id = ? AND profile_id = ?", pictureID, profileID).
		First(&pic).Error
	if err != nil {
		return err
	}

	if err := r.db.WithContext(ctx).Delete(&pic).Error; err != nil {
		return err
	}

	if pic.IsPrimary {
		var next db.ProfilePicture
		err := r.db.WithContext(ctx).
			Where("profile_id = ?", profileID).
			Order("id ASC").
			First(&next).Error
		if err == nil {
			if err := r.db.WithContext(ctx).Model(&next).Update("is_primary", true).Error; err != nil {
				return err
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}

	_, err = r.refreshCompleteness(ctx, profileID)
	return err
}

// SetPrimaryPicture marks one picture primary and all others not.
func (r *ProfileRepository) SetPrimaryPicture(ctx context.Context, profileID, pictureID uint64) error {
	var pic db.ProfilePicture
	err := r.db.WithContext(ctx).
		Where("id = ? AND profile_id = ?", pictureID, profileID).
		First(&pic).Error
	if err != nil {
		return err
	}

	if err := r.db.WithContext(ctx).Model(&db.ProfilePicture{}).
		Where("profile_id = ?", profileID).
		Update("is_primary", gorm.Expr("id = ?", pictureID)).Error; err != nil {
		return err
	}
	return nil
}

// --- fame rating ---

// RecomputeFame recalculates and stores the fame rating:
// min(cap, (likes*2 + visits) / max(users, 1) * cap) with cap = 10.
func (r *ProfileRepository) RecomputeFame(ctx context.Context, profileID uint64) (float64, error) {
	var likes, visits, users int64

	if err := r.db.WithContext(ctx).Model(&db.Like{}).
		Where("liked_id = ?", profileID).Count(&likes).Error; err != nil {
		return 0, err
	}
	if err := r.db.WithContext(ctx).Model(&db.Visit{}).
		Where("visited_id = ?", profileID).Count(&visits).Error; err != nil {
		return 0, err
	}
	if err := r.db.WithContext(ctx).Model(&db.User{}).Count(&users).Error; err != nil {
		return 0, err
	}
	if users < 1 {
		users = 1
	}

	fame := float64(likes*2+visits) / float64(users) * db.FameCap
	if fame > db.FameCap {
		fame = db.FameCap
	}

	err := r.db.WithContext(ctx).Model(&db.Profile{}).
		Where("id = ?", profileID).Update("fame_rating", fame).Error
	if err != nil {
		return 0, err
	}
	return fame, nil
}
