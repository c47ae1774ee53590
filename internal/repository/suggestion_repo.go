package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/velora-app/velora/internal/db"
)

// CandidateFilter is the SQL-level prefilter for the suggestion engine.
// The bounding box is a coarse superset; exact distance is re-checked in
// memory by the service.
type CandidateFilter struct {
	ExcludedIDs []uint64

	RequesterGender     string
	RequesterPreference string

	// birth-date cutoffs derived from min/max age; zero values disable
	BornOnOrBefore time.Time // from min_age
	BornAfter      time.Time // from max_age

	MinFame *float64
	MaxFame *float64

	// bounding box, enabled by HasBox
	HasBox bool
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64

	// AND semantics: candidate must carry every tag id
	TagIDs []uint64
}

// SuggestionRepository runs the candidate prefilter query for the
// suggestion engine.
type SuggestionRepository struct {
	db *gorm.DB
}

func NewSuggestionRepository(database *gorm.DB) *SuggestionRepository {
	return &SuggestionRepository{db: database}
}

// Candidates returns every complete, non-excluded, mutually compatible
// profile satisfying the SQL-expressible filters, with pictures and tags
// preloaded. Ordering, exact distance and pagination happen in the service.
func (r *SuggestionRepository) Candidates(ctx context.Context, f CandidateFilter) ([]db.Profile, error) {
	query := r.db.WithContext(ctx).Model(&db.Profile{}).
		Preload("Pictures").
		Preload("Tags").
		Where("is_complete = ?", true)

	if len(f.ExcludedIDs) > 0 {
		query = query.Where("id NOT IN ?", f.ExcludedIDs)
	}

	query = applyCompatibility(query, f.RequesterGender, f.RequesterPreference)

	if !f.BornOnOrBefore.IsZero() {
		query = query.Where("birth_date IS NOT NULL AND birth_date <= ?", f.BornOnOrBefore)
	}
	if !f.BornAfter.IsZero() {
		query = query.Where("birth_date IS NOT NULL AND birth_date > ?", f.BornAfter)
	}

	if f.MinFame != nil {
		query = query.Where("fame_rating >= ?", *f.MinFame)
	}
	if f.MaxFame != nil {
		query = query.Where("fame_rating <= ?", *f.MaxFame)
	}

	if f.HasBox {
		query = query.Where(
			"latitude IS NOT NULL AND longitude IS NOT NULL AND latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?",
			f.MinLat, f.MaxLat, f.MinLon, f.MaxLon,
		)
	}

	// one membership subquery per tag gives AND semantics
	for _, tagID := range f.TagIDs {
		query = query.Where(
			"id IN (SELECT profile_id FROM profile_tags WHERE tag_id = ?)",
			tagID,
		)
	}

	var candidates []db.Profile
	if err := query.Find(&candidates).Error; err != nil {
		return nil, err
	}
	return candidates, nil
}

// applyCompatibility encodes the mutual gender/orientation table: the
// candidate must fit the requester's preference AND the candidate's own
// preference must accept the requester's gender.
func applyCompatibility(query *gorm.DB, gender, preference string) *gorm.DB {
	if gender == "" || preference == "" {
		return query
	}

	switch preference {
	case db.PrefHeterosexual:
		opposite := db.GenderMale
		if gender == db.GenderMale {
			opposite = db.GenderFemale
		}
		return query.
			Where("gender = ?", opposite).
			Where("sexual_preference IN ?", []string{db.PrefHeterosexual, db.PrefBisexual})

	case db.PrefHomosexual:
		return query.
			Where("gender = ?", gender).
			Where("sexual_preference IN ?", []string{db.PrefHomosexual, db.PrefBisexual})

	case db.PrefBisexual:
		return query.Where(
			"(sexual_preference = ? AND gender <> ?) OR (sexual_preference = ? AND gender = ?) OR sexual_preference = ?",
			db.PrefHeterosexual, gender,
			db.PrefHomosexual, gender,
			db.PrefBisexual,
		)
	}

	// preference "other": no compatibility constraint
	return query
}
