package suggest

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/velora-app/velora/internal/app"
	"github.com/velora-app/velora/internal/apperrors"
	"github.com/velora-app/velora/internal/db"
	"github.com/velora-app/velora/internal/repository"
	"github.com/velora-app/velora/internal/utils/geo"
)

// Params are the caller-supplied suggestion filters. Nil means "not set".
type Params struct {
	Limit  int
	Offset int

	MinAge *int
	MaxAge *int

	MinFame *float64
	MaxFame *float64

	// kilometers
	MaxDistance *float64

	// AND semantics: candidates must carry every listed tag
	Tags []string
}

// Suggestion is one ranked candidate with the derived fields the client
// renders alongside the profile.
type Suggestion struct {
	Profile    db.Profile
	DistanceKm *float64
	CommonTags int
	HasLiked   bool
	Age        int // -1 when birth date unknown
}

// Service ranks candidate profiles for a requesting user. The database does
// the coarse prefiltering; exact distance, scoring and ordering happen here
// so the sort always sees the whole filtered pool.
type Service struct {
	appCtx       *app.AppContext
	profiles     *repository.ProfileRepository
	interactions *repository.InteractionRepository
	suggestions  *repository.SuggestionRepository
}

func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:       appCtx,
		profiles:     repository.NewProfileRepository(appCtx.DB),
		interactions: repository.NewInteractionRepository(appCtx.DB),
		suggestions:  repository.NewSuggestionRepository(appCtx.DB),
	}
}

// Suggestions returns the ordered candidate list for the user.
func (s *Service) Suggestions(ctx context.Context, userID uint64, p Params) ([]Suggestion, error) {
	me, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperrors.NotFound("profile not found")
	}
	if !me.IsComplete {
		return nil, apperrors.Precondition("complete your profile first")
	}

	// a distance filter is meaningless without a reference point
	if p.MaxDistance != nil && (me.Latitude == nil || me.Longitude == nil) {
		return []Suggestion{}, nil
	}

	filter, empty, err := s.buildFilter(ctx, me, p)
	if err != nil {
		return nil, err
	}
	if empty {
		return []Suggestion{}, nil
	}

	candidates, err := s.suggestions.Candidates(ctx, filter)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	suggestions, err := s.enrich(ctx, me, candidates, p.MaxDistance)
	if err != nil {
		return nil, err
	}

	sortSuggestions(suggestions)

	return paginate(suggestions, p.Limit, p.Offset), nil
}

// buildFilter translates Params into the SQL prefilter. empty=true short
// circuits to an empty result (unknown tag name).
func (s *Service) buildFilter(ctx context.Context, me *db.Profile, p Params) (repository.CandidateFilter, bool, error) {
	var filter repository.CandidateFilter

	blocked, err := s.interactions.BlockedProfileIDs(ctx, me.ID)
	if err != nil {
		return filter, false, apperrors.Internal(err)
	}
	filter.ExcludedIDs = append(blocked, me.ID)

	filter.RequesterGender = me.Gender
	filter.RequesterPreference = me.SexualPreference

	now := time.Now().UTC()
	if p.MinAge != nil {
		// at least minAge years old means born on or before this cutoff
		filter.BornOnOrBefore = now.AddDate(-*p.MinAge, 0, 0)
	}
	if p.MaxAge != nil {
		// at most maxAge years old means strictly younger than maxAge+1
		filter.BornAfter = now.AddDate(-(*p.MaxAge + 1), 0, 0)
	}

	filter.MinFame = p.MinFame
	filter.MaxFame = p.MaxFame

	if p.MaxDistance != nil && me.Latitude != nil && me.Longitude != nil {
		filter.HasBox = true
		filter.MinLat, filter.MaxLat, filter.MinLon, filter.MaxLon =
			geo.BoundingBox(*me.Latitude, *me.Longitude, *p.MaxDistance)
	}

	if len(p.Tags) > 0 {
		ids, err := s.profiles.TagIDsByNames(ctx, p.Tags)
		if err != nil {
			return filter, false, apperrors.Internal(err)
		}
		// a name outside the vocabulary can never be satisfied
		if len(ids) < distinctCount(p.Tags) {
			return filter, true, nil
		}
		filter.TagIDs = ids
	}

	return filter, false, nil
}

// enrich computes per-candidate distance, tag overlap, like status and age,
// and drops candidates beyond the exact distance limit.
func (s *Service) enrich(ctx context.Context, me *db.Profile, candidates []db.Profile, maxDistance *float64) ([]Suggestion, error) {
	myTags := make(map[uint64]struct{}, len(me.Tags))
	for _, t := range me.Tags {
		myTags[t.ID] = struct{}{}
	}

	now := time.Now().UTC()
	out := make([]Suggestion, 0, len(candidates))

	for _, c := range candidates {
		var distance *float64
		if me.Latitude != nil && me.Longitude != nil && c.Latitude != nil && c.Longitude != nil {
			d := geo.HaversineKm(*me.Latitude, *me.Longitude, *c.Latitude, *c.Longitude)
			distance = &d
		}
		// the bounding box over-approximates; enforce the exact radius
		if maxDistance != nil {
			if distance == nil || *distance > *maxDistance {
				continue
			}
		}

		common := 0
		for _, t := range c.Tags {
			if _, ok := myTags[t.ID]; ok {
				common++
			}
		}

		liked, err := s.interactions.HasLike(ctx, me.ID, c.ID)
		if err != nil {
			return nil, apperrors.Internal(err)
		}

		out = append(out, Suggestion{
			Profile:    c,
			DistanceKm: distance,
			CommonTags: common,
			HasLiked:   liked,
			Age:        c.Age(now),
		})
	}
	return out, nil
}

// sortSuggestions orders by distance ascending with unknown last, then
// common tags descending, then fame descending, then profile id for
// deterministic ties.
func sortSuggestions(suggestions []Suggestion) {
	sort.SliceStable(suggestions, func(i, j int) bool {
		a, b := suggestions[i], suggestions[j]

		switch {
		case a.DistanceKm != nil && b.DistanceKm != nil:
			if *a.DistanceKm != *b.DistanceKm {
				return *a.DistanceKm < *b.DistanceKm
			}
		case a.DistanceKm != nil:
			return true
		case b.DistanceKm != nil:
			return false
		}

		if a.CommonTags != b.CommonTags {
			return a.CommonTags > b.CommonTags
		}
		if a.Profile.FameRating != b.Profile.FameRating {
			return a.Profile.FameRating > b.Profile.FameRating
		}
		return a.Profile.ID < b.Profile.ID
	})
}

func paginate(suggestions []Suggestion, limit, offset int) []Suggestion {
	if offset >= len(suggestions) {
		return []Suggestion{}
	}
	suggestions = suggestions[offset:]
	if limit > 0 && limit < len(suggestions) {
		suggestions = suggestions[:limit]
	}
	return suggestions
}

func distinctCount(names []string) int {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		seen[strings.ToLower(strings.TrimSpace(n))] = struct{}{}
	}
	delete(seen, "")
	return len(seen)
}
