package suggest_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/velora-app/velora/internal/app"
	"github.com/velora-app/velora/internal/cache"
	"github.com/velora-app/velora/internal/config"
	"github.com/velora-app/velora/internal/db"
	"github.com/velora-app/velora/internal/hub"
	"github.com/velora-app/velora/internal/service/suggest"
)

//
// Test helpers
//

// Istanbul city center; offsets below stay within a few kilometers.
const (
	istLat = 41.0082
	istLon = 28.9784
)

func ptr[T any](v T) *T { return &v }

type profileSpec struct {
	userID     uint64
	first      string
	gender     string
	preference string
	lat, lon   *float64
	birthYear  int
	fame       float64
	tags       []string
	complete   bool
}

func seedProfile(t *testing.T, gdb *gorm.DB, spec profileSpec) uint64 {
	t.Helper()

	user := db.User{
		ID:           spec.userID,
		Username:     fmt.Sprintf("user%d", spec.userID),
		Email:        fmt.Sprintf("user%d@test.com", spec.userID),
		PasswordHash: "x",
		FirstName:    spec.first,
	}
	require.NoError(t, gdb.Create(&user).Error)

	var tags []db.Tag
	for _, name := range spec.tags {
		tag := db.Tag{Name: name}
		require.NoError(t, gdb.Where("name = ?", name).FirstOrCreate(&tag).Error)
		tags = append(tags, tag)
	}

	var birth *time.Time
	if spec.birthYear > 0 {
		b := time.Date(spec.birthYear, time.June, 15, 0, 0, 0, 0, time.UTC)
		birth = &b
	}

	profile := db.Profile{
		UserID:           spec.userID,
		Gender:           spec.gender,
		SexualPreference: spec.preference,
		Biography:        "hello",
		Latitude:         spec.lat,
		Longitude:        spec.lon,
		BirthDate:        birth,
		FameRating:       spec.fame,
		IsComplete:       spec.complete,
		Tags:             tags,
	}
	require.NoError(t, gdb.Create(&profile).Error)

	pic := db.ProfilePicture{ProfileID: profile.ID, FilePath: "p.jpg", IsPrimary: true}
	require.NoError(t, gdb.Create(&pic).Error)

	return profile.ID
}

func setupService(t *testing.T) (*suggest.Service, *gorm.DB) {
	t.Helper()

	dbName := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	dbase, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{
		NowFunc:                func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	sqlDB, err := dbase.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, dbase.AutoMigrate(
		&db.User{}, &db.Profile{}, &db.ProfilePicture{}, &db.Tag{},
		&db.Like{}, &db.Block{}, &db.Visit{}, &db.Report{},
		&db.Connection{}, &db.Notification{}, &db.Message{},
	))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	appCtx := app.New(dbase, cache.NewRedisCache(cfg), logger, hub.New())
	return suggest.NewService(appCtx), dbase
}

// seedPair inserts the standard requester (heterosexual male in Istanbul)
// and one compatible candidate (heterosexual female ~5 km north).
func seedPair(t *testing.T, gdb *gorm.DB, candidateTags ...string) {
	t.Helper()
	seedProfile(t, gdb, profileSpec{
		userID: 1, first: "Arthur",
		gender: db.GenderMale, preference: db.PrefHeterosexual,
		lat: ptr(istLat), lon: ptr(istLon),
		birthYear: 1995, fame: 3, tags: []string{"music"}, complete: true,
	})
	seedProfile(t, gdb, profileSpec{
		userID: 2, first: "Bella",
		gender: db.GenderFemale, preference: db.PrefHeterosexual,
		lat: ptr(istLat + 0.045), lon: ptr(istLon),
		birthYear: 1996, fame: 5, tags: candidateTags, complete: true,
	})
}

//
// Preconditions
//

func TestSuggestionsRequireProfile(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t)

	_, err := svc.Suggestions(ctx, 404, suggest.Params{Limit: 10})
	require.Error(t, err)
}

func TestSuggestionsRequireCompleteProfile(t *testing.T) {
	ctx := context.Background()
	svc, gdb := setupService(t)

	seedProfile(t, gdb, profileSpec{
		userID: 1, first: "Arthur",
		gender: db.GenderMale, preference: db.PrefHeterosexual,
		complete: false,
	})

	_, err := svc.Suggestions(ctx, 1, suggest.Params{Limit: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "complete your profile")
}

func TestUnknownTagYieldsEmptyResult(t *testing.T) {
	ctx := context.Background()
	svc, gdb := setupService(t)
	seedPair(t, gdb, "music")

	got, err := svc.Suggestions(ctx, 1, suggest.Params{
		Limit: 10,
		Tags:  []string{"no-such-tag"},
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDistanceFilterWithoutCoordinatesYieldsEmpty(t *testing.T) {
	ctx := context.Background()
	svc, gdb := setupService(t)

	seedProfile(t, gdb, profileSpec{
		userID: 1, first: "Arthur",
		gender: db.GenderMale, preference: db.PrefHeterosexual,
		birthYear: 1995, tags: []string{"music"}, complete: true,
	})
	seedProfile(t, gdb, profileSpec{
		userID: 2, first: "Bella",
		gender: db.GenderFemale, preference: db.PrefHeterosexual,
		lat: ptr(istLat), lon: ptr(istLon),
		birthYear: 1996, tags: []string{"music"}, complete: true,
	})

	got, err := svc.Suggestions(ctx, 1, suggest.Params{Limit: 10, MaxDistance: ptr(10.0)})
	require.NoError(t, err)
	assert.Empty(t, got)
}

//
// Compatibility
//

func TestCompatibilityIsMutual(t *testing.T) {
	ctx := context.Background()
	svc, gdb := setupService(t)

	seedProfile(t, gdb, profileSpec{
		userID: 1, first: "Arthur",
		gender: db.GenderMale, preference: db.PrefHeterosexual,
		lat: ptr(istLat), lon: ptr(istLon), birthYear: 1995,
		tags: []string{"music"}, complete: true,
	})
	// right gender, but she is only into women: must not surface
	seedProfile(t, gdb, profileSpec{
		userID: 2, first: "Bella",
		gender: db.GenderFemale, preference: db.PrefHomosexual,
		lat: ptr(istLat), lon: ptr(istLon), birthYear: 1996,
		tags: []string{"music"}, complete: true,
	})
	// bisexual woman accepts him: surfaces
	seedProfile(t, gdb, profileSpec{
		userID: 3, first: "Carla",
		gender: db.GenderFemale, preference: db.PrefBisexual,
		lat: ptr(istLat), lon: ptr(istLon), birthYear: 1996,
		tags: []string{"music"}, complete: true,
	})
	// same gender: incompatible with a heterosexual requester
	seedProfile(t, gdb, profileSpec{
		userID: 4, first: "Dan",
		gender: db.GenderMale, preference: db.PrefHeterosexual,
		lat: ptr(istLat), lon: ptr(istLon), birthYear: 1996,
		tags: []string{"music"}, complete: true,
	})

	got, err := svc.Suggestions(ctx, 1, suggest.Params{Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(3), got[0].Profile.UserID)
}

//
// Filters
//

func TestDistanceScenario(t *testing.T) {
	ctx := context.Background()
	svc, gdb := setupService(t)
	seedPair(t, gdb, "music") // Bella ~5 km away

	// generous radius: included
	got, err := svc.Suggestions(ctx, 1, suggest.Params{
		Limit:       10,
		MaxDistance: ptr(10.0),
		Tags:        []string{"music"},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(2), got[0].Profile.UserID)
	require.NotNil(t, got[0].DistanceKm)
	assert.InDelta(t, 5.0, *got[0].DistanceKm, 0.5)

	// tight radius: excluded by the exact distance check
	got, err = svc.Suggestions(ctx, 1, suggest.Params{
		Limit:       10,
		MaxDistance: ptr(1.0),
		Tags:        []string{"music"},
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTagFilterRequiresAllTags(t *testing.T) {
	ctx := context.Background()
	svc, gdb := setupService(t)

	seedProfile(t, gdb, profileSpec{
		userID: 1, first: "Arthur",
		gender: db.GenderMale, preference: db.PrefHeterosexual,
		lat: ptr(istLat), lon: ptr(istLon), birthYear: 1995,
		tags: []string{"music", "hiking"}, complete: true,
	})
	// only one of the two requested tags
	seedProfile(t, gdb, profileSpec{
		userID: 2, first: "Bella",
		gender: db.GenderFemale, preference: db.PrefHeterosexual,
		lat: ptr(istLat), lon: ptr(istLon), birthYear: 1996,
		tags: []string{"music"}, complete: true,
	})
	// both tags
	seedProfile(t, gdb, profileSpec{
		userID: 3, first: "Carla",
		gender: db.GenderFemale, preference: db.PrefHeterosexual,
		lat: ptr(istLat), lon: ptr(istLon), birthYear: 1996,
		tags: []string{"music", "hiking"}, complete: true,
	})

	got, err := svc.Suggestions(ctx, 1, suggest.Params{
		Limit: 10,
		Tags:  []string{"music", "hiking"},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(3), got[0].Profile.UserID)
}

func TestAgeBoundsAreInclusiveAndExact(t *testing.T) {
	ctx := context.Background()
	svc, gdb := setupService(t)

	seedProfile(t, gdb, profileSpec{
		userID: 1, first: "Arthur",
		gender: db.GenderMale, preference: db.PrefHeterosexual,
		lat: ptr(istLat), lon: ptr(istLon), birthYear: 1995,
		tags: []string{"music"}, complete: true,
	})
	seedProfile(t, gdb, profileSpec{
		userID: 2, first: "Bella",
		gender: db.GenderFemale, preference: db.PrefHeterosexual,
		lat: ptr(istLat), lon: ptr(istLon), birthYear: 2000,
		tags: []string{"music"}, complete: true,
	})

	age := time.Now().UTC().Year() - 2000
	// birthday is June 15; correct for whether it has passed this year
	if time.Now().UTC().Before(time.Date(time.Now().UTC().Year(), time.June, 15, 0, 0, 0, 0, time.UTC)) {
		age--
	}

	got, err := svc.Suggestions(ctx, 1, suggest.Params{
		Limit: 10, MinAge: ptr(age), MaxAge: ptr(age),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, age, got[0].Age)

	got, err = svc.Suggestions(ctx, 1, suggest.Params{
		Limit: 10, MinAge: ptr(age + 1),
	})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = svc.Suggestions(ctx, 1, suggest.Params{
		Limit: 10, MaxAge: ptr(age - 1),
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFameBounds(t *testing.T) {
	ctx := context.Background()
	svc, gdb := setupService(t)
	seedPair(t, gdb, "music") // Bella has fame 5

	got, err := svc.Suggestions(ctx, 1, suggest.Params{
		Limit: 10, MinFame: ptr(5.0), MaxFame: ptr(5.0),
	})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = svc.Suggestions(ctx, 1, suggest.Params{
		Limit: 10, MinFame: ptr(5.1),
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBlockedProfilesNeverSurface(t *testing.T) {
	ctx := context.Background()
	svc, gdb := setupService(t)
	seedPair(t, gdb, "music")

	// Bella (profile 2) blocked Arthur (profile 1): exclusion works both ways
	require.NoError(t, gdb.Create(&db.Block{BlockerID: 2, BlockedID: 1}).Error)

	got, err := svc.Suggestions(ctx, 1, suggest.Params{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestIncompleteCandidatesExcluded(t *testing.T) {
	ctx := context.Background()
	svc, gdb := setupService(t)

	seedProfile(t, gdb, profileSpec{
		userID: 1, first: "Arthur",
		gender: db.GenderMale, preference: db.PrefHeterosexual,
		lat: ptr(istLat), lon: ptr(istLon), birthYear: 1995,
		tags: []string{"music"}, complete: true,
	})
	seedProfile(t, gdb, profileSpec{
		userID: 2, first: "Bella",
		gender: db.GenderFemale, preference: db.PrefHeterosexual,
		lat: ptr(istLat), lon: ptr(istLon), birthYear: 1996,
		tags: []string{"music"}, complete: false,
	})

	got, err := svc.Suggestions(ctx, 1, suggest.Params{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, got)
}

//
// Ranking
//

func TestSortOrderDistanceThenTagsThenFame(t *testing.T) {
	ctx := context.Background()
	svc, gdb := setupService(t)

	seedProfile(t, gdb, profileSpec{
		userID: 1, first: "Arthur",
		gender: db.GenderMale, preference: db.PrefHeterosexual,
		lat: ptr(istLat), lon: ptr(istLon), birthYear: 1995,
		tags: []string{"music", "hiking"}, complete: true,
	})
	// far, high overlap, high fame
	far := seedProfile(t, gdb, profileSpec{
		userID: 2, first: "Bella",
		gender: db.GenderFemale, preference: db.PrefHeterosexual,
		lat: ptr(istLat + 0.5), lon: ptr(istLon), birthYear: 1996,
		fame: 9, tags: []string{"music", "hiking"}, complete: true,
	})
	// near, one common tag, low fame
	nearLowFame := seedProfile(t, gdb, profileSpec{
		userID: 3, first: "Carla",
		gender: db.GenderFemale, preference: db.PrefHeterosexual,
		lat: ptr(istLat + 0.01), lon: ptr(istLon), birthYear: 1996,
		fame: 1, tags: []string{"music"}, complete: true,
	})
	// same distance as Carla, two common tags: outranks her on overlap
	nearHighOverlap := seedProfile(t, gdb, profileSpec{
		userID: 4, first: "Dana",
		gender: db.GenderFemale, preference: db.PrefHeterosexual,
		lat: ptr(istLat + 0.01), lon: ptr(istLon), birthYear: 1996,
		fame: 1, tags: []string{"music", "hiking"}, complete: true,
	})

	got, err := svc.Suggestions(ctx, 1, suggest.Params{Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, nearHighOverlap, got[0].Profile.ID)
	assert.Equal(t, nearLowFame, got[1].Profile.ID)
	assert.Equal(t, far, got[2].Profile.ID)
}

func TestUnknownDistanceSortsLast(t *testing.T) {
	ctx := context.Background()
	svc, gdb := setupService(t)

	// requester has no coordinates (still complete for test purposes)
	seedProfile(t, gdb, profileSpec{
		userID: 1, first: "Arthur",
		gender: db.GenderMale, preference: db.PrefHeterosexual,
		birthYear: 1995, tags: []string{"music"}, complete: true,
	})
	withTag := seedProfile(t, gdb, profileSpec{
		userID: 2, first: "Bella",
		gender: db.GenderFemale, preference: db.PrefHeterosexual,
		lat: ptr(istLat), lon: ptr(istLon), birthYear: 1996,
		fame: 1, tags: []string{"music"}, complete: true,
	})
	noOverlap := seedProfile(t, gdb, profileSpec{
		userID: 3, first: "Carla",
		gender: db.GenderFemale, preference: db.PrefHeterosexual,
		lat: ptr(istLat), lon: ptr(istLon), birthYear: 1996,
		fame: 9, tags: []string{"chess"}, complete: true,
	})

	// all distances unknown: order falls through to common tags then fame
	got, err := svc.Suggestions(ctx, 1, suggest.Params{Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Nil(t, got[0].DistanceKm)
	assert.Equal(t, withTag, got[0].Profile.ID)
	assert.Equal(t, noOverlap, got[1].Profile.ID)
}

func TestHasLikedEnrichment(t *testing.T) {
	ctx := context.Background()
	svc, gdb := setupService(t)
	seedPair(t, gdb, "music")

	require.NoError(t, gdb.Create(&db.Like{LikerID: 1, LikedID: 2}).Error)

	got, err := svc.Suggestions(ctx, 1, suggest.Params{Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].HasLiked)
	assert.Equal(t, 1, got[0].CommonTags)
}

func TestPaginationAfterSort(t *testing.T) {
	ctx := context.Background()
	svc, gdb := setupService(t)

	seedProfile(t, gdb, profileSpec{
		userID: 1, first: "Arthur",
		gender: db.GenderMale, preference: db.PrefHeterosexual,
		lat: ptr(istLat), lon: ptr(istLon), birthYear: 1995,
		tags: []string{"music"}, complete: true,
	})
	for i := uint64(2); i <= 5; i++ {
		seedProfile(t, gdb, profileSpec{
			userID: i, first: fmt.Sprintf("C%d", i),
			gender: db.GenderFemale, preference: db.PrefHeterosexual,
			lat: ptr(istLat + float64(i)*0.01), lon: ptr(istLon), birthYear: 1996,
			tags: []string{"music"}, complete: true,
		})
	}

	first, err := svc.Suggestions(ctx, 1, suggest.Params{Limit: 2, Offset: 0})
	require.NoError(t, err)
	second, err := svc.Suggestions(ctx, 1, suggest.Params{Limit: 2, Offset: 2})
	require.NoError(t, err)

	require.Len(t, first, 2)
	require.Len(t, second, 2)

	// pages are disjoint and keep the global distance order
	assert.Less(t, *first[0].DistanceKm, *first[1].DistanceKm)
	assert.Less(t, *first[1].DistanceKm, *second[0].DistanceKm)
	assert.Less(t, *second[0].DistanceKm, *second[1].DistanceKm)
}
