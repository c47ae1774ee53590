package db

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var seedTags = []string{
	"music", "hiking", "cooking", "travel", "gaming",
	"photography", "yoga", "cinema", "books", "coffee",
}

// seedCities are rough coordinates the demo profiles scatter around.
var seedCities = []struct {
	name     string
	lat, lon float64
}{
	{"Istanbul", 41.0082, 28.9784},
	{"Ankara", 39.9334, 32.8597},
	{"Izmir", 38.4237, 27.1428},
}

// SeedTestData resets the database and populates it with demo users.
//
// Behavior:
//  1. Clears all domain tables.
//  2. Creates 20 complete profiles (10 male, 10 female) with hashed
//     passwords, coordinates around three cities, tags and one picture.
//  3. Generates likes with ~70% probability per considered pair and forces
//     every 3rd pair mutual, creating the matching connections.
//
// Compatible with both MySQL and SQLite.
func SeedTestData(db *gorm.DB) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	tables := []string{
		"messages", "notifications", "connections", "reports", "visits",
		"blocks", "likes", "profile_tags", "tags", "profile_pictures",
		"profiles", "users",
	}
	for _, table := range tables {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	switch db.Dialector.Name() {
	case "mysql":
		for _, table := range tables {
			db.Exec("ALTER TABLE " + table + " AUTO_INCREMENT = 1")
		}
	case "sqlite":
		db.Exec("DELETE FROM sqlite_sequence")
	}

	log.Println("Cleared existing data")

	// --- Tags ---
	tags := make([]Tag, 0, len(seedTags))
	for _, name := range seedTags {
		tag := Tag{Name: name}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&tag).Error; err != nil {
			return fmt.Errorf("failed to seed tag: %w", err)
		}
		tags = append(tags, tag)
	}

	// --- Users + complete profiles (10 male, 10 female) ---
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	for i := 1; i <= 20; i++ {
		gender := GenderMale
		if i > 10 {
			gender = GenderFemale
		}

		user := User{
			Username:     fmt.Sprintf("user%d", i),
			Email:        fmt.Sprintf("user%d@example.com", i),
			PasswordHash: string(hash),
			FirstName:    fmt.Sprintf("Demo%d", i),
			LastName:     "User",
			IsVerified:   true,
		}
		if err := db.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to seed user: %w", err)
		}

		city := seedCities[r.Intn(len(seedCities))]
		lat := city.lat + (r.Float64()-0.5)*0.2
		lon := city.lon + (r.Float64()-0.5)*0.2
		birth := time.Date(1985+r.Intn(20), time.Month(1+r.Intn(12)), 1+r.Intn(28), 0, 0, 0, 0, time.UTC)

		profileTags := []Tag{
			tags[r.Intn(len(tags))],
			tags[r.Intn(len(tags))],
		}

		profile := Profile{
			UserID:           user.ID,
			Gender:           gender,
			SexualPreference: PrefHeterosexual,
			Biography:        fmt.Sprintf("Hi, I'm Demo%d from %s.", i, city.name),
			Latitude:         &lat,
			Longitude:        &lon,
			BirthDate:        &birth,
			IsComplete:       true,
			Tags:             profileTags,
		}
		if err := db.Create(&profile).Error; err != nil {
			return fmt.Errorf("failed to seed profile: %w", err)
		}

		pic := ProfilePicture{
			ProfileID: profile.ID,
			FilePath:  fmt.Sprintf("/uploads/demo/user%d.jpg", i),
			IsPrimary: true,
		}
		if err := db.Create(&pic).Error; err != nil {
			return fmt.Errorf("failed to seed picture: %w", err)
		}
	}
	log.Println("Seeded 20 users with complete profiles.")

	// --- Likes and connections ---
	var profiles []Profile
	if err := db.Find(&profiles).Error; err != nil {
		return err
	}

	counter := 0
	for _, liker := range profiles {
		for j := 0; j < 8; j++ {
			liked := profiles[r.Intn(len(profiles))]
			if liker.ID == liked.ID || liker.Gender == liked.Gender {
				continue
			}

			mutual := counter%3 == 0
			if !mutual && r.Intn(100) >= 70 {
				counter++
				continue
			}

			like := Like{LikerID: liker.ID, LikedID: liked.ID}
			if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&like).Error; err != nil {
				return fmt.Errorf("failed to seed like: %w", err)
			}

			if mutual {
				back := Like{LikerID: liked.ID, LikedID: liker.ID}
				db.Clauses(clause.OnConflict{DoNothing: true}).Create(&back)

				a, b := OrderPair(liker.UserID, liked.UserID)
				conn := Connection{UserAID: a, UserBID: b, IsActive: true}
				db.Clauses(clause.OnConflict{DoNothing: true}).Create(&conn)
			}
			counter++
		}
	}
	log.Println("Seeded likes and connections.")

	// --- Fame ratings over the seeded graph ---
	var userCount int64
	if err := db.Model(&User{}).Count(&userCount).Error; err != nil {
		return err
	}
	if userCount < 1 {
		userCount = 1
	}
	for _, p := range profiles {
		var likes int64
		db.Model(&Like{}).Where("liked_id = ?", p.ID).Count(&likes)

		fame := float64(likes*2) / float64(userCount) * FameCap
		if fame > FameCap {
			fame = FameCap
		}
		db.Model(&Profile{}).Where("id = ?", p.ID).Update("fame_rating", fame)
	}

	return nil
}
