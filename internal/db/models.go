package db

import (
	"time"
)

// Gender values stored on Profile.
const (
	GenderMale      = "male"
	GenderFemale    = "female"
	GenderNonBinary = "non_binary"
	GenderOther     = "other"
)

// Sexual preference values stored on Profile.
const (
	PrefHeterosexual = "heterosexual"
	PrefHomosexual   = "homosexual"
	PrefBisexual     = "bisexual"
	PrefOther        = "other"
)

// Notification types.
const (
	NotifLike    = "like"
	NotifMatch   = "match"
	NotifVisit   = "visit"
	NotifMessage = "message"
	NotifUnmatch = "unmatch"
	NotifUnlike  = "unlike"
)

// FameCap bounds the fame rating; the formula normalizes like/visit counts
// by the total user population and scales to [0, FameCap].
const FameCap = 10.0

// User is the identity record. The core treats it as read-only except for
// the online-status fields maintained by the realtime layer.
type User struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	Username     string `gorm:"uniqueIndex;size:64;not null"`
	Email        string `gorm:"uniqueIndex;size:128;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	FirstName    string `gorm:"size:64"`
	LastName     string `gorm:"size:64"`
	IsVerified   bool   `gorm:"default:false"`
	IsOnline     bool   `gorm:"default:false"`
	LastOnlineAt *time.Time
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// Profile is the dateable entity, 1:1 with User. Nullable attributes are
// pointers; IsComplete is derived, never set directly by handlers.
type Profile struct {
	ID               uint64 `gorm:"primaryKey;autoIncrement"`
	UserID           uint64 `gorm:"uniqueIndex;not null"`
	Gender           string `gorm:"size:16"`
	SexualPreference string `gorm:"size:16"`
	Biography        string `gorm:"type:text"`
	Latitude         *float64
	Longitude        *float64
	BirthDate        *time.Time
	FameRating       float64   `gorm:"default:0;index"`
	IsComplete       bool      `gorm:"default:false;index"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`

	Pictures []ProfilePicture `gorm:"foreignKey:ProfileID"`
	Tags     []Tag            `gorm:"many2many:profile_tags"`
}

// ComputeComplete derives the completeness flag from the loaded profile.
// Pictures and Tags must be preloaded by the caller.
func (p *Profile) ComputeComplete() bool {
	if p.Gender == "" || p.SexualPreference == "" || p.Biography == "" {
		return false
	}
	if p.Latitude == nil || p.Longitude == nil {
		return false
	}
	if len(p.Pictures) == 0 || len(p.Tags) == 0 {
		return false
	}
	return true
}

// Age returns the profile's age in whole years at the given instant,
// exact to the day, or -1 when the birth date is unknown.
func (p *Profile) Age(now time.Time) int {
	if p.BirthDate == nil {
		return -1
	}
	b := *p.BirthDate
	years := now.Year() - b.Year()
	// birthday not reached yet this year
	if now.Month() < b.Month() || (now.Month() == b.Month() && now.Day() < b.Day()) {
		years--
	}
	return years
}

// ProfilePicture belongs to a profile; at most 5 per profile, exactly one
// primary while any exist.
type ProfilePicture struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	ProfileID uint64    `gorm:"not null;index"`
	FilePath  string    `gorm:"size:255;not null"`
	IsPrimary bool      `gorm:"default:false"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Tag is a shared vocabulary entry; names are stored lowercase.
type Tag struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	Name      string    `gorm:"uniqueIndex;size:64;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Like is a directed edge between profiles. Composite PK guarantees one row
// per ordered pair, making retried inserts idempotent.
type Like struct {
	LikerID   uint64    `gorm:"primaryKey;autoIncrement:false"`
	LikedID   uint64    `gorm:"primaryKey;autoIncrement:false;index:idx_liked_created,priority:1"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_liked_created,priority:2,sort:desc"`
}

// Block is a directed edge between profiles. Presence in either direction
// excludes all interaction between the pair.
type Block struct {
	BlockerID uint64    `gorm:"primaryKey;autoIncrement:false"`
	BlockedID uint64    `gorm:"primaryKey;autoIncrement:false;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Visit is an append-only log of profile views, deduplicated within a short
// window by the interactions service.
type Visit struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	VisitorID uint64    `gorm:"not null;index:idx_visitor_visited,priority:1"`
	VisitedID uint64    `gorm:"not null;index:idx_visitor_visited,priority:2;index:idx_visited_created,priority:1"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_visited_created,priority:2,sort:desc"`
}

// Report is append-only moderation input; it never feeds core logic.
type Report struct {
	ID          uint64     `gorm:"primaryKey;autoIncrement"`
	ReporterID  uint64     `gorm:"not null;index"`
	ReportedID  uint64     `gorm:"not null;index"`
	Reason      string     `gorm:"size:255;not null"`
	Description string     `gorm:"type:text"`
	IsResolved  bool       `gorm:"default:false"`
	CreatedAt   time.Time  `gorm:"autoCreateTime"`
	ResolvedAt  *time.Time
}

// Connection is the durable match record between two users' accounts.
// The pair is stored ordered (UserAID < UserBID) and uniquely indexed so
// concurrent mutual likes converge on a single row.
type Connection struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	UserAID   uint64    `gorm:"not null;uniqueIndex:idx_conn_pair,priority:1"`
	UserBID   uint64    `gorm:"not null;uniqueIndex:idx_conn_pair,priority:2"`
	IsActive  bool      `gorm:"default:true;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// OrderPair normalizes two user IDs into Connection storage order.
func OrderPair(u1, u2 uint64) (uint64, uint64) {
	if u1 < u2 {
		return u1, u2
	}
	return u2, u1
}

// Notification is the durable record of a core event addressed to a user.
// Delivery over the realtime channel is best-effort; this row is the truth.
type Notification struct {
	ID        uint64     `gorm:"primaryKey;autoIncrement"`
	UserID    uint64     `gorm:"not null;index:idx_notif_user_read,priority:1"`
	SenderID  *uint64    `gorm:"index"`
	Type      string     `gorm:"size:16;not null"`
	Content   string     `gorm:"type:text"`
	IsRead    bool       `gorm:"default:false;index:idx_notif_user_read,priority:2"`
	CreatedAt time.Time  `gorm:"autoCreateTime"`
	ReadAt    *time.Time
}

// Message requires an active Connection between sender and recipient.
type Message struct {
	ID          uint64     `gorm:"primaryKey;autoIncrement"`
	SenderID    uint64     `gorm:"not null;index:idx_msg_pair,priority:1"`
	RecipientID uint64     `gorm:"not null;index:idx_msg_pair,priority:2"`
	Content     string     `gorm:"type:text;not null"`
	IsRead      bool       `gorm:"default:false"`
	CreatedAt   time.Time  `gorm:"autoCreateTime"`
	ReadAt      *time.Time
}
