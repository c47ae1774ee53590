package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/velora-app/velora/internal/app"
	"github.com/velora-app/velora/internal/apperrors"
	"github.com/velora-app/velora/internal/config"
	"github.com/velora-app/velora/internal/db"
	"github.com/velora-app/velora/internal/repository"
)

// Service handles registration, login and token issuance. Registration
// creates the User and an empty Profile in one transaction; the profile is
// filled in later and only then becomes suggestible.
type Service struct {
	appCtx   *app.AppContext
	cfg      *config.Config
	users    *repository.UserRepository
	profiles *repository.ProfileRepository
}

func NewService(appCtx *app.AppContext, cfg *config.Config) *Service {
	return &Service{
		appCtx:   appCtx,
		cfg:      cfg,
		users:    repository.NewUserRepository(appCtx.DB),
		profiles: repository.NewProfileRepository(appCtx.DB),
	}
}

// RegisterInput is the signup payload after transport-level binding.
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Register creates the account and its empty profile. The returned user
// carries a fresh verification token for the email flow.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*db.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if in.Username == "" || in.Email == "" {
		return nil, apperrors.Validation("username and email are required")
	}
	if len(in.Password) < 8 {
		return nil, apperrors.Validation("password must be at least 8 characters")
	}

	if _, err := s.users.GetByUsername(ctx, in.Username); err == nil {
		return nil, apperrors.Validation("username already taken")
	}
	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, apperrors.Validation("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	user := &db.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
	}

	err = s.appCtx.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.users.WithTx(tx).Create(ctx, user); err != nil {
			return err
		}
		return s.profiles.WithTx(tx).Create(ctx, &db.Profile{UserID: user.ID})
	})
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	// handed to the email delivery collaborator, never returned to clients
	verificationToken := uuid.NewString()
	s.appCtx.Logger.Info("user registered",
		"user_id", user.ID,
		"username", user.Username,
		"verification_token", verificationToken,
	)

	return user, nil
}

// Login checks credentials and issues a signed token.
func (s *Service) Login(ctx context.Context, username, password string) (*db.User, string, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", apperrors.Unauthorized("invalid credentials")
		}
		return nil, "", apperrors.Internal(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", apperrors.Unauthorized("invalid credentials")
	}

	token, err := s.IssueToken(user.ID)
	if err != nil {
		return nil, "", apperrors.Internal(err)
	}
	return user, token, nil
}

// IssueToken signs a token for the user id with the configured TTL.
func (s *Service) IssueToken(userID uint64) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"user_id": userID,
		"iat":     now.Unix(),
		"exp":     now.Add(s.cfg.JWT.TTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWT.Secret))
}

// ParseToken validates a signed token and returns the user id it carries.
func (s *Service) ParseToken(raw string) (uint64, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(s.cfg.JWT.Secret), nil
	})
	if err != nil || !token.Valid {
		return 0, apperrors.Unauthorized("invalid token")
	}

	id, ok := claims["user_id"].(float64)
	if !ok || id <= 0 {
		return 0, apperrors.Unauthorized("invalid token claims")
	}
	return uint64(id), nil
}
