// Package auth registers learners, checks passwords and maps opaque
// session tokens to users.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/conorfennell/flashdeck/internal/domain"
	"github.com/conorfennell/flashdeck/internal/validation"
)

// userRepo defines the user persistence needed by the auth service.
type userRepo interface {
	CreateUser(ctx context.Context, u domain.User) (int64, error)
	GetUserByID(ctx context.Context, id int64) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	CountAdmins(ctx context.Context) (int, error)
	SetUserPassword(ctx context.Context, id int64, hash string) error
	SetUserAdmin(ctx context.Context, id int64, isAdmin bool) error
}

// sessionRepo defines the session persistence needed by the auth service.
type sessionRepo interface {
	CreateSession(ctx context.Context, s domain.Session) error
	GetSession(ctx context.Context, tokenHash string) (domain.Session, error)
	DeleteSession(ctx context.Context, tokenHash string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Store is satisfied by *storage.Store.
type Store interface {
	userRepo
	sessionRepo
}

// Config controls session lifetime and password hashing.
type Config struct {
	SessionTTL time.Duration
	BcryptCost int
}

// Service implements registration, login and session resolution.
type Service struct {
	log      *slog.Logger
	store    Store
	cfg      Config
	validate *validation.Validator
	now      func() time.Time

	// dummyHash is compared against when the email is unknown so both
	// failure paths spend the same bcrypt work.
	dummyHash []byte
}

// NewService creates an auth service.
func NewService(logger *slog.Logger, store Store, cfg Config) (*Service, error) {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * 24 * time.Hour
	}

	v, err := validation.New("json")
	if err != nil {
		return nil, err
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("flashdeck-dummy-password"), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}

	return &Service{
		log:       logger.With("service", "auth"),
		store:     store,
		cfg:       cfg,
		validate:  v,
		now:       time.Now,
		dummyHash: dummy,
	}, nil
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SessionTTL reports how long new sessions stay valid.
func (s *Service) SessionTTL() time.Duration {
	return s.cfg.SessionTTL
}

// issueSession stores a fresh session for the user and returns the raw token.
func (s *Service) issueSession(ctx context.Context, user domain.User) (*Result, error) {
	token, hash, err := NewToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := domain.Session{
		TokenHash: hash,
		UserID:    user.ID,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
		CreatedAt: now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	user.PasswordHash = ""
	return &Result{User: user, Token: token, ExpiresAt: session.ExpiresAt}, nil
}
