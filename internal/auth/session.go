package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/conorfennell/flashdeck/internal/domain"
)

// Resolve returns the user owning a raw session token.
// Missing, unknown and expired tokens return ErrUnauthorized; an expired
// session is deleted on the way.
func (s *Service) Resolve(ctx context.Context, token string) (domain.User, error) {
	if token == "" {
		return domain.User{}, domain.ErrUnauthorized
	}

	hash := HashToken(token)
	session, err := s.store.GetSession(ctx, hash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, domain.ErrUnauthorized
		}
		return domain.User{}, fmt.Errorf("auth.Resolve: %w", err)
	}

	if session.Expired(s.now()) {
		if err := s.store.DeleteSession(ctx, hash); err != nil {
			return domain.User{}, fmt.Errorf("auth.Resolve: %w", err)
		}
		return domain.User{}, domain.ErrUnauthorized
	}

	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, domain.ErrUnauthorized
		}
		return domain.User{}, fmt.Errorf("auth.Resolve: %w", err)
	}
	user.PasswordHash = ""
	return user, nil
}

// Logout ends the session of a raw token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.store.DeleteSession(ctx, HashToken(token)); err != nil {
		return fmt.Errorf("auth.Logout: %w", err)
	}
	return nil
}
