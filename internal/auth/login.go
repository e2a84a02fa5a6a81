package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/conorfennell/flashdeck/internal/domain"
)

// Login checks credentials and opens a new session.
// Unknown emails and wrong passwords both return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, input LoginInput) (*Result, error) {
	input.Email = normalizeEmail(input.Email)
	if err := s.validate.Struct(input); err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(input.Password))
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth.Login get user: %w", err)
	}
	if !CheckPassword(user.PasswordHash, input.Password) {
		return nil, domain.ErrInvalidCredentials
	}

	if n, err := s.store.DeleteExpiredSessions(ctx, s.now()); err != nil {
		s.log.WarnContext(ctx, "expired session cleanup failed", slog.String("error", err.Error()))
	} else if n > 0 {
		s.log.DebugContext(ctx, "cleaned up expired sessions", slog.Int64("count", n))
	}

	result, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("auth.Login: %w", err)
	}

	s.log.InfoContext(ctx, "user logged in", slog.Int64("user_id", user.ID))
	return result, nil
}
