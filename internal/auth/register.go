package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/conorfennell/flashdeck/internal/domain"
)

// Register creates a learner account and signs it in.
// Returns ErrAlreadyExists if the email is taken.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*Result, error) {
	input.normalize()
	if err := s.validate.Struct(input); err != nil {
		return nil, err
	}
	if err := checkPasswordLength("password", input.Password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(input.Password, s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("auth.Register: %w", err)
	}

	id, err := s.store.CreateUser(ctx, domain.User{
		Email:        input.Email,
		Name:         input.Name,
		PasswordHash: hash,
	})
	if err != nil {
		return nil, fmt.Errorf("auth.Register: %w", err)
	}
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("auth.Register: %w", err)
	}

	result, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("auth.Register: %w", err)
	}

	s.log.InfoContext(ctx, "user registered", slog.Int64("user_id", user.ID))
	return result, nil
}
