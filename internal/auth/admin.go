package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/conorfennell/flashdeck/internal/domain"
)

// EnsureAdmin makes sure an administrator can sign in.
//
// A user with the configured email is given a password if it has none,
// and promoted while no administrator exists. Otherwise an administrator is
// created unless one already exists. A generated password is logged once.
func (s *Service) EnsureAdmin(ctx context.Context, account AdminAccount) error {
	account.Email = normalizeEmail(account.Email)
	account.Name = strings.TrimSpace(account.Name)
	if account.Email == "" {
		return domain.NewValidationError("auth.admin_email", "is required")
	}
	if account.Name == "" {
		account.Name = "Administrator"
	}
	if err := checkPasswordLength("auth.admin_password", account.Password); err != nil {
		return err
	}

	user, err := s.store.GetUserByEmail(ctx, account.Email)
	switch {
	case err == nil:
		return s.completeAdmin(ctx, user, account)
	case !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("auth.EnsureAdmin: %w", err)
	}

	admins, err := s.store.CountAdmins(ctx)
	if err != nil {
		return fmt.Errorf("auth.EnsureAdmin: %w", err)
	}
	if admins > 0 {
		return nil
	}

	password, generated, err := s.adminPassword(account)
	if err != nil {
		return fmt.Errorf("auth.EnsureAdmin: %w", err)
	}
	hash, err := HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("auth.EnsureAdmin: %w", err)
	}
	id, err := s.store.CreateUser(ctx, domain.User{
		Email:        account.Email,
		Name:         account.Name,
		PasswordHash: hash,
		IsAdmin:      true,
	})
	if err != nil {
		return fmt.Errorf("auth.EnsureAdmin: %w", err)
	}

	s.log.InfoContext(ctx, "admin account created",
		slog.Int64("user_id", id), slog.String("email", account.Email))
	s.announce(ctx, account.Email, password, generated)
	return nil
}

func (s *Service) completeAdmin(ctx context.Context, user domain.User, account AdminAccount) error {
	if !user.IsAdmin {
		admins, err := s.store.CountAdmins(ctx)
		if err != nil {
			return fmt.Errorf("auth.EnsureAdmin: %w", err)
		}
		if admins > 0 {
			s.log.WarnContext(ctx, "configured admin email belongs to a learner, not promoting",
				slog.Int64("user_id", user.ID), slog.String("email", account.Email))
			return nil
		}
		if err := s.store.SetUserAdmin(ctx, user.ID, true); err != nil {
			return fmt.Errorf("auth.EnsureAdmin: %w", err)
		}
		s.log.WarnContext(ctx, "user promoted to admin", slog.Int64("user_id", user.ID))
	}
	if user.PasswordHash != "" {
		return nil
	}

	password, generated, err := s.adminPassword(account)
	if err != nil {
		return fmt.Errorf("auth.EnsureAdmin: %w", err)
	}
	hash, err := HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("auth.EnsureAdmin: %w", err)
	}
	if err := s.store.SetUserPassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("auth.EnsureAdmin: %w", err)
	}
	s.announce(ctx, account.Email, password, generated)
	return nil
}

func (s *Service) adminPassword(account AdminAccount) (string, bool, error) {
	if account.Password != "" {
		return account.Password, false, nil
	}
	password, err := generatePassword()
	if err != nil {
		return "", false, err
	}
	return password, true, nil
}

func (s *Service) announce(ctx context.Context, email, password string, generated bool) {
	if !generated {
		return
	}
	s.log.WarnContext(ctx, "generated admin password, change it after first login",
		slog.String("email", email), slog.String("password", password))
}
