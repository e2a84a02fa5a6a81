package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/conorfennell/flashdeck/internal/domain"
)

// maxPasswordBytes is the longest password bcrypt accepts.
const maxPasswordBytes = 72

// RegisterInput holds the fields of a self-registration.
type RegisterInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Name     string `json:"name" validate:"max=100"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

func (i *RegisterInput) normalize() {
	i.Email = normalizeEmail(i.Email)
	i.Name = strings.TrimSpace(i.Name)
	if i.Name == "" {
		i.Name, _, _ = strings.Cut(i.Email, "@")
	}
}

// LoginInput holds email and password credentials.
type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AdminAccount describes the administrator ensured at startup.
// An empty Password makes EnsureAdmin generate one.
type AdminAccount struct {
	Email    string
	Name     string
	Password string
}

// Result is returned by Register and Login.
type Result struct {
	User      domain.User
	Token     string
	ExpiresAt time.Time
}

// checkPasswordLength rejects passwords bcrypt cannot hash. The validator's
// max counts runes, so multi-byte passwords need this check too.
func checkPasswordLength(field, password string) error {
	if len(password) > maxPasswordBytes {
		return domain.NewValidationError(field, fmt.Sprintf("must be at most %d bytes", maxPasswordBytes))
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
