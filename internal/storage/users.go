package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/flashdeck/internal/domain"
)

type userRow struct {
	ID           int64  `db:"id"`
	Email        string `db:"email"`
	Name         string `db:"name"`
	PasswordHash string `db:"password_hash"`
	IsAdmin      bool   `db:"is_admin"`
	CreatedAt    int64  `db:"created_at"`
}

func (r userRow) toDomain() domain.User {
	return domain.User{
		ID:           r.ID,
		Email:        r.Email,
		Name:         r.Name,
		PasswordHash: r.PasswordHash,
		IsAdmin:      r.IsAdmin,
		CreatedAt:    fromMillis(r.CreatedAt),
	}
}

const userColumns = `id, email, name, password_hash, is_admin, created_at`

// CreateUser inserts a user and returns its id.
// ErrAlreadyExists is returned when the email is taken.
func (q *queries) CreateUser(ctx context.Context, u domain.User) (int64, error) {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO users (email, name, password_hash, is_admin, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, u.Email, u.Name, u.PasswordHash, u.IsAdmin, q.millis())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("email %s: %w", u.Email, domain.ErrAlreadyExists)
		}
		return 0, fmt.Errorf("failed to insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for user: %w", err)
	}
	return id, nil
}

// GetUserByID returns ErrNotFound when no user has the id.
func (q *queries) GetUserByID(ctx context.Context, id int64) (domain.User, error) {
	return q.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetUserByEmail matches the email case-insensitively.
func (q *queries) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return q.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

func (q *queries) getUser(ctx context.Context, query string, arg any) (domain.User, error) {
	var row userRow
	if err := getContext(ctx, q.q, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, fmt.Errorf("user %v: %w", arg, domain.ErrNotFound)
		}
		return domain.User{}, fmt.Errorf("failed to find user %v: %w", arg, err)
	}
	return row.toDomain(), nil
}

// ListUsers returns every user ordered by id.
func (q *queries) ListUsers(ctx context.Context) ([]domain.User, error) {
	var rows []userRow
	if err := selectContext(ctx, q.q, &rows, `SELECT `+userColumns+` FROM users ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	users := make([]domain.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toDomain())
	}
	return users, nil
}

// CountAdmins returns how many users hold the admin flag.
func (q *queries) CountAdmins(ctx context.Context) (int, error) {
	var n int
	if err := getContext(ctx, q.q, &n, `SELECT COUNT(*) FROM users WHERE is_admin = 1`); err != nil {
		return 0, fmt.Errorf("failed to count admins: %w", err)
	}
	return n, nil
}

// SetUserPassword replaces the stored password hash.
func (q *queries) SetUserPassword(ctx context.Context, id int64, hash string) error {
	return q.execOne(ctx, fmt.Sprintf("user %d", id),
		`UPDATE users SET password_hash = ? WHERE id = ?`, hash, id)
}

// SetUserAdmin grants or revokes the admin flag.
func (q *queries) SetUserAdmin(ctx context.Context, id int64, isAdmin bool) error {
	return q.execOne(ctx, fmt.Sprintf("user %d", id),
		`UPDATE users SET is_admin = ? WHERE id = ?`, isAdmin, id)
}

// DeleteUser removes a user together with their sessions, progress and ratings.
func (q *queries) DeleteUser(ctx context.Context, id int64) error {
	return q.execOne(ctx, fmt.Sprintf("user %d", id), `DELETE FROM users WHERE id = ?`, id)
}

type sessionRow struct {
	TokenHash string `db:"token_hash"`
	UserID    int64  `db:"user_id"`
	ExpiresAt int64  `db:"expires_at"`
	CreatedAt int64  `db:"created_at"`
}

// CreateSession stores a new session.
func (q *queries) CreateSession(ctx context.Context, s domain.Session) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO sessions (token_hash, user_id, expires_at, created_at)
		VALUES (?, ?, ?, ?)
	`, s.TokenHash, s.UserID, s.ExpiresAt.UnixMilli(), s.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// GetSession returns ErrNotFound for an unknown token hash.
func (q *queries) GetSession(ctx context.Context, tokenHash string) (domain.Session, error) {
	var row sessionRow
	err := getContext(ctx, q.q, &row, `
		SELECT token_hash, user_id, expires_at, created_at FROM sessions WHERE token_hash = ?
	`, tokenHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Session{}, fmt.Errorf("session: %w", domain.ErrNotFound)
		}
		return domain.Session{}, fmt.Errorf("failed to find session: %w", err)
	}
	return domain.Session{
		TokenHash: row.TokenHash,
		UserID:    row.UserID,
		ExpiresAt: fromMillis(row.ExpiresAt),
		CreatedAt: fromMillis(row.CreatedAt),
	}, nil
}

// DeleteSession removes a session. Deleting an unknown session is not an error.
func (q *queries) DeleteSession(ctx context.Context, tokenHash string) error {
	if _, err := q.q.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = ?`, tokenHash); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes every session that expired at or before now.
func (q *queries) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := q.q.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}
