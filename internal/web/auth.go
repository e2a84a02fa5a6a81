package web

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/conorfennell/flashdeck/internal/auth"
	"github.com/conorfennell/flashdeck/internal/domain"
)

type userResponse struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
}

type authResponse struct {
	User      userResponse `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt,
	}
}

// authenticate resolves the first candidate token that names a live session
// and puts the user in the request context. Requests without a valid token
// pass through anonymous.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, token := range s.sessionTokens(r) {
			user, err := s.auth.Resolve(r.Context(), token)
			if errors.Is(err, domain.ErrUnauthorized) {
				continue
			}
			if err != nil {
				s.handleError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user, token)))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireUser rejects anonymous requests with 401.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromCtx(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin rejects authenticated non-administrators with 403.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, _ := UserFromCtx(r.Context()); !user.IsAdmin {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sessionTokens returns the candidate tokens in the order they are tried:
// the session cookie, then an Authorization bearer header.
func (s *Server) sessionTokens(r *http.Request) []string {
	var tokens []string
	if c, err := r.Cookie(s.cfg.Auth.CookieName); err == nil && c.Value != "" {
		tokens = append(tokens, c.Value)
	}
	if bearer := extractBearer(r); bearer != "" && (len(tokens) == 0 || tokens[0] != bearer) {
		tokens = append(tokens, bearer)
	}
	return tokens
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func (s *Server) setSessionCookie(w http.ResponseWriter, result *auth.Result) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Auth.CookieName,
		Value:    result.Token,
		Path:     "/",
		Expires:  result.ExpiresAt,
		MaxAge:   int(s.cfg.Auth.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.Auth.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.Auth.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// handleRegister handles POST /api/auth/register.
func (s *Server) handleRegister() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input auth.RegisterInput
		if err := decodeJSON(w, r, maxBodyBytes, &input); err != nil {
			s.handleError(w, r, err)
			return
		}

		result, err := s.auth.Register(r.Context(), input)
		if err != nil {
			s.handleError(w, r, err)
			return
		}

		s.setSessionCookie(w, result)
		writeJSON(w, http.StatusCreated, authResponse{
			User:      toUserResponse(result.User),
			Token:     result.Token,
			ExpiresAt: result.ExpiresAt,
		})
	}
}

// handleLogin handles POST /api/auth/login.
func (s *Server) handleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input auth.LoginInput
		if err := decodeJSON(w, r, maxBodyBytes, &input); err != nil {
			s.handleError(w, r, err)
			return
		}

		result, err := s.auth.Login(r.Context(), input)
		if err != nil {
			s.handleError(w, r, err)
			return
		}

		s.setSessionCookie(w, result)
		writeJSON(w, http.StatusOK, authResponse{
			User:      toUserResponse(result.User),
			Token:     result.Token,
			ExpiresAt: result.ExpiresAt,
		})
	}
}

// handleLogout handles POST /api/auth/logout.
func (s *Server) handleLogout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.auth.Logout(r.Context(), tokenFromCtx(r.Context())); err != nil {
			s.handleError(w, r, err)
			return
		}
		s.clearSessionCookie(w)
		writeOK(w)
	}
}

// handleMe handles GET /api/me.
func (s *Server) handleMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := UserFromCtx(r.Context())
		writeJSON(w, http.StatusOK, map[string]userResponse{"user": toUserResponse(user)})
	}
}
