// Package web serves the flashdeck JSON API and the media files it refers to.
package web

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/conorfennell/flashdeck/internal/auth"
	"github.com/conorfennell/flashdeck/internal/config"
	"github.com/conorfennell/flashdeck/internal/domain"
	"github.com/conorfennell/flashdeck/internal/study"
)

// authService is the part of *auth.Service the handlers use.
type authService interface {
	Register(ctx context.Context, input auth.RegisterInput) (*auth.Result, error)
	Login(ctx context.Context, input auth.LoginInput) (*auth.Result, error)
	Logout(ctx context.Context, token string) error
	Resolve(ctx context.Context, token string) (domain.User, error)
}

// studyService is the part of *study.Service the handlers use.
type studyService interface {
	ListDecks(ctx context.Context) ([]domain.Deck, error)
	GetDeckView(ctx context.Context, user domain.User, ref string) (*study.DeckView, error)
	RecordProgress(ctx context.Context, userID int64, ref string, cardID int64, category string) error
	SetRating(ctx context.Context, userID int64, ref string, cardID int64, rating *string) error
	Report(ctx context.Context, userID int64) ([]domain.DeckReport, error)
	EditDeck(ctx context.Context, ref string, input study.EditInput) (*study.EditResult, error)
	DeleteDeck(ctx context.Context, ref string) error
	ListUsers(ctx context.Context) ([]domain.UserSummary, error)
	ResetUser(ctx context.Context, userID int64) error
	DeleteUser(ctx context.Context, actorID, userID int64) error
	ResetCardRatings(ctx context.Context, cardID int64) (int64, error)
}

// mediaStore is the part of *media.Store the handlers use.
type mediaStore interface {
	URL(name string) string
	Exists(name string) bool
	FS() fs.FS
}

// dbPinger is used by the health check.
type dbPinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of a Server.
type Deps struct {
	Auth  authService
	Study studyService
	Media mediaStore
	DB    dbPinger
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	log     *slog.Logger
	cfg     config.Config
	auth    authService
	study   studyService
	media   mediaStore
	db      dbPinger
	router  *http.ServeMux
	limiter *RateLimiter
	handler http.Handler
}

// NewServer creates a server with its routes and middleware installed.
// Call Close when done to stop the rate limiter.
func NewServer(logger *slog.Logger, cfg config.Config, deps Deps) *Server {
	s := &Server{
		log:     logger.With("component", "web"),
		cfg:     cfg,
		auth:    deps.Auth,
		study:   deps.Study,
		media:   deps.Media,
		db:      deps.DB,
		router:  http.NewServeMux(),
		limiter: NewRateLimiter(time.Minute),
	}
	s.routes()
	s.handler = Chain(
		RequestID,
		Logger(s.log),
		Recovery(s.log),
		CORS(cfg.CORS),
	)(s.router)
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close releases background resources.
func (s *Server) Close() {
	s.limiter.Stop()
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	limited := s.limiter.Limit(s.cfg.Auth.RateLimitPerMinute)
	user := Chain(s.authenticate, s.requireUser)
	admin := Chain(s.authenticate, s.requireUser, s.requireAdmin)

	s.router.HandleFunc("GET /healthz", s.handleHealth())

	s.router.Handle("POST /api/auth/register", limited(s.handleRegister()))
	s.router.Handle("POST /api/auth/login", limited(s.handleLogin()))
	s.router.Handle("POST /api/auth/logout", user(s.handleLogout()))
	s.router.Handle("GET /api/me", user(s.handleMe()))

	s.router.Handle("GET /api/decks", user(s.handleListDecks()))
	s.router.Handle("GET /api/decks/{deck}", user(s.handleGetDeck()))
	s.router.Handle("POST /api/decks/{deck}/progress", user(s.handleRecordProgress()))
	s.router.Handle("POST /api/decks/{deck}/rating", user(s.handleSetRating()))
	s.router.Handle("GET /api/reports/progress", user(s.handleReport()))

	s.router.Handle("POST /api/admin/decks/{deck}", admin(s.handleEditDeck()))
	s.router.Handle("DELETE /api/admin/decks/{deck}", admin(s.handleDeleteDeck()))
	s.router.Handle("GET /api/admin/users", admin(s.handleListUsers()))
	s.router.Handle("POST /api/admin/users/{id}/reset", admin(s.handleResetUser()))
	s.router.Handle("DELETE /api/admin/users/{id}", admin(s.handleDeleteUser()))
	s.router.Handle("DELETE /api/admin/cards/{id}/ratings", admin(s.handleResetCardRatings()))

	prefix := "/"
	if p := strings.Trim(s.cfg.Content.MediaPrefix, "/"); p != "" {
		prefix += p + "/"
	}
	s.router.HandleFunc("GET "+prefix+"{name}", s.handleMedia())
}

// handleHealth reports whether the database answers.
func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		if err := s.db.Ping(ctx); err != nil {
			s.log.ErrorContext(ctx, "health check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "down"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// handleMedia serves a stored media file. Names that do not address a
// regular file directly inside the media root are not found.
func (s *Server) handleMedia() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if !s.media.Exists(name) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=86400")
		http.ServeFileFS(w, r, s.media.FS(), name)
	}
}
