// Package study implements what learners and administrators do with decks:
// reviewing, rating, reporting and editing.
package study

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/conorfennell/flashdeck/internal/domain"
	"github.com/conorfennell/flashdeck/internal/fsrs"
	"github.com/conorfennell/flashdeck/internal/storage"
)

// Store defines the persistence needed by the study service.
// *storage.Store satisfies it.
type Store interface {
	ListDecks(ctx context.Context) ([]domain.Deck, error)
	GetDeck(ctx context.Context, id int64) (domain.Deck, error)
	GetDeckBySlug(ctx context.Context, slug string) (domain.Deck, error)
	ListCards(ctx context.Context, deckID int64) ([]domain.Card, error)
	GetCard(ctx context.Context, id int64) (domain.Card, error)

	RecordProgress(ctx context.Context, userID, deckID, cardID int64, category domain.Category) error
	CurrentProgress(ctx context.Context, userID, deckID int64) (map[int64]domain.Category, error)
	ProgressHistory(ctx context.Context, userID int64) ([]domain.ProgressEvent, error)
	LatestCategoryCounts(ctx context.Context, userID int64) ([]storage.CategoryCount, error)
	CountCards(ctx context.Context) (int, error)

	SetRating(ctx context.Context, userID, deckID, cardID int64, rating domain.Rating) error
	ClearRating(ctx context.Context, userID, cardID int64) error
	UserRatings(ctx context.Context, userID, deckID int64) (map[int64]domain.Rating, error)
	RatingCounts(ctx context.Context, deckID int64) (map[int64]domain.RatingCount, error)
	ResetCardRatings(ctx context.Context, cardID int64) (int64, error)

	ListUsers(ctx context.Context) ([]domain.User, error)
	GetUserByID(ctx context.Context, id int64) (domain.User, error)
	DeleteUser(ctx context.Context, id int64) error

	MediaReferences(ctx context.Context) (map[string]bool, error)
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx *storage.Tx) error) error
	RunInTxWithCommitHook(ctx context.Context, fn func(ctx context.Context, tx *storage.Tx) error, hook *storage.CommitHook) error
}

// MediaStore is satisfied by *media.Store.
type MediaStore interface {
	SaveDataURI(uri string) (string, error)
	NameFromURL(locator string) (string, bool)
	Exists(name string) bool
	URL(name string) string
	Remove(name string) error
	Cleanup(referenced map[string]bool, cutoff time.Time) ([]string, error)
}

// Service implements deck study and administration.
type Service struct {
	log          *slog.Logger
	store        Store
	media        MediaStore
	questionsDir string
	scheduler    *fsrs.Params
	now          func() time.Time
}

// NewService creates a study service. questionsDir holds the CSV files
// that deck edits and deletions keep in sync.
func NewService(logger *slog.Logger, store Store, media MediaStore, questionsDir string) *Service {
	return &Service{
		log:          logger.With("service", "study"),
		store:        store,
		media:        media,
		questionsDir: questionsDir,
		scheduler:    fsrs.DefaultParams(),
		now:          time.Now,
	}
}

// SetClock replaces the time source used for due dates.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// ListDecks returns every deck in deck order.
func (s *Service) ListDecks(ctx context.Context) ([]domain.Deck, error) {
	decks, err := s.store.ListDecks(ctx)
	if err != nil {
		return nil, fmt.Errorf("study.ListDecks: %w", err)
	}
	return decks, nil
}

// ResolveDeck finds a deck by numeric id or by slug.
func (s *Service) ResolveDeck(ctx context.Context, ref string) (domain.Deck, error) {
	if ref == "" {
		return domain.Deck{}, fmt.Errorf("deck: %w", domain.ErrNotFound)
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		deck, err := s.store.GetDeck(ctx, id)
		if err == nil || !errors.Is(err, domain.ErrNotFound) {
			return deck, err
		}
	}
	return s.store.GetDeckBySlug(ctx, ref)
}

// DeckView is a deck as one user sees it.
type DeckView struct {
	Deck     domain.Deck
	Cards    []domain.Card
	Progress map[int64]domain.Category
	Ratings  map[int64]domain.Rating
	// RatingCounts is only set for administrators.
	RatingCounts map[int64]domain.RatingCount
}

// GetDeckView loads a deck with the user's current progress and ratings.
func (s *Service) GetDeckView(ctx context.Context, user domain.User, ref string) (*DeckView, error) {
	deck, err := s.ResolveDeck(ctx, ref)
	if err != nil {
		return nil, err
	}

	view := &DeckView{Deck: deck}
	if view.Cards, err = s.store.ListCards(ctx, deck.ID); err != nil {
		return nil, fmt.Errorf("study.GetDeckView: %w", err)
	}
	if view.Progress, err = s.store.CurrentProgress(ctx, user.ID, deck.ID); err != nil {
		return nil, fmt.Errorf("study.GetDeckView: %w", err)
	}
	if view.Ratings, err = s.store.UserRatings(ctx, user.ID, deck.ID); err != nil {
		return nil, fmt.Errorf("study.GetDeckView: %w", err)
	}
	if user.IsAdmin {
		if view.RatingCounts, err = s.store.RatingCounts(ctx, deck.ID); err != nil {
			return nil, fmt.Errorf("study.GetDeckView: %w", err)
		}
	}
	return view, nil
}

// mediaGrace is how long a new media file is kept without a referencing
// card. Edits and imports save images before their transaction commits.
const mediaGrace = 15 * time.Minute

// cleanupMedia removes media files no card references any more. Failures
// are logged; a leftover file is harmless.
func (s *Service) cleanupMedia(ctx context.Context) {
	refs, err := s.store.MediaReferences(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "media cleanup skipped", slog.String("error", err.Error()))
		return
	}
	// File times come from the wall clock, not the service clock.
	removed, err := s.media.Cleanup(refs, time.Now().Add(-mediaGrace))
	if err != nil {
		s.log.ErrorContext(ctx, "media cleanup incomplete", slog.String("error", err.Error()))
	}
	if len(removed) > 0 {
		s.log.InfoContext(ctx, "removed unused media", slog.Int("files", len(removed)))
	}
}

// discardUploads removes images saved by an edit that did not commit.
func (s *Service) discardUploads(ctx context.Context, names []string) {
	for _, name := range names {
		if err := s.media.Remove(name); err != nil {
			s.log.WarnContext(ctx, "failed to remove upload", slog.String("name", name), slog.String("error", err.Error()))
		}
	}
}
