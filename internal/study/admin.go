package study

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/conorfennell/flashdeck/internal/domain"
	"github.com/conorfennell/flashdeck/internal/storage"
)

// ListUsers returns every user with their progress rollup across all decks.
func (s *Service) ListUsers(ctx context.Context) ([]domain.UserSummary, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("study.ListUsers: %w", err)
	}
	total, err := s.store.CountCards(ctx)
	if err != nil {
		return nil, fmt.Errorf("study.ListUsers: %w", err)
	}
	counts, err := s.store.LatestCategoryCounts(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("study.ListUsers: %w", err)
	}

	byUser := make(map[int64]map[domain.Category]int)
	for _, c := range counts {
		if byUser[c.UserID] == nil {
			byUser[c.UserID] = make(map[domain.Category]int)
		}
		byUser[c.UserID][domain.Category(c.Category)] += c.Cards
	}

	summaries := make([]domain.UserSummary, 0, len(users))
	for _, u := range users {
		u.PasswordHash = ""
		sum := domain.UserSummary{User: u, TotalCards: total, Categories: emptyCategories()}
		for cat, n := range byUser[u.ID] {
			sum.Categories[cat] = n
			sum.Answered += n
		}
		sum.Unanswered = sum.TotalCards - sum.Answered
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

// ResetUser deletes all progress and ratings of a user.
func (s *Service) ResetUser(ctx context.Context, userID int64) error {
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return fmt.Errorf("study.ResetUser: %w", err)
	}
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx *storage.Tx) error {
		return tx.ResetUserHistory(ctx, userID)
	})
	if err != nil {
		return fmt.Errorf("study.ResetUser: %w", err)
	}
	s.log.InfoContext(ctx, "user history reset", slog.Int64("user_id", userID))
	return nil
}

// DeleteUser removes a user. Administrators cannot delete themselves.
func (s *Service) DeleteUser(ctx context.Context, actorID, userID int64) error {
	if actorID == userID {
		return fmt.Errorf("cannot delete your own account: %w", domain.ErrConflict)
	}
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("study.DeleteUser: %w", err)
	}
	s.log.InfoContext(ctx, "user deleted", slog.Int64("user_id", userID), slog.Int64("by", actorID))
	return nil
}

// ResetCardRatings deletes every user's rating of a card and returns how
// many were removed.
func (s *Service) ResetCardRatings(ctx context.Context, cardID int64) (int64, error) {
	if _, err := s.store.GetCard(ctx, cardID); err != nil {
		return 0, fmt.Errorf("study.ResetCardRatings: %w", err)
	}
	n, err := s.store.ResetCardRatings(ctx, cardID)
	if err != nil {
		return 0, fmt.Errorf("study.ResetCardRatings: %w", err)
	}
	s.log.InfoContext(ctx, "card ratings reset", slog.Int64("card_id", cardID), slog.Int64("ratings", n))
	return n, nil
}
