package study

import (
	"context"
	"fmt"

	"github.com/conorfennell/flashdeck/internal/domain"
	"github.com/conorfennell/flashdeck/internal/fsrs"
)

// RecordProgress appends a review outcome for a card of the deck.
func (s *Service) RecordProgress(ctx context.Context, userID int64, ref string, cardID int64, category string) error {
	cat, err := domain.ParseCategory(category)
	if err != nil {
		return err
	}
	if cardID <= 0 {
		return domain.NewValidationError("cardId", "is required")
	}
	deck, err := s.ResolveDeck(ctx, ref)
	if err != nil {
		return err
	}
	if err := s.store.RecordProgress(ctx, userID, deck.ID, cardID, cat); err != nil {
		return fmt.Errorf("study.RecordProgress: %w", err)
	}
	return nil
}

// SetRating replaces the user's rating of a card. A nil rating clears it.
func (s *Service) SetRating(ctx context.Context, userID int64, ref string, cardID int64, rating *string) error {
	var value domain.Rating
	if rating != nil {
		var err error
		if value, err = domain.ParseRating(*rating); err != nil {
			return err
		}
	}
	if cardID <= 0 {
		return domain.NewValidationError("cardId", "is required")
	}
	deck, err := s.ResolveDeck(ctx, ref)
	if err != nil {
		return err
	}

	if rating != nil {
		if err := s.store.SetRating(ctx, userID, deck.ID, cardID, value); err != nil {
			return fmt.Errorf("study.SetRating: %w", err)
		}
		return nil
	}

	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return fmt.Errorf("study.SetRating: %w", err)
	}
	if card.DeckID != deck.ID {
		return fmt.Errorf("card %d in deck %d: %w", cardID, deck.ID, domain.ErrNotFound)
	}
	if err := s.store.ClearRating(ctx, userID, cardID); err != nil {
		return fmt.Errorf("study.SetRating: %w", err)
	}
	return nil
}

// Report rolls up the user's latest categories per deck, in deck order.
// Due counts the reviewed cards whose scheduled review is not in the future.
func (s *Service) Report(ctx context.Context, userID int64) ([]domain.DeckReport, error) {
	decks, err := s.store.ListDecks(ctx)
	if err != nil {
		return nil, fmt.Errorf("study.Report: %w", err)
	}
	counts, err := s.store.LatestCategoryCounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("study.Report: %w", err)
	}
	history, err := s.store.ProgressHistory(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("study.Report: %w", err)
	}

	byDeck := make(map[int64]map[domain.Category]int, len(decks))
	for _, c := range counts {
		if byDeck[c.DeckID] == nil {
			byDeck[c.DeckID] = make(map[domain.Category]int)
		}
		byDeck[c.DeckID][domain.Category(c.Category)] += c.Cards
	}
	due := s.dueByDeck(history)

	reports := make([]domain.DeckReport, 0, len(decks))
	for _, d := range decks {
		r := domain.DeckReport{
			DeckID:     d.ID,
			Slug:       d.Slug,
			Title:      d.Title,
			TotalCards: d.CardCount,
			Due:        due[d.ID],
			Categories: emptyCategories(),
		}
		for cat, n := range byDeck[d.ID] {
			r.Categories[cat] = n
			r.Answered += n
		}
		r.Unanswered = r.TotalCards - r.Answered
		reports = append(reports, r)
	}
	return reports, nil
}

// dueByDeck replays each card's history, which arrives grouped by card and
// oldest first, and counts the cards due now per deck.
func (s *Service) dueByDeck(history []domain.ProgressEvent) map[int64]int {
	now := s.now()
	due := make(map[int64]int)

	var reviews []fsrs.Review
	flush := func(deckID int64) {
		if len(reviews) == 0 {
			return
		}
		if _, at := s.scheduler.Replay(reviews); !at.After(now) {
			due[deckID]++
		}
		reviews = reviews[:0]
	}

	for i, e := range history {
		if i > 0 && history[i-1].CardID != e.CardID {
			flush(history[i-1].DeckID)
		}
		rating, ok := fsrs.ParseRating(string(e.Category))
		if !ok {
			continue
		}
		reviews = append(reviews, fsrs.Review{Rating: rating, At: e.CreatedAt})
	}
	if len(history) > 0 {
		flush(history[len(history)-1].DeckID)
	}
	return due
}

func emptyCategories() map[domain.Category]int {
	m := make(map[domain.Category]int, len(domain.Categories))
	for _, c := range domain.Categories {
		m[c] = 0
	}
	return m
}
