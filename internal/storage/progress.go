package storage

import (
	"context"
	"fmt"

	"github.com/conorfennell/flashdeck/internal/domain"
)

// latestProgress ranks each user's events per card, last recorded first. Rows
// with rn = 1 are the current category of the card.
const latestProgress = `
	SELECT user_id, deck_id, card_id, category,
	       ROW_NUMBER() OVER (PARTITION BY user_id, card_id ORDER BY id DESC) AS rn
	FROM progress`

// RecordProgress appends a review outcome. The card must belong to the
// deck; ErrNotFound otherwise.
func (q *queries) RecordProgress(ctx context.Context, userID, deckID, cardID int64, category domain.Category) error {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO progress (user_id, card_id, deck_id, category, created_at)
		SELECT ?, id, deck_id, ?, ? FROM cards WHERE id = ? AND deck_id = ?
	`, userID, string(category), q.millis(), cardID, deckID)
	if err != nil {
		return fmt.Errorf("failed to record progress for card %d: %w", cardID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows for progress: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("card %d in deck %d: %w", cardID, deckID, domain.ErrNotFound)
	}
	return nil
}

// CurrentProgress maps each reviewed card of the deck to the category of
// the user's most recent event for it.
func (q *queries) CurrentProgress(ctx context.Context, userID, deckID int64) (map[int64]domain.Category, error) {
	var rows []struct {
		CardID   int64  `db:"card_id"`
		Category string `db:"category"`
	}
	err := selectContext(ctx, q.q, &rows, `
		SELECT card_id, category FROM (`+latestProgress+` WHERE user_id = ? AND deck_id = ?)
		WHERE rn = 1
	`, userID, deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to load progress for deck %d: %w", deckID, err)
	}
	progress := make(map[int64]domain.Category, len(rows))
	for _, r := range rows {
		progress[r.CardID] = domain.Category(r.Category)
	}
	return progress, nil
}

// ProgressHistory returns all events of a user oldest first, grouped by card.
func (q *queries) ProgressHistory(ctx context.Context, userID int64) ([]domain.ProgressEvent, error) {
	var rows []struct {
		ID        int64  `db:"id"`
		CardID    int64  `db:"card_id"`
		DeckID    int64  `db:"deck_id"`
		Category  string `db:"category"`
		CreatedAt int64  `db:"created_at"`
	}
	err := selectContext(ctx, q.q, &rows, `
		SELECT id, card_id, deck_id, category, created_at FROM progress
		WHERE user_id = ? ORDER BY card_id, created_at, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load progress history: %w", err)
	}
	events := make([]domain.ProgressEvent, 0, len(rows))
	for _, r := range rows {
		events = append(events, domain.ProgressEvent{
			ID:        r.ID,
			UserID:    userID,
			CardID:    r.CardID,
			DeckID:    r.DeckID,
			Category:  domain.Category(r.Category),
			CreatedAt: fromMillis(r.CreatedAt),
		})
	}
	return events, nil
}

// CategoryCount is the number of cards whose latest category is Category.
type CategoryCount struct {
	UserID   int64  `db:"user_id"`
	DeckID   int64  `db:"deck_id"`
	Category string `db:"category"`
	Cards    int    `db:"cards"`
}

// LatestCategoryCounts counts, per user and deck, the cards in each latest
// category. A zero userID counts every user.
func (q *queries) LatestCategoryCounts(ctx context.Context, userID int64) ([]CategoryCount, error) {
	query := `SELECT user_id, deck_id, category, COUNT(*) AS cards FROM (` + latestProgress
	var args []any
	if userID != 0 {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += `) WHERE rn = 1 GROUP BY user_id, deck_id, category`

	var counts []CategoryCount
	if err := selectContext(ctx, q.q, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to count latest categories: %w", err)
	}
	return counts, nil
}

// CountCards returns the number of cards across all decks.
func (q *queries) CountCards(ctx context.Context) (int, error) {
	var n int
	if err := getContext(ctx, q.q, &n, `SELECT COUNT(*) FROM cards`); err != nil {
		return 0, fmt.Errorf("failed to count cards: %w", err)
	}
	return n, nil
}

// SetRating stores the user's current rating of a card, replacing any
// earlier one. The card must belong to the deck; ErrNotFound otherwise.
func (q *queries) SetRating(ctx context.Context, userID, deckID, cardID int64, rating domain.Rating) error {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO ratings (user_id, card_id, deck_id, rating, updated_at)
		SELECT ?, id, deck_id, ?, ? FROM cards WHERE id = ? AND deck_id = ?
		ON CONFLICT (user_id, card_id) DO UPDATE SET
			rating = excluded.rating,
			updated_at = excluded.updated_at
	`, userID, string(rating), q.millis(), cardID, deckID)
	if err != nil {
		return fmt.Errorf("failed to set rating for card %d: %w", cardID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows for rating: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("card %d in deck %d: %w", cardID, deckID, domain.ErrNotFound)
	}
	return nil
}

// ClearRating removes the user's rating of a card, if any.
func (q *queries) ClearRating(ctx context.Context, userID, cardID int64) error {
	if _, err := q.q.ExecContext(ctx, `DELETE FROM ratings WHERE user_id = ? AND card_id = ?`, userID, cardID); err != nil {
		return fmt.Errorf("failed to clear rating for card %d: %w", cardID, err)
	}
	return nil
}

// UserRatings maps each card of the deck the user rated to the rating.
func (q *queries) UserRatings(ctx context.Context, userID, deckID int64) (map[int64]domain.Rating, error) {
	var rows []struct {
		CardID int64  `db:"card_id"`
		Rating string `db:"rating"`
	}
	err := selectContext(ctx, q.q, &rows, `
		SELECT card_id, rating FROM ratings WHERE user_id = ? AND deck_id = ?
	`, userID, deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ratings for deck %d: %w", deckID, err)
	}
	ratings := make(map[int64]domain.Rating, len(rows))
	for _, r := range rows {
		ratings[r.CardID] = domain.Rating(r.Rating)
	}
	return ratings, nil
}

// RatingCounts aggregates thumbs up and down per card of a deck across all users.
func (q *queries) RatingCounts(ctx context.Context, deckID int64) (map[int64]domain.RatingCount, error) {
	var rows []domain.RatingCount
	err := selectContext(ctx, q.q, &rows, `
		SELECT card_id,
		       SUM(CASE WHEN rating = 'up' THEN 1 ELSE 0 END) AS thumbs_up,
		       SUM(CASE WHEN rating = 'down' THEN 1 ELSE 0 END) AS thumbs_down
		FROM ratings WHERE deck_id = ?
		GROUP BY card_id
	`, deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to count ratings for deck %d: %w", deckID, err)
	}
	counts := make(map[int64]domain.RatingCount, len(rows))
	for _, r := range rows {
		counts[r.CardID] = r
	}
	return counts, nil
}

// ResetCardRatings deletes every user's rating of a card.
func (q *queries) ResetCardRatings(ctx context.Context, cardID int64) (int64, error) {
	res, err := q.q.ExecContext(ctx, `DELETE FROM ratings WHERE card_id = ?`, cardID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset ratings of card %d: %w", cardID, err)
	}
	return res.RowsAffected()
}

// ResetUserHistory deletes all progress and ratings of a user.
func (q *queries) ResetUserHistory(ctx context.Context, userID int64) error {
	for _, table := range []string{"progress", "ratings"} {
		if _, err := q.q.ExecContext(ctx, `DELETE FROM `+table+` WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("failed to reset %s of user %d: %w", table, userID, err)
		}
	}
	return nil
}
