package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/conorfennell/flashdeck/internal/domain"
)

const deckSelect = `
	SELECT d.id, d.slug, d.title, COALESCE(d.filename, '') AS filename,
	       (SELECT COUNT(*) FROM cards c WHERE c.deck_id = d.id) AS card_count
	FROM decks d`

const cardSelect = `
	SELECT id, deck_id, question, answer,
	       COALESCE(question_image, '') AS question_image,
	       COALESCE(answer_image, '') AS answer_image
	FROM cards`

// ListDecks returns every deck with its card count, in deck title order.
func (q *queries) ListDecks(ctx context.Context) ([]domain.Deck, error) {
	var decks []domain.Deck
	if err := selectContext(ctx, q.q, &decks, deckSelect); err != nil {
		return nil, fmt.Errorf("failed to list decks: %w", err)
	}
	domain.SortDecks(decks)
	return decks, nil
}

// GetDeck returns ErrNotFound when no deck has the id.
func (q *queries) GetDeck(ctx context.Context, id int64) (domain.Deck, error) {
	return q.getDeck(ctx, deckSelect+` WHERE d.id = ?`, id)
}

// GetDeckBySlug returns ErrNotFound when no deck has the slug.
func (q *queries) GetDeckBySlug(ctx context.Context, slug string) (domain.Deck, error) {
	return q.getDeck(ctx, deckSelect+` WHERE d.slug = ?`, slug)
}

// FindDeckBySource returns the deck imported under slug or from filename.
func (q *queries) FindDeckBySource(ctx context.Context, slug, filename string) (domain.Deck, error) {
	return q.getDeck(ctx, deckSelect+` WHERE d.slug = ? OR d.filename = ? ORDER BY d.id LIMIT 1`, slug, filename)
}

func (q *queries) getDeck(ctx context.Context, query string, args ...any) (domain.Deck, error) {
	var deck domain.Deck
	if err := getContext(ctx, q.q, &deck, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Deck{}, fmt.Errorf("deck %v: %w", args[0], domain.ErrNotFound)
		}
		return domain.Deck{}, fmt.Errorf("failed to find deck %v: %w", args[0], err)
	}
	return deck, nil
}

// InsertDeck creates a deck and returns its id.
func (q *queries) InsertDeck(ctx context.Context, slug, title, filename string) (int64, error) {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO decks (slug, title, filename) VALUES (?, ?, ?)
	`, slug, title, nullIfEmpty(filename))
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("deck %s: %w", slug, domain.ErrAlreadyExists)
		}
		return 0, fmt.Errorf("failed to insert deck %s: %w", slug, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for deck %s: %w", slug, err)
	}
	return id, nil
}

// UpdateDeckTitle changes a deck's display title. The slug never changes.
func (q *queries) UpdateDeckTitle(ctx context.Context, id int64, title string) error {
	return q.execOne(ctx, fmt.Sprintf("deck %d", id), `UPDATE decks SET title = ? WHERE id = ?`, title, id)
}

// DeleteDeck removes a deck; its cards, progress and ratings cascade.
func (q *queries) DeleteDeck(ctx context.Context, id int64) error {
	return q.execOne(ctx, fmt.Sprintf("deck %d", id), `DELETE FROM decks WHERE id = ?`, id)
}

// ListCards returns the cards of a deck in insertion order.
func (q *queries) ListCards(ctx context.Context, deckID int64) ([]domain.Card, error) {
	var cards []domain.Card
	if err := selectContext(ctx, q.q, &cards, cardSelect+` WHERE deck_id = ? ORDER BY id`, deckID); err != nil {
		return nil, fmt.Errorf("failed to list cards for deck %d: %w", deckID, err)
	}
	return cards, nil
}

// GetCard returns ErrNotFound when no card has the id.
func (q *queries) GetCard(ctx context.Context, id int64) (domain.Card, error) {
	var card domain.Card
	if err := getContext(ctx, q.q, &card, cardSelect+` WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Card{}, fmt.Errorf("card %d: %w", id, domain.ErrNotFound)
		}
		return domain.Card{}, fmt.Errorf("failed to find card %d: %w", id, err)
	}
	return card, nil
}

// InsertCard adds a card unless the deck already holds the same question
// and answer. inserted is false for such a duplicate.
func (q *queries) InsertCard(ctx context.Context, c domain.Card) (id int64, inserted bool, err error) {
	res, err := q.q.ExecContext(ctx, `
		INSERT OR IGNORE INTO cards (deck_id, question, answer, question_image, answer_image)
		VALUES (?, ?, ?, ?, ?)
	`, c.DeckID, c.Question, c.Answer, nullIfEmpty(c.QuestionImage), nullIfEmpty(c.AnswerImage))
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert card into deck %d: %w", c.DeckID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read affected rows for card: %w", err)
	}
	if n == 0 {
		return 0, false, nil
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get last insert ID for card: %w", err)
	}
	return id, true, nil
}

// UpdateCard rewrites a card's text and images.
// ErrConflict is returned when another card of the deck has the same text.
func (q *queries) UpdateCard(ctx context.Context, c domain.Card) error {
	err := q.execOne(ctx, fmt.Sprintf("card %d", c.ID), `
		UPDATE cards SET question = ?, answer = ?, question_image = ?, answer_image = ?
		WHERE id = ? AND deck_id = ?
	`, c.Question, c.Answer, nullIfEmpty(c.QuestionImage), nullIfEmpty(c.AnswerImage), c.ID, c.DeckID)
	if isUniqueViolation(err) {
		return fmt.Errorf("card %d duplicates another card: %w", c.ID, domain.ErrConflict)
	}
	return err
}

// DeleteCards removes the given cards of a deck.
func (q *queries) DeleteCards(ctx context.Context, deckID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM cards WHERE deck_id = ? AND id IN (?)`, deckID, ids)
	if err != nil {
		return fmt.Errorf("failed to build card delete: %w", err)
	}
	if _, err := q.q.ExecContext(ctx, q.q.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to delete cards of deck %d: %w", deckID, err)
	}
	return nil
}

// PurgeDanglingHistory deletes progress and ratings of a deck that point at
// cards no longer in it.
func (q *queries) PurgeDanglingHistory(ctx context.Context, deckID int64) (int64, error) {
	var purged int64
	for _, table := range []string{"progress", "ratings"} {
		res, err := q.q.ExecContext(ctx, `DELETE FROM `+table+`
			WHERE deck_id = ? AND card_id NOT IN (SELECT id FROM cards WHERE deck_id = ?)`, deckID, deckID)
		if err != nil {
			return 0, fmt.Errorf("failed to purge %s of deck %d: %w", table, deckID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read affected rows for %s: %w", table, err)
		}
		purged += n
	}
	return purged, nil
}

// MediaReferences returns every media file name referenced by a card.
func (q *queries) MediaReferences(ctx context.Context) (map[string]bool, error) {
	var names []string
	err := selectContext(ctx, q.q, &names, `
		SELECT question_image FROM cards WHERE question_image IS NOT NULL AND question_image <> ''
		UNION
		SELECT answer_image FROM cards WHERE answer_image IS NOT NULL AND answer_image <> ''
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list media references: %w", err)
	}
	refs := make(map[string]bool, len(names))
	for _, n := range names {
		refs[n] = true
	}
	return refs, nil
}
