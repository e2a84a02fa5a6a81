package study

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/flashdeck/internal/cardkey"
	"github.com/conorfennell/flashdeck/internal/domain"
	"github.com/conorfennell/flashdeck/internal/media"
	"github.com/conorfennell/flashdeck/internal/parser"
	"github.com/conorfennell/flashdeck/internal/storage"
)

// EditInput replaces a deck's title and card set.
type EditInput struct {
	Title *string     `json:"title"`
	Cards []CardInput `json:"cards"`
}

// CardInput is one card of an edit. ID refers to an existing card of the
// deck. Image fields take a data URI or a media path already served.
type CardInput struct {
	ID                  *int64 `json:"id"`
	Question            string `json:"question"`
	Answer              string `json:"answer"`
	QuestionImage       string `json:"questionImage"`
	AnswerImage         string `json:"answerImage"`
	RemoveQuestionImage bool   `json:"removeQuestionImage"`
	RemoveAnswerImage   bool   `json:"removeAnswerImage"`
}

// EditResult reports what an edit changed.
type EditResult struct {
	Deck     domain.Deck
	Inserted int
	Updated  int
	Deleted  int
	Dropped  int
}

// editPlan is the set of card writes an edit needs.
type editPlan struct {
	updates []planned
	inserts []planned
	deletes []int64
	dropped int
}

type planned struct {
	index   int
	input   CardInput
	current *domain.Card
}

// planEdit matches edit items to the deck's cards: by id first, then by
// normalized question and answer. An item whose text is already claimed by
// another item is dropped; matched items claim their text before new ones.
func planEdit(existing []domain.Card, items []CardInput) editPlan {
	byID := make(map[int64]*domain.Card, len(existing))
	byKey := make(map[string]*domain.Card, len(existing))
	for i := range existing {
		c := &existing[i]
		byID[c.ID] = c
		byKey[cardkey.Key(c.Question, c.Answer)] = c
	}

	claimedCards := make(map[int64]bool, len(existing))
	matched := make([]*domain.Card, len(items))
	for i, item := range items {
		if item.ID == nil {
			continue
		}
		if c, ok := byID[*item.ID]; ok && !claimedCards[c.ID] {
			matched[i] = c
			claimedCards[c.ID] = true
		}
	}
	for i, item := range items {
		if matched[i] != nil {
			continue
		}
		if c, ok := byKey[cardkey.Key(item.Question, item.Answer)]; ok && !claimedCards[c.ID] {
			matched[i] = c
			claimedCards[c.ID] = true
		}
	}

	var plan editPlan
	claimedKeys := make(map[string]bool, len(items))
	claim := func(i int) bool {
		key := cardkey.Key(items[i].Question, items[i].Answer)
		if claimedKeys[key] {
			plan.dropped++
			return false
		}
		claimedKeys[key] = true
		return true
	}
	for i, item := range items {
		if matched[i] == nil {
			continue
		}
		if !claim(i) {
			delete(claimedCards, matched[i].ID)
			continue
		}
		plan.updates = append(plan.updates, planned{index: i, input: item, current: matched[i]})
	}
	for i, item := range items {
		if matched[i] != nil || !claim(i) {
			continue
		}
		plan.inserts = append(plan.inserts, planned{index: i, input: item})
	}

	for _, c := range existing {
		if !claimedCards[c.ID] {
			plan.deletes = append(plan.deletes, c.ID)
		}
	}
	return plan
}

// EditDeck replaces a deck's title and cards in one transaction, rewrites
// its CSV file to match and then removes media no card uses any more.
func (s *Service) EditDeck(ctx context.Context, ref string, input EditInput) (*EditResult, error) {
	if err := validateEdit(&input); err != nil {
		return nil, err
	}
	deck, err := s.ResolveDeck(ctx, ref)
	if err != nil {
		return nil, err
	}
	existing, err := s.store.ListCards(ctx, deck.ID)
	if err != nil {
		return nil, fmt.Errorf("study.EditDeck: %w", err)
	}

	plan := planEdit(existing, input.Cards)
	var uploads []string
	updates, err := s.buildCards(deck.ID, plan.updates, &uploads)
	if err != nil {
		s.discardUploads(ctx, uploads)
		return nil, err
	}
	inserts, err := s.buildCards(deck.ID, plan.inserts, &uploads)
	if err != nil {
		s.discardUploads(ctx, uploads)
		return nil, err
	}
	defer s.cleanupMedia(ctx)

	csvPath := s.deckFile(deck)
	staged := &stagedFile{path: csvPath}
	defer staged.discard()

	result := &EditResult{Dropped: plan.dropped}
	err = s.store.RunInTxWithCommitHook(ctx, func(ctx context.Context, tx *storage.Tx) error {
		if input.Title != nil && *input.Title != deck.Title {
			if err := tx.UpdateDeckTitle(ctx, deck.ID, *input.Title); err != nil {
				return err
			}
		}
		if err := tx.DeleteCards(ctx, deck.ID, plan.deletes); err != nil {
			return err
		}
		result.Deleted = len(plan.deletes)

		for _, c := range updates {
			if err := tx.UpdateCard(ctx, c); err != nil {
				return err
			}
			result.Updated++
		}
		for _, c := range inserts {
			_, ok, err := tx.InsertCard(ctx, c)
			if err != nil {
				return err
			}
			if ok {
				result.Inserted++
			}
		}
		if _, err := tx.PurgeDanglingHistory(ctx, deck.ID); err != nil {
			return err
		}

		cards, err := tx.ListCards(ctx, deck.ID)
		if err != nil {
			return err
		}
		return staged.write(s.csvRows(cards))
	}, &storage.CommitHook{
		BeforeCommit:    staged.commit,
		OnCommitFailure: staged.restore,
	})
	if err != nil {
		s.discardUploads(ctx, uploads)
		return nil, fmt.Errorf("study.EditDeck: %w", err)
	}

	if result.Deck, err = s.store.GetDeck(ctx, deck.ID); err != nil {
		return nil, fmt.Errorf("study.EditDeck: %w", err)
	}
	s.log.InfoContext(ctx, "deck edited",
		slog.Int64("deck_id", deck.ID),
		slog.Int("inserted", result.Inserted),
		slog.Int("updated", result.Updated),
		slog.Int("deleted", result.Deleted),
		slog.Int("dropped", result.Dropped),
	)
	return result, nil
}

// DeleteDeck removes a deck with its cards and history, and its CSV file
// so the importer does not bring it back.
func (s *Service) DeleteDeck(ctx context.Context, ref string) error {
	deck, err := s.ResolveDeck(ctx, ref)
	if err != nil {
		return err
	}

	removal := &removedFile{path: s.deckFile(deck)}
	err = s.store.RunInTxWithCommitHook(ctx, func(ctx context.Context, tx *storage.Tx) error {
		return tx.DeleteDeck(ctx, deck.ID)
	}, &storage.CommitHook{
		BeforeCommit:    removal.stash,
		OnCommitFailure: removal.restore,
	})
	if err != nil {
		return fmt.Errorf("study.DeleteDeck: %w", err)
	}
	removal.finish()

	s.log.InfoContext(ctx, "deck deleted", slog.Int64("deck_id", deck.ID), slog.String("slug", deck.Slug))
	s.cleanupMedia(ctx)
	return nil
}

func validateEdit(input *EditInput) error {
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return domain.NewValidationError("title", "must not be empty")
		}
		input.Title = &title
	}
	if input.Cards == nil {
		return domain.NewValidationError("cards", "is required")
	}
	for i := range input.Cards {
		c := &input.Cards[i]
		c.Question = strings.TrimSpace(c.Question)
		c.Answer = strings.TrimSpace(c.Answer)
		if c.Question == "" {
			return domain.NewValidationError(fmt.Sprintf("cards[%d].question", i), "is required")
		}
		if c.Answer == "" {
			return domain.NewValidationError(fmt.Sprintf("cards[%d].answer", i), "is required")
		}
	}
	return nil
}

// buildCards turns planned items into card rows, storing new images.
func (s *Service) buildCards(deckID int64, items []planned, uploads *[]string) ([]domain.Card, error) {
	cards := make([]domain.Card, 0, len(items))
	for _, p := range items {
		c := domain.Card{DeckID: deckID, Question: p.input.Question, Answer: p.input.Answer}
		var currentQ, currentA string
		if p.current != nil {
			c.ID = p.current.ID
			currentQ, currentA = p.current.QuestionImage, p.current.AnswerImage
		}

		var err error
		if c.QuestionImage, err = s.editImage(p.input.QuestionImage, p.input.RemoveQuestionImage, currentQ, uploads); err != nil {
			return nil, withField(err, p, "questionImage")
		}
		if c.AnswerImage, err = s.editImage(p.input.AnswerImage, p.input.RemoveAnswerImage, currentA, uploads); err != nil {
			return nil, withField(err, p, "answerImage")
		}
		cards = append(cards, c)
	}
	return cards, nil
}

// editImage decides a card image: removed, replaced by a new upload,
// pointed at an existing media file, or kept. New uploads are appended to
// uploads.
func (s *Service) editImage(value string, remove bool, current string, uploads *[]string) (string, error) {
	value = strings.TrimSpace(value)
	switch {
	case remove:
		return "", nil
	case value == "":
		return current, nil
	case strings.HasPrefix(value, "data:"):
		name, err := s.media.SaveDataURI(value)
		if errors.Is(err, media.ErrInvalidDataURI) {
			return "", errInvalidImage
		}
		if err != nil {
			return "", err
		}
		*uploads = append(*uploads, name)
		return name, nil
	}
	if name, ok := s.media.NameFromURL(value); ok && s.media.Exists(name) {
		return name, nil
	}
	return "", errInvalidImage
}

var errInvalidImage = errors.New("must be a data URI or an existing media path")

func withField(err error, p planned, field string) error {
	if !errors.Is(err, errInvalidImage) {
		return fmt.Errorf("failed to store image: %w", err)
	}
	return domain.NewValidationError(fmt.Sprintf("cards[%d].%s", p.index, field), err.Error())
}

func (s *Service) csvRows(cards []domain.Card) []parser.Row {
	rows := make([]parser.Row, 0, len(cards))
	for _, c := range cards {
		rows = append(rows, parser.Row{
			Question:      c.Question,
			Answer:        c.Answer,
			QuestionImage: s.media.URL(c.QuestionImage),
			AnswerImage:   s.media.URL(c.AnswerImage),
		})
	}
	return rows
}

// deckFile is the CSV file backing a deck.
func (s *Service) deckFile(deck domain.Deck) string {
	name := filepath.Base(deck.Filename)
	if deck.Filename == "" || name == "." || name == string(filepath.Separator) {
		name = deck.Slug + ".csv"
	}
	return filepath.Join(s.questionsDir, name)
}

// stagedFile writes a replacement next to path and moves it into place
// only when the surrounding transaction is about to commit.
type stagedFile struct {
	path     string
	temp     string
	previous []byte
	existed  bool
}

func (f *stagedFile) write(rows []parser.Row) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".flashdeck-*.csv")
	if err != nil {
		return fmt.Errorf("failed to stage deck file: %w", err)
	}
	f.temp = tmp.Name()

	var buf bytes.Buffer
	if err := parser.Write(&buf, rows); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write staged deck file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close staged deck file: %w", err)
	}
	return nil
}

func (f *stagedFile) commit() error {
	prev, err := os.ReadFile(f.path)
	switch {
	case err == nil:
		f.previous, f.existed = prev, true
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("failed to read deck file: %w", err)
	}
	if err := os.Rename(f.temp, f.path); err != nil {
		return fmt.Errorf("failed to replace deck file: %w", err)
	}
	f.temp = ""
	return nil
}

func (f *stagedFile) restore() {
	if !f.existed {
		os.Remove(f.path) //nolint:errcheck
		return
	}
	if err := os.WriteFile(f.path, f.previous, 0o644); err != nil {
		slog.Error("failed to restore deck file", "path", f.path, "error", err)
	}
}

func (f *stagedFile) discard() {
	if f.temp != "" {
		os.Remove(f.temp) //nolint:errcheck
	}
}

// removedFile moves a file aside before commit and deletes it after.
type removedFile struct {
	path    string
	stashed string
}

func (f *removedFile) stash() error {
	stashed := f.path + ".deleted"
	if err := os.Rename(f.path, stashed); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to remove deck file: %w", err)
	}
	f.stashed = stashed
	return nil
}

func (f *removedFile) restore() {
	if f.stashed == "" {
		return
	}
	if err := os.Rename(f.stashed, f.path); err != nil {
		slog.Error("failed to restore deck file", "path", f.path, "error", err)
	}
}

func (f *removedFile) finish() {
	if f.stashed != "" {
		os.Remove(f.stashed) //nolint:errcheck
	}
}
