// Package importer turns a directory of CSV decks into deck and card rows.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/conorfennell/flashdeck/internal/domain"
	"github.com/conorfennell/flashdeck/internal/parser"
	"github.com/conorfennell/flashdeck/internal/storage"
)

// deckStore defines the persistence needed by the importer.
type deckStore interface {
	FindDeckBySource(ctx context.Context, slug, filename string) (domain.Deck, error)
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx *storage.Tx) error) error
}

// Result summarizes one import run.
type Result struct {
	DecksCreated  int
	DecksSkipped  int
	CardsInserted int
	FilesSkipped  int
	ImagesFailed  int
}

// Importer creates decks for CSV files that are not yet known.
type Importer struct {
	log     *slog.Logger
	store   deckStore
	fetcher *Fetcher
	media   MediaStore
}

// New creates an Importer.
func New(logger *slog.Logger, store deckStore, media MediaStore, fetcher *Fetcher) *Importer {
	return &Importer{
		log:     logger.With("component", "importer"),
		store:   store,
		fetcher: fetcher,
		media:   media,
	}
}

// Run imports every *.csv file directly inside dir, in lexical order.
// Files that cannot be parsed are logged and skipped; storage errors abort
// the run.
func (im *Importer) Run(ctx context.Context, dir string) (Result, error) {
	var res Result

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			im.log.WarnContext(ctx, "questions directory does not exist", slog.String("dir", dir))
			return res, nil
		}
		return res, fmt.Errorf("failed to read questions directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)

	resolver := newResolver(im.log, im.media, im.fetcher)
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := im.importFile(ctx, dir, name, resolver, &res); err != nil {
			return res, err
		}
	}
	res.ImagesFailed = resolver.failed

	im.log.InfoContext(ctx, "import complete",
		slog.String("dir", dir),
		slog.Int("decks_created", res.DecksCreated),
		slog.Int("decks_skipped", res.DecksSkipped),
		slog.Int("cards_inserted", res.CardsInserted),
		slog.Int("files_skipped", res.FilesSkipped),
		slog.Int("images_failed", res.ImagesFailed),
	)
	return res, nil
}

func (im *Importer) importFile(ctx context.Context, dir, filename string, resolver *resolver, res *Result) error {
	slug := Slug(filename)
	if slug == "" {
		im.log.WarnContext(ctx, "skipping file without a usable name", slog.String("file", filename))
		res.FilesSkipped++
		return nil
	}

	_, err := im.store.FindDeckBySource(ctx, slug, filename)
	switch {
	case err == nil:
		res.DecksSkipped++
		return nil
	case !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("failed to look up deck %s: %w", slug, err)
	}

	rows, err := parser.ParseFile(filepath.Join(dir, filename))
	if err != nil {
		im.log.WarnContext(ctx, "skipping unreadable deck file",
			slog.String("file", filename), slog.String("error", err.Error()))
		res.FilesSkipped++
		return nil
	}

	// Images are resolved before the transaction so slow fetches never hold it.
	cards := make([]domain.Card, 0, len(rows))
	for _, row := range rows {
		cards = append(cards, domain.Card{
			Question:      row.Question,
			Answer:        row.Answer,
			QuestionImage: resolver.Resolve(ctx, row.QuestionImage),
			AnswerImage:   resolver.Resolve(ctx, row.AnswerImage),
		})
	}

	title := Title(filename)
	inserted := 0
	err = im.store.RunInTx(ctx, func(ctx context.Context, tx *storage.Tx) error {
		deckID, err := tx.InsertDeck(ctx, slug, title, filename)
		if err != nil {
			return err
		}
		for _, c := range cards {
			c.DeckID = deckID
			_, ok, err := tx.InsertCard(ctx, c)
			if err != nil {
				return err
			}
			if ok {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			res.DecksSkipped++
			return nil
		}
		return fmt.Errorf("failed to import %s: %w", filename, err)
	}

	res.DecksCreated++
	res.CardsInserted += inserted
	im.log.InfoContext(ctx, "deck imported",
		slog.String("slug", slug), slog.String("title", title), slog.Int("cards", inserted))
	return nil
}

var separatorRun = regexp.MustCompile(`[-_]+`)

// Slug derives a deck slug from a file name: the base name without its
// extension, lowercased, with runs of other than letters and digits
// collapsed to "-".
func Slug(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(base) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Title derives a display title from a file name.
func Title(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return strings.TrimSpace(separatorRun.ReplaceAllString(base, " "))
}
