package study_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/flashdeck/internal/domain"
	"github.com/conorfennell/flashdeck/internal/media"
	"github.com/conorfennell/flashdeck/internal/parser"
	"github.com/conorfennell/flashdeck/internal/storage"
	"github.com/conorfennell/flashdeck/internal/study"
	"github.com/conorfennell/flashdeck/internal/testutil"
)

const pixelPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

type fixture struct {
	svc          *study.Service
	store        *storage.Store
	media        *media.Store
	clock        *testutil.StubClock
	questionsDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testutil.NewTestStore(t)
	clock := testutil.FixedClock()
	store.SetClock(clock.Now)

	mediaStore, err := media.Open(t.TempDir(), "/media/")
	require.NoError(t, err)
	t.Cleanup(func() { mediaStore.Close() })

	questionsDir := t.TempDir()
	svc := study.NewService(slog.New(slog.DiscardHandler), store, mediaStore, questionsDir)
	svc.SetClock(clock.Now)
	return &fixture{svc: svc, store: store, media: mediaStore, clock: clock, questionsDir: questionsDir}
}

func ptr[T any](v T) *T { return &v }

// ageMedia backdates media files past the cleanup grace period.
func ageMedia(t *testing.T, f *fixture, names ...string) {
	t.Helper()
	old := time.Now().Add(-24 * time.Hour)
	for _, name := range names {
		require.NoError(t, os.Chtimes(filepath.Join(f.media.Dir(), name), old, old))
	}
}

func TestResolveDeck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	deck, _ := testutil.SeedDeck(t, f.store, "basics", "01 Basics", [2]string{"q", "a"})

	byID, err := f.svc.ResolveDeck(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, deck.ID, byID.ID)

	bySlug, err := f.svc.ResolveDeck(ctx, "basics")
	require.NoError(t, err)
	assert.Equal(t, deck.ID, bySlug.ID)

	_, err = f.svc.ResolveDeck(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.ResolveDeck(ctx, "42")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetDeckViewRatingCountsForAdminsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	deck, cards := testutil.SeedDeck(t, f.store, "basics", "Basics", [2]string{"q1", "a1"}, [2]string{"q2", "a2"})
	learner := testutil.SeedUser(t, f.store, "ann@example.com", false)
	admin := testutil.SeedUser(t, f.store, "root@example.com", true)

	require.NoError(t, f.svc.RecordProgress(ctx, learner.ID, "basics", cards[0].ID, "Hard"))
	require.NoError(t, f.svc.SetRating(ctx, learner.ID, "basics", cards[1].ID, ptr("up")))
	require.NoError(t, f.svc.SetRating(ctx, admin.ID, "basics", cards[1].ID, ptr("down")))

	view, err := f.svc.GetDeckView(ctx, learner, "basics")
	require.NoError(t, err)
	assert.Equal(t, deck.ID, view.Deck.ID)
	assert.Len(t, view.Cards, 2)
	assert.Equal(t, map[int64]domain.Category{cards[0].ID: domain.CategoryHard}, view.Progress)
	assert.Equal(t, map[int64]domain.Rating{cards[1].ID: domain.RatingUp}, view.Ratings)
	assert.Nil(t, view.RatingCounts)

	adminView, err := f.svc.GetDeckView(ctx, admin, "basics")
	require.NoError(t, err)
	assert.Empty(t, adminView.Progress)
	assert.Equal(t, domain.RatingCount{CardID: cards[1].ID, ThumbsUp: 1, ThumbsDown: 1}, adminView.RatingCounts[cards[1].ID])
}

func TestRecordProgressRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, basics := testutil.SeedDeck(t, f.store, "basics", "Basics", [2]string{"q1", "a1"})
	_, other := testutil.SeedDeck(t, f.store, "other", "Other", [2]string{"q2", "a2"})
	user := testutil.SeedUser(t, f.store, "ann@example.com", false)

	err := f.svc.RecordProgress(ctx, user.ID, "basics", basics[0].ID, "Perfect")
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = f.svc.RecordProgress(ctx, user.ID, "basics", 0, "Good")
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = f.svc.RecordProgress(ctx, user.ID, "basics", other[0].ID, "Good")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = f.svc.RecordProgress(ctx, user.ID, "nope", basics[0].ID, "Good")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSetRatingIsSingleValued(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	deck, cards := testutil.SeedDeck(t, f.store, "basics", "Basics", [2]string{"q1", "a1"})
	_, other := testutil.SeedDeck(t, f.store, "other", "Other", [2]string{"q2", "a2"})
	user := testutil.SeedUser(t, f.store, "ann@example.com", false)

	require.NoError(t, f.svc.SetRating(ctx, user.ID, "basics", cards[0].ID, ptr("up")))
	require.NoError(t, f.svc.SetRating(ctx, user.ID, "basics", cards[0].ID, ptr("down")))

	ratings, err := f.store.UserRatings(ctx, user.ID, deck.ID)
	require.NoError(t, err)
	assert.Equal(t, map[int64]domain.Rating{cards[0].ID: domain.RatingDown}, ratings)

	assert.ErrorIs(t, f.svc.SetRating(ctx, user.ID, "basics", cards[0].ID, ptr("meh")), domain.ErrValidation)
	assert.ErrorIs(t, f.svc.SetRating(ctx, user.ID, "basics", other[0].ID, nil), domain.ErrNotFound)

	require.NoError(t, f.svc.SetRating(ctx, user.ID, "basics", cards[0].ID, nil))
	ratings, err = f.store.UserRatings(ctx, user.ID, deck.ID)
	require.NoError(t, err)
	assert.Empty(t, ratings)
}

func TestReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, intro := testutil.SeedDeck(t, f.store, "intro", "02-Intro",
		[2]string{"q1", "a1"}, [2]string{"q2", "a2"}, [2]string{"q3", "a3"})
	testutil.SeedDeck(t, f.store, "basics", "1-Basics", [2]string{"b1", "b1"})
	testutil.SeedDeck(t, f.store, "empty", "Appendix")
	user := testutil.SeedUser(t, f.store, "ann@example.com", false)
	other := testutil.SeedUser(t, f.store, "bob@example.com", false)

	require.NoError(t, f.svc.RecordProgress(ctx, user.ID, "intro", intro[0].ID, "Again"))
	f.clock.Advance(time.Minute)
	require.NoError(t, f.svc.RecordProgress(ctx, user.ID, "intro", intro[0].ID, "Good"))
	require.NoError(t, f.svc.RecordProgress(ctx, user.ID, "intro", intro[1].ID, "Again"))
	require.NoError(t, f.svc.RecordProgress(ctx, other.ID, "intro", intro[2].ID, "Easy"))

	reports, err := f.svc.Report(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, reports, 3)
	assert.Equal(t, []string{"1-Basics", "02-Intro", "Appendix"},
		[]string{reports[0].Title, reports[1].Title, reports[2].Title})

	r := reports[1]
	assert.Equal(t, 3, r.TotalCards)
	assert.Equal(t, 2, r.Answered)
	assert.Equal(t, 1, r.Unanswered)
	assert.Equal(t, map[domain.Category]int{
		domain.CategoryAgain: 1,
		domain.CategoryHard:  0,
		domain.CategoryGood:  1,
		domain.CategoryEasy:  0,
	}, r.Categories)
	assert.Equal(t, 1, r.Due, "only the card answered Again is due right away")

	for _, rep := range reports {
		sum := 0
		for _, n := range rep.Categories {
			sum += n
		}
		assert.Equal(t, rep.TotalCards, rep.Answered+rep.Unanswered)
		assert.Equal(t, rep.Answered, sum)
	}

	f.clock.Advance(30 * 24 * time.Hour)
	reports, err = f.svc.Report(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reports[1].Due)
}

func TestAdminUserOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	deck, cards := testutil.SeedDeck(t, f.store, "basics", "Basics", [2]string{"q1", "a1"}, [2]string{"q2", "a2"})
	admin := testutil.SeedUser(t, f.store, "root@example.com", true)
	user := testutil.SeedUser(t, f.store, "ann@example.com", false)

	require.NoError(t, f.svc.RecordProgress(ctx, user.ID, "basics", cards[0].ID, "Easy"))
	require.NoError(t, f.svc.SetRating(ctx, user.ID, "basics", cards[0].ID, ptr("up")))
	require.NoError(t, f.svc.SetRating(ctx, admin.ID, "basics", cards[0].ID, ptr("up")))

	summaries, err := f.svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, user.ID, summaries[1].User.ID)
	assert.Equal(t, 2, summaries[1].TotalCards)
	assert.Equal(t, 1, summaries[1].Answered)
	assert.Equal(t, 1, summaries[1].Unanswered)
	assert.Equal(t, 1, summaries[1].Categories[domain.CategoryEasy])
	assert.Equal(t, 0, summaries[0].Answered)

	n, err := f.svc.ResetCardRatings(ctx, cards[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	_, err = f.svc.ResetCardRatings(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, f.svc.ResetUser(ctx, user.ID))
	progress, err := f.store.CurrentProgress(ctx, user.ID, deck.ID)
	require.NoError(t, err)
	assert.Empty(t, progress)
	assert.ErrorIs(t, f.svc.ResetUser(ctx, 999), domain.ErrNotFound)

	assert.ErrorIs(t, f.svc.DeleteUser(ctx, admin.ID, admin.ID), domain.ErrConflict)
	require.NoError(t, f.svc.DeleteUser(ctx, admin.ID, user.ID))
	_, err = f.store.GetUserByID(ctx, user.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, f.svc.DeleteUser(ctx, admin.ID, user.ID), domain.ErrNotFound)
}

func TestDeleteDeck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	imageName, err := f.media.SaveDataURI("data:image/png;base64," + pixelPNG)
	require.NoError(t, err)

	deck, cards := testutil.SeedDeck(t, f.store, "basics", "Basics", [2]string{"q1", "a1"})
	cards[0].QuestionImage = imageName
	require.NoError(t, f.store.UpdateCard(ctx, cards[0]))
	csvPath := filepath.Join(f.questionsDir, deck.Filename)
	require.NoError(t, os.WriteFile(csvPath, []byte("Question;Answer\nq1;a1\n"), 0o644))
	ageMedia(t, f, imageName)

	require.NoError(t, f.svc.DeleteDeck(ctx, "basics"))

	_, err = f.store.GetDeck(ctx, deck.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoFileExists(t, csvPath)
	assert.NoFileExists(t, csvPath+".deleted")
	assert.False(t, f.media.Exists(imageName))

	assert.ErrorIs(t, f.svc.DeleteDeck(ctx, "basics"), domain.ErrNotFound)
}

// readDeckFile parses the CSV written for a deck.
func readDeckFile(t *testing.T, path string) []parser.Row {
	t.Helper()
	rows, err := parser.ParseFile(path)
	require.NoError(t, err)
	return rows
}
