package study_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/flashdeck/internal/domain"
	"github.com/conorfennell/flashdeck/internal/parser"
	"github.com/conorfennell/flashdeck/internal/study"
	"github.com/conorfennell/flashdeck/internal/testutil"
)

func TestEditDeckDuplicatesAddOnlyNewCards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	deck, cards := testutil.SeedDeck(t, f.store, "basics", "Basics",
		[2]string{"q1", "a1"}, [2]string{"q2", "a2"}, [2]string{"q3", "a3"})
	user := testutil.SeedUser(t, f.store, "ann@example.com", false)

	require.NoError(t, f.svc.RecordProgress(ctx, user.ID, "basics", cards[0].ID, "Good"))
	require.NoError(t, f.svc.RecordProgress(ctx, user.ID, "basics", cards[2].ID, "Hard"))
	require.NoError(t, f.svc.SetRating(ctx, user.ID, "basics", cards[2].ID, ptr("down")))

	res, err := f.svc.EditDeck(ctx, "basics", study.EditInput{
		Title: ptr("  Basics, revised "),
		Cards: []study.CardInput{
			{ID: &cards[0].ID, Question: "q1", Answer: "a1"},
			{ID: &cards[1].ID, Question: "q2", Answer: "a2 (edited)"},
			{Question: "q1", Answer: "a1"},
			{Question: " q1 ", Answer: "a1\r\n"},
			{Question: "q4", Answer: "a4"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Basics, revised", res.Deck.Title)
	assert.Equal(t, 3, res.Deck.CardCount)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 2, res.Updated)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, 2, res.Dropped)

	after, err := f.store.ListCards(ctx, deck.ID)
	require.NoError(t, err)
	require.Len(t, after, 3)
	assert.Equal(t, cards[0].ID, after[0].ID)
	assert.Equal(t, "a2 (edited)", after[1].Answer)
	assert.Equal(t, "q4", after[2].Question)

	// Progress of the kept card survives; history of the removed card is gone.
	progress, err := f.store.CurrentProgress(ctx, user.ID, deck.ID)
	require.NoError(t, err)
	assert.Equal(t, map[int64]domain.Category{cards[0].ID: domain.CategoryGood}, progress)
	ratings, err := f.store.UserRatings(ctx, user.ID, deck.ID)
	require.NoError(t, err)
	assert.Empty(t, ratings)

	rows := readDeckFile(t, filepath.Join(f.questionsDir, "basics.csv"))
	assert.Equal(t, []parser.Row{
		{Question: "q1", Answer: "a1"},
		{Question: "q2", Answer: "a2 (edited)"},
		{Question: "q4", Answer: "a4"},
	}, rows)
}

func TestEditDeckValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.SeedDeck(t, f.store, "basics", "Basics", [2]string{"q1", "a1"})

	tests := []struct {
		name  string
		input study.EditInput
		field string
	}{
		{"missing cards", study.EditInput{}, "cards"},
		{"blank title", study.EditInput{Title: ptr("  "), Cards: []study.CardInput{}}, "title"},
		{"missing question", study.EditInput{Cards: []study.CardInput{{Question: "q", Answer: "a"}, {Answer: "a"}}}, "cards[1].question"},
		{"missing answer", study.EditInput{Cards: []study.CardInput{{Question: "q", Answer: " "}}}, "cards[0].answer"},
		{"bad image", study.EditInput{Cards: []study.CardInput{{Question: "q", Answer: "a", AnswerImage: "../etc/passwd"}}}, "cards[0].answerImage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.EditDeck(ctx, "basics", tt.input)
			var ve *domain.ValidationError
			require.True(t, errors.As(err, &ve), "expected validation error, got %v", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	cards, err := f.store.ListCards(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, cards, 1, "rejected edits change nothing")
	assert.NoFileExists(t, filepath.Join(f.questionsDir, "basics.csv"))
}

func TestEditDeckImagesAndMediaCleanup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	deck, cards := testutil.SeedDeck(t, f.store, "basics", "Basics", [2]string{"q1", "a1"}, [2]string{"q2", "a2"})

	first, err := f.media.SaveDataURI("data:image/png;base64," + pixelPNG)
	require.NoError(t, err)
	second, err := f.media.SaveDataURI("data:image/png;base64," + pixelPNG)
	require.NoError(t, err)
	cards[0].QuestionImage = first
	cards[1].AnswerImage = second
	require.NoError(t, f.store.UpdateCard(ctx, cards[0]))
	require.NoError(t, f.store.UpdateCard(ctx, cards[1]))
	ageMedia(t, f, first, second)

	_, err = f.svc.EditDeck(ctx, "basics", study.EditInput{Cards: []study.CardInput{
		{ID: &cards[0].ID, Question: "q1", Answer: "a1", RemoveQuestionImage: true,
			AnswerImage: "data:image/png;base64," + pixelPNG},
		{ID: &cards[1].ID, Question: "q2", Answer: "a2"},
		{Question: "q3", Answer: "a3", QuestionImage: "/media/" + second},
	}})
	require.NoError(t, err)

	after, err := f.store.ListCards(ctx, deck.ID)
	require.NoError(t, err)
	require.Len(t, after, 3)
	assert.Empty(t, after[0].QuestionImage)
	assert.NotEmpty(t, after[0].AnswerImage)
	assert.Equal(t, second, after[1].AnswerImage, "untouched image is kept")
	assert.Equal(t, second, after[2].QuestionImage)

	assert.False(t, f.media.Exists(first), "removed image is deleted")
	assert.True(t, f.media.Exists(second))
	assert.True(t, f.media.Exists(after[0].AnswerImage))

	rows := readDeckFile(t, filepath.Join(f.questionsDir, "basics.csv"))
	require.Len(t, rows, 3)
	assert.Equal(t, "/media/"+after[0].AnswerImage, rows[0].AnswerImage)
	assert.Equal(t, "/media/"+second, rows[2].QuestionImage)
}

func TestEditDeckKeepsUncommittedMedia(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, cards := testutil.SeedDeck(t, f.store, "one", "One", [2]string{"q1", "a1"})
	testutil.SeedDeck(t, f.store, "two", "Two", [2]string{"q2", "a2"})

	stale, err := f.media.SaveDataURI("data:image/png;base64," + pixelPNG)
	require.NoError(t, err)
	ageMedia(t, f, stale)

	// An edit of deck one has saved its upload but not committed yet.
	pending, err := f.media.SaveDataURI("data:image/png;base64," + pixelPNG)
	require.NoError(t, err)

	_, err = f.svc.EditDeck(ctx, "two", study.EditInput{Cards: []study.CardInput{
		{Question: "q2", Answer: "a2"},
	}})
	require.NoError(t, err)
	assert.True(t, f.media.Exists(pending), "upload of an uncommitted edit survives cleanup")
	assert.False(t, f.media.Exists(stale))

	cards[0].QuestionImage = pending
	require.NoError(t, f.store.UpdateCard(ctx, cards[0]))
	assert.True(t, f.media.Exists(pending))
}

func TestEditDeckFailureRemovesItsUploads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.SeedDeck(t, f.store, "basics", "Basics", [2]string{"q1", "a1"})

	_, err := f.svc.EditDeck(ctx, "basics", study.EditInput{Cards: []study.CardInput{
		{Question: "q1", Answer: "a1", AnswerImage: "data:image/png;base64," + pixelPNG},
		{Question: "q2", Answer: "a2", QuestionImage: "/media/missing.png"},
	}})
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve), "expected validation error, got %v", err)
	assert.Equal(t, "cards[1].questionImage", ve.Field)

	entries, err := os.ReadDir(f.media.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "upload of the rejected edit is removed")
}

func TestEditDeckConflictLeavesFileUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, cards := testutil.SeedDeck(t, f.store, "basics", "Basics", [2]string{"q1", "a1"}, [2]string{"q2", "a2"})
	csvPath := filepath.Join(f.questionsDir, "basics.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("original"), 0o644))

	// Swapping the text of two cards collides on the unique key.
	_, err := f.svc.EditDeck(ctx, "basics", study.EditInput{Cards: []study.CardInput{
		{ID: &cards[0].ID, Question: "q2", Answer: "a2"},
		{ID: &cards[1].ID, Question: "q1", Answer: "a1"},
	}})
	assert.ErrorIs(t, err, domain.ErrConflict)

	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))

	entries, err := os.ReadDir(f.questionsDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "staged file is discarded")
}

func TestEditDeckRepeatedExistingCardAddsOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	deck, cards := testutil.SeedDeck(t, f.store, "basics", "Basics", [2]string{"q1", "a1"}, [2]string{"q2", "a2"})
	user := testutil.SeedUser(t, f.store, "ann@example.com", false)
	require.NoError(t, f.svc.RecordProgress(ctx, user.ID, "basics", cards[1].ID, "Easy"))

	items := []study.CardInput{
		{ID: &cards[0].ID, Question: "q1", Answer: "a1"},
		{ID: &cards[1].ID, Question: "q2", Answer: "a2"},
		{Question: "q2", Answer: "a2"},
		{Question: "q2", Answer: "a2"},
		{Question: "brand new", Answer: "card"},
	}
	res, err := f.svc.EditDeck(ctx, "basics", study.EditInput{Cards: items})
	require.NoError(t, err)
	assert.Equal(t, deck.CardCount+1, res.Deck.CardCount)

	progress, err := f.store.CurrentProgress(ctx, user.ID, deck.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryEasy, progress[cards[1].ID])
}
