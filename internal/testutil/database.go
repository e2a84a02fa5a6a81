package testutil

import (
	"context"
	"testing"

	"github.com/conorfennell/flashdeck/internal/domain"
	"github.com/conorfennell/flashdeck/internal/storage"
)

// TestOwner is the administrator that legacy rows are assigned to in tests.
var TestOwner = storage.Owner{Email: "admin@example.com", Name: "Admin"}

// NewTestStore creates a new in-memory SQLite store with all migrations applied.
// The store is automatically closed when the test completes.
func NewTestStore(t *testing.T) *storage.Store {
	t.Helper()

	store, err := storage.Open(storage.MemoryPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := store.Migrate(context.Background(), TestOwner); err != nil {
		store.Close()
		t.Fatalf("failed to migrate database: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeedDeck inserts a deck with one card per question/answer pair and
// returns the deck with the inserted cards.
func SeedDeck(t *testing.T, store *storage.Store, slug, title string, qa ...[2]string) (domain.Deck, []domain.Card) {
	t.Helper()
	ctx := context.Background()

	deckID, err := store.InsertDeck(ctx, slug, title, slug+".csv")
	if err != nil {
		t.Fatalf("failed to insert deck %s: %v", slug, err)
	}
	for _, pair := range qa {
		if _, _, err := store.InsertCard(ctx, domain.Card{DeckID: deckID, Question: pair[0], Answer: pair[1]}); err != nil {
			t.Fatalf("failed to insert card %q: %v", pair[0], err)
		}
	}

	deck, err := store.GetDeck(ctx, deckID)
	if err != nil {
		t.Fatalf("failed to load deck %s: %v", slug, err)
	}
	cards, err := store.ListCards(ctx, deckID)
	if err != nil {
		t.Fatalf("failed to load cards of %s: %v", slug, err)
	}
	return deck, cards
}

// SeedUser inserts a learner, or an administrator when admin is set.
func SeedUser(t *testing.T, store *storage.Store, email string, admin bool) domain.User {
	t.Helper()
	ctx := context.Background()

	id, err := store.CreateUser(ctx, domain.User{Email: email, Name: email, IsAdmin: admin})
	if err != nil {
		t.Fatalf("failed to insert user %s: %v", email, err)
	}
	user, err := store.GetUserByID(ctx, id)
	if err != nil {
		t.Fatalf("failed to load user %s: %v", email, err)
	}
	return user
}
