package fsrs

import (
	"math"
	"testing"
	"time"
)

func TestCalculateNewStability(t *testing.T) {
	params := DefaultParams()
	stability := 10.0
	difficulty := 5.0
	
	// S' = 10 * (1 + 0.2 * 5^(-0.5) * 10^0.1 * (e^(4 * (1-0.9)) - 1))
	// S' = 10 * (1 + 0.2 * 0.447 * 1.259 * (e^0.4 - 1))
	// S' = 10 * (1 + 0.112 * (1.4918 - 1))
	// S' = 10 * (1 + 0.112 * 0.4918)
	// S' = 10 * (1 + 0.055)
	// S' = 10 * 1.055 = 10.55
	expected := 10.55
	
	newStability := params.calculateNewStability(stability, difficulty)
	
	if math.Abs(newStability-expected) > 0.01 {
		t.Errorf("Expected new stability to be around %.2f, but got %.2f", expected, newStability)
	}
}

func TestNextState(t *testing.T) {
	params := DefaultParams()
	reviewedAt := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	initialState := CardState{
		Stability:  10,
		Difficulty: 5,
		LastReview: reviewedAt.Add(-10 * 24 * time.Hour),
	}

	t.Run("Review with Again", func(t *testing.T) {
		newState := params.NextState(initialState, Again, reviewedAt)
		if newState.Stability != 1 {
			t.Errorf("Expected stability to be reset to 1, but got %.2f", newState.Stability)
		}
		if newState.Difficulty <= initialState.Difficulty {
			t.Errorf("Expected difficulty to increase, but it did not. Got %.2f", newState.Difficulty)
		}
	})

	t.Run("Review with Good", func(t *testing.T) {
		newState := params.NextState(initialState, Good, reviewedAt)
		if newState.Stability <= initialState.Stability {
			t.Errorf("Expected stability to increase, but it did not. Got %.2f", newState.Stability)
		}
		if newState.Difficulty != initialState.Difficulty {
			t.Errorf("Expected difficulty to remain the same for 'Good', but it changed to %.2f", newState.Difficulty)
		}
	})

	t.Run("Review with Hard", func(t *testing.T) {
		newState := params.NextState(initialState, Hard, reviewedAt)
		if newState.Stability <= initialState.Stability {
			t.Errorf("Expected stability to increase, but it did not. Got %.2f", newState.Stability)
		}
		if newState.Difficulty <= initialState.Difficulty {
			t.Errorf("Expected difficulty to increase for 'Hard', but it did not. Got %.2f", newState.Difficulty)
		}
	})
}

func TestNextStateFirstReview(t *testing.T) {
	params := DefaultParams()
	at := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	again := params.NextState(CardState{}, Again, at)
	easy := params.NextState(CardState{}, Easy, at)

	if !again.LastReview.Equal(at) {
		t.Errorf("Expected last review to be %v, but got %v", at, again.LastReview)
	}
	if easy.Stability <= again.Stability {
		t.Errorf("Expected 'Easy' to start with more stability than 'Again', but got %.2f <= %.2f", easy.Stability, again.Stability)
	}
	if again.Difficulty != params.InitialDifficulty {
		t.Errorf("Expected initial difficulty %.2f, but got %.2f", params.InitialDifficulty, again.Difficulty)
	}
}

func TestNextDueDate(t *testing.T) {
	from := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	stability := 15.5 // Should round to 16 days

	expectedDate := from.Add(16 * 24 * time.Hour)
	actualDate := NextDueDate(from, stability)

	if !actualDate.Equal(expectedDate) {
		t.Errorf("Expected due date to be %v, but got %v", expectedDate, actualDate)
	}
}

func TestReplay(t *testing.T) {
	params := DefaultParams()
	day := func(n int) time.Time {
		return time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(n) * 24 * time.Hour)
	}

	t.Run("No reviews", func(t *testing.T) {
		state, due := params.Replay(nil)
		if state.Reviewed() || !due.IsZero() {
			t.Errorf("Expected an unreviewed card with no due date, but got %+v, %v", state, due)
		}
	})

	t.Run("Again is due immediately", func(t *testing.T) {
		_, due := params.Replay([]Review{{Rating: Again, At: day(0)}})
		if due.After(day(0)) {
			t.Errorf("Expected the card to be due on %v, but got %v", day(0), due)
		}
	})

	t.Run("Successful reviews push the due date out", func(t *testing.T) {
		_, first := params.Replay([]Review{{Rating: Good, At: day(0)}})
		_, second := params.Replay([]Review{{Rating: Good, At: day(0)}, {Rating: Good, At: day(2)}})
		if !second.After(first) {
			t.Errorf("Expected the second review to move the due date past %v, but got %v", first, second)
		}
	})

	t.Run("Forgetting resets the schedule", func(t *testing.T) {
		_, due := params.Replay([]Review{{Rating: Easy, At: day(0)}, {Rating: Again, At: day(6)}})
		if !due.Equal(day(7)) {
			t.Errorf("Expected the card to be due on %v, but got %v", day(7), due)
		}
	})
}

func TestParseRating(t *testing.T) {
	if r, ok := ParseRating("Hard"); !ok || r != Hard {
		t.Errorf("Expected 'Hard' to parse to %d, but got %d", Hard, r)
	}
	if _, ok := ParseRating("hard"); ok {
		t.Error("Expected lowercase labels to be rejected")
	}
}
