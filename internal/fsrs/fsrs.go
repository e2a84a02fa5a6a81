// Package fsrs schedules card reviews from a history of recall outcomes.
package fsrs

import (
	"math"
	"time"
)

// Rating is the user's response to a card review.
type Rating int

const (
	Again Rating = 1
	Hard  Rating = 2
	Good  Rating = 3
	Easy  Rating = 4
)

// ParseRating maps a review category label to its rating.
func ParseRating(label string) (Rating, bool) {
	switch label {
	case "Again":
		return Again, true
	case "Hard":
		return Hard, true
	case "Good":
		return Good, true
	case "Easy":
		return Easy, true
	}
	return 0, false
}

// Params holds the parameters for the FSRS algorithm.
type Params struct {
	A                 float64    // scales the overall memory increase
	B                 float64    // difficulty exponent
	C                 float64    // stability exponent
	D                 float64    // retention effect scaler
	DesiredRetention  float64    // desired retention rate (e.g., 0.9 for 90%)
	InitialStability  [4]float64 // stability in days after a first review, by rating
	InitialDifficulty float64
}

// DefaultParams provides a set of sensible default parameters to start with.
func DefaultParams() *Params {
	return &Params{
		A:                 0.2,
		B:                 0.5,
		C:                 0.1,
		D:                 4.0,
		DesiredRetention:  0.9,
		InitialStability:  [4]float64{0.4, 0.6, 2.4, 5.8},
		InitialDifficulty: 5,
	}
}

// CardState holds the memory state of a card.
type CardState struct {
	Stability  float64
	Difficulty float64
	LastReview time.Time
}

// Reviewed reports whether the card has been reviewed at least once.
func (s CardState) Reviewed() bool {
	return !s.LastReview.IsZero()
}

// Review is one recorded answer to a card.
type Review struct {
	Rating Rating
	At     time.Time
}

// NextState calculates the next stability and difficulty after a review at the given time.
func (p *Params) NextState(currentState CardState, rating Rating, at time.Time) CardState {
	if !currentState.Reviewed() {
		return CardState{
			Stability:  p.InitialStability[clampRating(rating)-1],
			Difficulty: p.InitialDifficulty,
			LastReview: at,
		}
	}

	if rating == Again {
		// If the user forgot, reset stability. Difficulty increases.
		return CardState{
			Stability:  1,
			Difficulty: math.Min(10, currentState.Difficulty+0.5),
			LastReview: at,
		}
	}

	newStability := p.calculateNewStability(currentState.Stability, currentState.Difficulty)
	newDifficulty := currentState.Difficulty
	switch rating {
	case Hard:
		newDifficulty = math.Min(10, newDifficulty+0.1)
	case Easy:
		newDifficulty = math.Max(1, newDifficulty-0.1)
	}

	return CardState{
		Stability:  newStability,
		Difficulty: newDifficulty,
		LastReview: at,
	}
}

// calculateNewStability applies the core FSRS formula for a successful review.
func (p *Params) calculateNewStability(stability, difficulty float64) float64 {
	// Formula: S' = S * (1 + a * D^(-b) * S^c * (e^(d * (1-R)) - 1))
	if stability < 1 {
		stability = 1 // Ensure stability is at least 1 to avoid issues with pow
	}
	if difficulty < 1 {
		difficulty = 1
	}

	factor := p.A * math.Pow(difficulty, -p.B) * math.Pow(stability, p.C)
	exponent := p.D * (1 - p.DesiredRetention)
	multiplier := math.Exp(exponent) - 1

	return stability * (1 + factor*multiplier)
}

// Replay folds reviews, oldest first, into the card's final state and the
// time its next review is due. A card without reviews has a zero due time.
func (p *Params) Replay(reviews []Review) (CardState, time.Time) {
	var state CardState
	for _, r := range reviews {
		state = p.NextState(state, r.Rating, r.At)
	}
	if !state.Reviewed() {
		return state, time.Time{}
	}
	return state, NextDueDate(state.LastReview, state.Stability)
}

// NextDueDate schedules the next review 'stability' days after from.
func NextDueDate(from time.Time, stability float64) time.Time {
	daysToAdd := time.Duration(math.Round(stability))
	return from.Add(daysToAdd * 24 * time.Hour)
}

func clampRating(r Rating) Rating {
	if r < Again {
		return Again
	}
	if r > Easy {
		return Easy
	}
	return r
}
