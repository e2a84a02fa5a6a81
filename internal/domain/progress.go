package domain

import "time"

// Category is the recall outcome recorded for a card review.
type Category string

const (
	CategoryAgain Category = "Again"
	CategoryHard  Category = "Hard"
	CategoryGood  Category = "Good"
	CategoryEasy  Category = "Easy"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryAgain, CategoryHard, CategoryGood, CategoryEasy}

// ParseCategory returns the category named by s.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", NewValidationError("category", "must be one of Again, Hard, Good, Easy")
}

// ProgressEvent is one immutable entry of a user's review history.
type ProgressEvent struct {
	ID        int64
	UserID    int64
	CardID    int64
	DeckID    int64
	Category  Category
	CreatedAt time.Time
}

// Rating is a user's judgment of a card's quality.
type Rating string

const (
	RatingUp       Rating = "up"
	RatingDown     Rating = "down"
	RatingMoreInfo Rating = "more_info"
	RatingIgnore   Rating = "ignore"
)

// RatingValues lists every accepted rating.
var RatingValues = []Rating{RatingUp, RatingDown, RatingMoreInfo, RatingIgnore}

// ParseRating returns the rating named by s.
func ParseRating(s string) (Rating, error) {
	for _, r := range RatingValues {
		if string(r) == s {
			return r, nil
		}
	}
	return "", NewValidationError("rating", "must be one of up, down, more_info, ignore")
}

// RatingCount aggregates thumbs up and down for one card across all users.
type RatingCount struct {
	CardID     int64 `db:"card_id" json:"-"`
	ThumbsUp   int   `db:"thumbs_up" json:"thumbsUp"`
	ThumbsDown int   `db:"thumbs_down" json:"thumbsDown"`
}

// DeckReport is the per-deck progress rollup for one user.
type DeckReport struct {
	DeckID     int64
	Slug       string
	Title      string
	TotalCards int
	Answered   int
	Unanswered int
	Due        int
	Categories map[Category]int
}

// UserSummary is a user together with their progress rollup across all decks.
type UserSummary struct {
	User       User
	TotalCards int
	Answered   int
	Unanswered int
	Categories map[Category]int
}
