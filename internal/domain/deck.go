package domain

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Deck is a named collection of cards imported from one source file.
type Deck struct {
	ID        int64  `db:"id"`
	Slug      string `db:"slug"`
	Title     string `db:"title"`
	Filename  string `db:"filename"`
	CardCount int    `db:"card_count"`
}

// Card is one question/answer pair. Image fields hold media file names,
// empty when the card has no image.
type Card struct {
	ID            int64  `db:"id"`
	DeckID        int64  `db:"deck_id"`
	Question      string `db:"question"`
	Answer        string `db:"answer"`
	QuestionImage string `db:"question_image"`
	AnswerImage   string `db:"answer_image"`
}

var (
	deckNumberRe = regexp.MustCompile(`^0?(\d+)`)
	deckSuffixRe = regexp.MustCompile(`^0?\d+([A-Za-z])`)
)

type deckOrderKey struct {
	numbered bool
	number   int
	suffix   string
}

func orderKey(title string) deckOrderKey {
	m := deckNumberRe.FindStringSubmatch(title)
	if m == nil {
		return deckOrderKey{}
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return deckOrderKey{}
	}
	k := deckOrderKey{numbered: true, number: n}
	if s := deckSuffixRe.FindStringSubmatch(title); s != nil {
		k.suffix = strings.ToUpper(s[1])
	}
	return k
}

// DeckTitleLess orders deck titles by their leading number, then by an
// optional letter right after it ("14" before "14A" before "15").
// Titles without a leading number sort last.
func DeckTitleLess(a, b string) bool {
	ka, kb := orderKey(a), orderKey(b)
	if ka.numbered != kb.numbered {
		return ka.numbered
	}
	if ka.number != kb.number {
		return ka.number < kb.number
	}
	if ka.suffix != kb.suffix {
		return ka.suffix < kb.suffix
	}
	return a < b
}

// SortDecks sorts decks in place using DeckTitleLess.
func SortDecks(decks []Deck) {
	sort.SliceStable(decks, func(i, j int) bool {
		return DeckTitleLess(decks[i].Title, decks[j].Title)
	})
}
