package web

import (
	"encoding/json"
	"net/http"

	"github.com/conorfennell/flashdeck/internal/domain"
	"github.com/conorfennell/flashdeck/internal/study"
)

type deckSummary struct {
	ID        int64  `json:"id"`
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	CardCount int    `json:"cardCount"`
}

type cardResponse struct {
	ID            int64  `json:"id"`
	Question      string `json:"question"`
	Answer        string `json:"answer"`
	QuestionImage string `json:"questionImage"`
	AnswerImage   string `json:"answerImage"`
}

type deckResponse struct {
	ID           int64                     `json:"id"`
	Slug         string                    `json:"slug"`
	Title        string                    `json:"title"`
	Filename     string                    `json:"filename"`
	Cards        []cardResponse            `json:"cards"`
	Progress     map[int64]domain.Category `json:"progress"`
	Ratings      map[int64]domain.Rating   `json:"ratings"`
	Categories   []domain.Category         `json:"categories"`
	RatingValues []domain.Rating           `json:"ratingValues"`
	// RatingCounts is set for administrators only; an empty map is still encoded.
	RatingCounts any `json:"ratingCounts,omitempty"`
}

type deckReport struct {
	DeckID     int64                   `json:"deckId"`
	Slug       string                  `json:"slug"`
	Title      string                  `json:"title"`
	TotalCards int                     `json:"totalCards"`
	Answered   int                     `json:"answered"`
	Unanswered int                     `json:"unanswered"`
	Due        int                     `json:"due"`
	Categories map[domain.Category]int `json:"categories"`
}

type progressRequest struct {
	CardID   int64  `json:"cardId"`
	Category string `json:"category"`
}

// ratingRequest keeps the raw rating so an explicit null, which clears the
// rating, can be told apart from a missing field.
type ratingRequest struct {
	CardID int64           `json:"cardId"`
	Rating json.RawMessage `json:"rating"`
}

func (req ratingRequest) value() (*string, error) {
	if len(req.Rating) == 0 {
		return nil, domain.NewValidationError("rating", "is required, null clears it")
	}
	if string(req.Rating) == "null" {
		return nil, nil
	}
	var v string
	if err := json.Unmarshal(req.Rating, &v); err != nil {
		return nil, domain.NewValidationError("rating", "must be a string or null")
	}
	return &v, nil
}

func (s *Server) toCardResponses(cards []domain.Card) []cardResponse {
	out := make([]cardResponse, 0, len(cards))
	for _, c := range cards {
		out = append(out, cardResponse{
			ID:            c.ID,
			Question:      c.Question,
			Answer:        c.Answer,
			QuestionImage: s.media.URL(c.QuestionImage),
			AnswerImage:   s.media.URL(c.AnswerImage),
		})
	}
	return out
}

func (s *Server) toDeckResponse(view *study.DeckView) deckResponse {
	resp := deckResponse{
		ID:           view.Deck.ID,
		Slug:         view.Deck.Slug,
		Title:        view.Deck.Title,
		Filename:     view.Deck.Filename,
		Cards:        s.toCardResponses(view.Cards),
		Progress:     view.Progress,
		Ratings:      view.Ratings,
		Categories:   domain.Categories,
		RatingValues: domain.RatingValues,
	}
	if view.RatingCounts != nil {
		resp.RatingCounts = view.RatingCounts
	}
	return resp
}

// handleListDecks handles GET /api/decks.
func (s *Server) handleListDecks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		decks, err := s.study.ListDecks(r.Context())
		if err != nil {
			s.handleError(w, r, err)
			return
		}

		out := make([]deckSummary, 0, len(decks))
		for _, d := range decks {
			out = append(out, deckSummary{ID: d.ID, Slug: d.Slug, Title: d.Title, CardCount: d.CardCount})
		}
		writeJSON(w, http.StatusOK, map[string][]deckSummary{"decks": out})
	}
}

// handleGetDeck handles GET /api/decks/{deck}.
func (s *Server) handleGetDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := UserFromCtx(r.Context())
		view, err := s.study.GetDeckView(r.Context(), user, r.PathValue("deck"))
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s.toDeckResponse(view))
	}
}

// handleRecordProgress handles POST /api/decks/{deck}/progress.
func (s *Server) handleRecordProgress() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req progressRequest
		if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
			s.handleError(w, r, err)
			return
		}

		user, _ := UserFromCtx(r.Context())
		if err := s.study.RecordProgress(r.Context(), user.ID, r.PathValue("deck"), req.CardID, req.Category); err != nil {
			s.handleError(w, r, err)
			return
		}
		writeOK(w)
	}
}

// handleSetRating handles POST /api/decks/{deck}/rating.
func (s *Server) handleSetRating() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ratingRequest
		if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
			s.handleError(w, r, err)
			return
		}
		rating, err := req.value()
		if err != nil {
			s.handleError(w, r, err)
			return
		}

		user, _ := UserFromCtx(r.Context())
		if err := s.study.SetRating(r.Context(), user.ID, r.PathValue("deck"), req.CardID, rating); err != nil {
			s.handleError(w, r, err)
			return
		}
		writeOK(w)
	}
}

// handleReport handles GET /api/reports/progress.
func (s *Server) handleReport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := UserFromCtx(r.Context())
		reports, err := s.study.Report(r.Context(), user.ID)
		if err != nil {
			s.handleError(w, r, err)
			return
		}

		out := make([]deckReport, 0, len(reports))
		for _, rep := range reports {
			out = append(out, deckReport{
				DeckID:     rep.DeckID,
				Slug:       rep.Slug,
				Title:      rep.Title,
				TotalCards: rep.TotalCards,
				Answered:   rep.Answered,
				Unanswered: rep.Unanswered,
				Due:        rep.Due,
				Categories: rep.Categories,
			})
		}
		writeJSON(w, http.StatusOK, map[string][]deckReport{"decks": out})
	}
}
