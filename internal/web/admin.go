package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/conorfennell/flashdeck/internal/domain"
	"github.com/conorfennell/flashdeck/internal/study"
)

type editResponse struct {
	deckResponse
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Deleted  int `json:"deleted"`
	Dropped  int `json:"dropped"`
}

type userSummary struct {
	ID         int64                   `json:"id"`
	Email      string                  `json:"email"`
	Name       string                  `json:"name"`
	IsAdmin    bool                    `json:"isAdmin"`
	CreatedAt  time.Time               `json:"createdAt"`
	TotalCards int                     `json:"totalCards"`
	Answered   int                     `json:"answered"`
	Unanswered int                     `json:"unanswered"`
	Categories map[domain.Category]int `json:"categories"`
}

// handleEditDeck handles POST /api/admin/decks/{deck} and answers with the
// deck as it is after the edit.
func (s *Server) handleEditDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input study.EditInput
		if err := decodeJSON(w, r, maxEditBodyBytes, &input); err != nil {
			s.handleError(w, r, err)
			return
		}

		result, err := s.study.EditDeck(r.Context(), r.PathValue("deck"), input)
		if err != nil {
			s.handleError(w, r, err)
			return
		}

		user, _ := UserFromCtx(r.Context())
		view, err := s.study.GetDeckView(r.Context(), user, strconv.FormatInt(result.Deck.ID, 10))
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, editResponse{
			deckResponse: s.toDeckResponse(view),
			Inserted:     result.Inserted,
			Updated:      result.Updated,
			Deleted:      result.Deleted,
			Dropped:      result.Dropped,
		})
	}
}

// handleDeleteDeck handles DELETE /api/admin/decks/{deck}.
func (s *Server) handleDeleteDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.study.DeleteDeck(r.Context(), r.PathValue("deck")); err != nil {
			s.handleError(w, r, err)
			return
		}
		writeOK(w)
	}
}

// handleListUsers handles GET /api/admin/users.
func (s *Server) handleListUsers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summaries, err := s.study.ListUsers(r.Context())
		if err != nil {
			s.handleError(w, r, err)
			return
		}

		out := make([]userSummary, 0, len(summaries))
		for _, sum := range summaries {
			out = append(out, userSummary{
				ID:         sum.User.ID,
				Email:      sum.User.Email,
				Name:       sum.User.Name,
				IsAdmin:    sum.User.IsAdmin,
				CreatedAt:  sum.User.CreatedAt,
				TotalCards: sum.TotalCards,
				Answered:   sum.Answered,
				Unanswered: sum.Unanswered,
				Categories: sum.Categories,
			})
		}
		writeJSON(w, http.StatusOK, map[string][]userSummary{"users": out})
	}
}

// handleResetUser handles POST /api/admin/users/{id}/reset.
func (s *Server) handleResetUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		if err := s.study.ResetUser(r.Context(), id); err != nil {
			s.handleError(w, r, err)
			return
		}
		writeOK(w)
	}
}

// handleDeleteUser handles DELETE /api/admin/users/{id}.
func (s *Server) handleDeleteUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		actor, _ := UserFromCtx(r.Context())
		if err := s.study.DeleteUser(r.Context(), actor.ID, id); err != nil {
			s.handleError(w, r, err)
			return
		}
		writeOK(w)
	}
}

// handleResetCardRatings handles DELETE /api/admin/cards/{id}/ratings.
func (s *Server) handleResetCardRatings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		n, err := s.study.ResetCardRatings(r.Context(), id)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "removed": n})
	}
}
