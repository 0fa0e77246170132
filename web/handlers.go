package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/mww/challenge_board/controller"
	"github.com/unrolled/render"
)

// Header set by the authenticating proxy in front of the api.
const userNameHeader = "X-User-Name"

type errorResponse struct {
	Error string `json:"error"`
}

type createMatchRequest struct {
	Winner  string `json:"winner"`
	Loser   string `json:"loser"`
	Comment string `json:"comment"`
	Tie     bool   `json:"tie"`
	Preview bool   `json:"preview"`
}

func rootHandler(_ controller.C, render *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.Text(w, http.StatusOK, "challenge board")
	}
}

func getBoardHandler(ctrl controller.C, render *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boardID, ok := parseID(w, r, render, "boardID")
		if !ok {
			return
		}

		b, err := ctrl.GetBoard(r.Context(), boardID)
		if err != nil {
			renderError(w, render, err)
			return
		}
		render.JSON(w, http.StatusOK, newBoardView(b))
	}
}

func standingsHandler(ctrl controller.C, render *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boardID, ok := parseID(w, r, render, "boardID")
		if !ok {
			return
		}

		standings, err := ctrl.GetStandings(r.Context(), boardID)
		if err != nil {
			renderError(w, render, err)
			return
		}
		render.JSON(w, http.StatusOK, newCompetitorViews(standings))
	}
}

func competitorStatsHandler(ctrl controller.C, render *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boardID, ok := parseID(w, r, render, "boardID")
		if !ok {
			return
		}

		stats, err := ctrl.GetCompetitorStats(r.Context(), boardID, chi.URLParam(r, "name"))
		if err != nil {
			renderError(w, render, err)
			return
		}
		render.JSON(w, http.StatusOK, newStatsView(stats))
	}
}

func unresolvedMatchesHandler(ctrl controller.C, render *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boardID, ok := parseID(w, r, render, "boardID")
		if !ok {
			return
		}

		verifiable := false
		if v := r.URL.Query().Get("verifiable"); v != "" {
			var err error
			if verifiable, err = strconv.ParseBool(v); err != nil {
				render.JSON(w, http.StatusBadRequest, errorResponse{fmt.Sprintf("invalid verifiable value: %s", v)})
				return
			}
		}

		matches, err := ctrl.ListUnresolvedMatches(r.Context(), boardID, verifiable)
		if err != nil {
			renderError(w, render, err)
			return
		}
		render.JSON(w, http.StatusOK, newMatchViews(matches))
	}
}

func createMatchHandler(ctrl controller.C, render *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boardID, ok := parseID(w, r, render, "boardID")
		if !ok {
			return
		}

		var req createMatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.JSON(w, http.StatusBadRequest, errorResponse{fmt.Sprintf("error parsing match: %v", err)})
			return
		}
		if req.Winner == "" || req.Loser == "" {
			render.JSON(w, http.StatusBadRequest, errorResponse{"winner and loser are required"})
			return
		}

		if req.Preview {
			m, err := ctrl.GenerateMatch(r.Context(), boardID, req.Winner, req.Loser, req.Tie)
			if err != nil {
				renderError(w, render, err)
				return
			}
			render.JSON(w, http.StatusOK, newMatchView(m))
			return
		}

		m, err := ctrl.CreateMatch(r.Context(), boardID, req.Winner, req.Loser, req.Comment, req.Tie)
		if err != nil {
			renderError(w, render, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/boards/%d/matches/%d", boardID, m.ID))
		render.JSON(w, http.StatusCreated, newMatchView(m))
	}
}

func getMatchHandler(ctrl controller.C, render *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boardID, ok := parseID(w, r, render, "boardID")
		if !ok {
			return
		}
		matchID, ok := parseID(w, r, render, "matchID")
		if !ok {
			return
		}

		m, err := ctrl.GetMatch(r.Context(), matchID)
		if err != nil {
			renderError(w, render, err)
			return
		}
		if m.BoardID != boardID {
			render.JSON(w, http.StatusNotFound, errorResponse{"Can not find match."})
			return
		}
		render.JSON(w, http.StatusOK, newMatchView(m))
	}
}

func confirmMatchHandler(ctrl controller.C, render *render.Render) http.HandlerFunc {
	return matchActionHandler(render, ctrl.ConfirmMatch)
}

func rejectMatchHandler(ctrl controller.C, render *render.Render) http.HandlerFunc {
	return matchActionHandler(render, ctrl.RejectMatch)
}

// matchActionHandler runs an action of the requesting user against a match of a board.
func matchActionHandler(render *render.Render, action func(ctx context.Context, boardID, matchID int32, userName string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boardID, ok := parseID(w, r, render, "boardID")
		if !ok {
			return
		}
		matchID, ok := parseID(w, r, render, "matchID")
		if !ok {
			return
		}

		userName := r.Header.Get(userNameHeader)
		if userName == "" {
			render.JSON(w, http.StatusUnauthorized, errorResponse{"not logged in"})
			return
		}

		if err := action(r.Context(), boardID, matchID, userName); err != nil {
			renderError(w, render, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func verifyMatchHandler(ctrl controller.C, render *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matchID, ok := parseID(w, r, render, "matchID")
		if !ok {
			return
		}

		if err := ctrl.VerifyMatch(r.Context(), matchID); err != nil {
			renderError(w, render, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func sweepHandler(ctrl controller.C, render *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := ctrl.SweepMatches(r.Context()); err != nil {
			renderError(w, render, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func parseID(w http.ResponseWriter, r *http.Request, render *render.Render, param string) (int32, bool) {
	s := chi.URLParam(r, param)
	id, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		render.JSON(w, http.StatusBadRequest, errorResponse{fmt.Sprintf("error parsing %s: %v", param, err)})
		return 0, false
	}
	return int32(id), true
}

func renderError(w http.ResponseWriter, render *render.Render, err error) {
	kind, ok := controller.ErrorKind(err)
	if !ok {
		log.Printf("internal error: %v", err)
		render.JSON(w, http.StatusInternalServerError, errorResponse{"internal error"})
		return
	}

	status := http.StatusInternalServerError
	switch kind {
	case controller.KindNotFound:
		status = http.StatusNotFound
	case controller.KindValidation:
		status = http.StatusBadRequest
	case controller.KindPermission:
		status = http.StatusForbidden
	case controller.KindConflict:
		status = http.StatusConflict
	case controller.KindIntegrity:
		log.Printf("integrity error: %v", err)
	}
	render.JSON(w, status, errorResponse{err.Error()})
}
