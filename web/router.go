package web

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mww/challenge_board/controller"
	"github.com/unrolled/render"
)

func getRouter(ctrl controller.C, render *render.Render, admins map[string]string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Set a timeout value on the request context (ctx), that will signal
	// through ctx.Done() that the request has timed out and further
	// processing should be stopped.
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/", rootHandler(ctrl, render))

	r.Route("/boards/{boardID:\\d+}", func(r chi.Router) {
		r.Get("/", getBoardHandler(ctrl, render))
		r.Get("/standings", standingsHandler(ctrl, render))
		r.Get("/competitors/{name}/stats", competitorStatsHandler(ctrl, render))

		r.Route("/matches", func(r chi.Router) {
			r.Get("/", unresolvedMatchesHandler(ctrl, render))
			r.Post("/", createMatchHandler(ctrl, render))
			r.Get("/{matchID:\\d+}", getMatchHandler(ctrl, render))
			r.Post("/{matchID:\\d+}/confirm", confirmMatchHandler(ctrl, render))
			r.Post("/{matchID:\\d+}/reject", rejectMatchHandler(ctrl, render))
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.BasicAuth("challenge_board", admins))
		r.Use(middleware.Timeout(30 * time.Second)) // Set a longer timeout for /admin actions

		r.Post("/matches/{matchID:\\d+}/verify", verifyMatchHandler(ctrl, render))
		r.Post("/sweep", sweepHandler(ctrl, render))
	})

	return r
}
