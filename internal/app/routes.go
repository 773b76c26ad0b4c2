package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (app *application) routes() http.Handler {
	r := chi.NewRouter()

	r.NotFound(app.notFoundResponse)

	r.Use(middleware.Logger)
	r.Use(middleware.RequestID)
	r.Use(app.recoverPanic)

	r.Get("/health", app.getHealth)

	r.Route("/ops", func(r chi.Router) {
		r.Post("/reaper/sweeps", app.triggerReaperSweep)
		r.Get("/broker/health", app.getBrokerHealth)
	})

	return r
}
