package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func (c controller) GetMux() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(cors.AllowAll().Handler)
	r.Use(c.requestIdMw)
	r.Use(c.requestLoggingMw)

	r.Get("/healthz", c.healthz)
	if c.metricsHandler != nil {
		r.Handle("/metrics", c.metricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/time", c.getTime)
		r.Route("/rooms", func(r chi.Router) {
			r.Post("/", c.createRoom)
			r.Get("/{room-id}/video-state", c.getVideoState)
		})
	})

	r.Get("/ws/rooms/{room-id}", c.joinRoom)

	return r
}
