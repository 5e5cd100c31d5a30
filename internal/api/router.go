// Package api implements the optional loopback debug server using chi. It
// exposes read-only views of the vault graph for troubleshooting; it is
// never enabled unless debug_http is configured.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/moxide/internal/session"
)

// NewRouter creates a chi router with the debug routes mounted.
// sseHandler, if non-nil, is mounted at GET /events.
func NewRouter(sess *session.Session, sseHandler http.Handler) chi.Router {
	h := NewHandler(sess)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", h.Health)
	r.Get("/graph", h.Graph)
	r.Get("/symbols", h.Symbols)
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}
	return r
}
