package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/commitbook/internal/stepservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// rebuilder, if non-nil, is exposed at POST /build.
func NewRouter(svc *stepservice.Service, authEnabled bool, token string, sseHandler http.Handler, rebuilder Rebuilder) chi.Router {
	h := NewHandler(svc, rebuilder)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/manifest", h.Manifest)

	// Steps.
	r.Get("/steps", h.ListSteps)
	r.Get("/steps/{slug}", h.GetStep)
	r.Get("/steps/{slug}/output", h.StepOutput)
	r.Get("/steps/{slug}/files", h.StepFiles)
	r.Get("/steps/{slug}/diff", h.StepDiff)

	// Search.
	r.Get("/search", h.Search)

	if rebuilder != nil {
		r.Post("/build", h.Build)
	}

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
