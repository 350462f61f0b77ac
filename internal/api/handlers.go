package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/commitbook/internal/apperr"
	"github.com/starford/commitbook/internal/build"
	"github.com/starford/commitbook/internal/checksum"
	"github.com/starford/commitbook/internal/index"
	"github.com/starford/commitbook/internal/stepservice"
)

// Rebuilder re-runs the build pipeline for the served source.
type Rebuilder interface {
	Rebuild(ctx context.Context) (*build.Result, error)
}

// Handler holds API route handlers.
type Handler struct {
	svc       *stepservice.Service
	rebuilder Rebuilder
}

// NewHandler creates a new Handler.
func NewHandler(svc *stepservice.Service, rebuilder Rebuilder) *Handler {
	return &Handler{svc: svc, rebuilder: rebuilder}
}

// writeError maps domain errors onto HTTP statuses. Unexpected errors are
// logged and reported as 500.
func writeError(w http.ResponseWriter, op string, err error, attrs ...any) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("diffs unavailable for this build"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("build already running"))
	default:
		slog.Error(op+" failed", append(attrs, slog.String("error", err.Error()))...)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// Manifest handles GET /api/manifest.
//
//	@Summary		Get the project manifest
//	@Tags			manifest
//	@Produce		json
//	@Success		200	{object}	models.Manifest
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/manifest [get]
func (h *Handler) Manifest(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Manifest(r.Context())
	if err != nil {
		writeError(w, "manifest", err)
		return
	}
	sums := []string{m.Title, m.Description, m.DocNumber, m.LastDate, m.RepoURL, m.Base}
	for _, e := range m.Steps {
		sums = append(sums, e.Checksum)
	}
	if notModified(w, r, checksum.Combine(sums...)) {
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ListSteps handles GET /api/steps.
//
//	@Summary		List steps in commit order
//	@Tags			steps
//	@Produce		json
//	@Success		200	{object}	StepListResponse
//	@Security		BearerAuth
//	@Router			/steps [get]
func (h *Handler) ListSteps(w http.ResponseWriter, r *http.Request) {
	steps, err := h.svc.ListSteps(r.Context())
	if err != nil {
		writeError(w, "list steps", err)
		return
	}
	writeJSON(w, http.StatusOK, StepListResponse{Steps: steps, Total: len(steps)})
}

// GetStep handles GET /api/steps/{slug}.
//
//	@Summary		Get a single step
//	@Tags			steps
//	@Produce		json
//	@Param			slug	path		string	true	"Step slug"
//	@Success		200		{object}	StepDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/steps/{slug} [get]
func (h *Handler) GetStep(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	step, err := h.svc.GetStep(r.Context(), slug)
	if err != nil {
		writeError(w, "get step", err, slog.String("slug", slug))
		return
	}
	if notModified(w, r, step.Checksum) {
		return
	}
	writeJSON(w, http.StatusOK, step)
}

// StepOutput handles GET /api/steps/{slug}/output.
//
//	@Summary		Get the output log of a step
//	@Tags			steps
//	@Produce		json
//	@Param			slug	path		string	true	"Step slug"
//	@Success		200		{object}	OutputResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/steps/{slug}/output [get]
func (h *Handler) StepOutput(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	out, err := h.svc.StepOutput(r.Context(), slug)
	if err != nil {
		writeError(w, "step output", err, slog.String("slug", slug))
		return
	}
	writeJSON(w, http.StatusOK, OutputResponse{Slug: slug, Output: out})
}

// StepFiles handles GET /api/steps/{slug}/files.
//
//	@Summary		List files changed by a step
//	@Tags			steps
//	@Produce		json
//	@Param			slug	path		string	true	"Step slug"
//	@Success		200		{object}	StepFiles
//	@Failure		404		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/steps/{slug}/files [get]
func (h *Handler) StepFiles(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	files, err := h.svc.StepFiles(r.Context(), slug)
	if err != nil {
		writeError(w, "step files", err, slog.String("slug", slug))
		return
	}
	writeJSON(w, http.StatusOK, files)
}

// StepDiff handles GET /api/steps/{slug}/diff?path=.
//
//	@Summary		Unified diff of one file for a step
//	@Tags			steps
//	@Produce		json
//	@Param			slug	path		string	true	"Step slug"
//	@Param			path	query		string	true	"Repository-relative file path"
//	@Success		200		{object}	DiffResult
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/steps/{slug}/diff [get]
func (h *Handler) StepDiff(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	path := strings.TrimPrefix(r.URL.Query().Get("path"), "/")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'path' is required"))
		return
	}
	res, err := h.svc.StepDiff(r.Context(), slug, path)
	if err != nil {
		writeError(w, "step diff", err, slog.String("slug", slug), slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across steps
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err, slog.String("query", q))
		return
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Build handles POST /api/build.
//
//	@Summary		Rebuild the output from the source repository
//	@Tags			build
//	@Produce		json
//	@Success		200	{object}	BuildResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/build [post]
func (h *Handler) Build(w http.ResponseWriter, r *http.Request) {
	res, err := h.rebuilder.Rebuild(r.Context())
	if err != nil {
		if apperr.IsFatal(err) {
			slog.Error("rebuild failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusBadGateway, errorBody(err.Error()))
			return
		}
		writeError(w, "rebuild", err)
		return
	}
	writeJSON(w, http.StatusOK, BuildResponse{
		RunID:      res.RunID,
		Steps:      len(res.Steps),
		DurationMS: res.Duration.Milliseconds(),
	})
}
