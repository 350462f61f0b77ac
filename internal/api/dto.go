package api

import (
	"github.com/starford/commitbook/internal/diff"
	"github.com/starford/commitbook/internal/index"
	"github.com/starford/commitbook/internal/stepservice"
)

// StepDetail is the full step response type (aliased from the domain layer).
type StepDetail = stepservice.StepDetail

// StepFiles is the changed-files response type (aliased from the domain layer).
type StepFiles = stepservice.StepFiles

// DiffResult is the unified diff of one path (aliased from the diff engine).
type DiffResult = diff.Result

// StepListResponse wraps the ordered step listing.
type StepListResponse struct {
	Steps []index.StepRow `json:"steps" validate:"required"`
	Total int             `json:"total" example:"12" validate:"required"`
}

// OutputResponse carries the output log of a step.
type OutputResponse struct {
	Slug   string `json:"slug" example:"3" validate:"required"`
	Output string `json:"output" example:"$ go test ./...\nok" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// BuildResponse summarises a completed rebuild.
type BuildResponse struct {
	RunID      string `json:"runId" example:"3f7c0a5e-6f0b-4c1e-9a39-2d3b8f1e4a10" validate:"required"`
	Steps      int    `json:"steps" example:"12" validate:"required"`
	DurationMS int64  `json:"durationMs" example:"420" validate:"required"`
}
