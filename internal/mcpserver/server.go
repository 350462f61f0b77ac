// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes a built commitbook over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/commitbook/internal/apperr"
	"github.com/starford/commitbook/internal/diff"
	"github.com/starford/commitbook/internal/stepservice"
)

const defaultSearchLimit = 20

// Server wraps the MCP server with commitbook tools.
type Server struct {
	mcp *server.MCPServer
	svc *stepservice.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *stepservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"commitbook",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_manifest",
		mcp.WithDescription("Project metadata and the ordered list of steps with titles and commits."),
	), s.getManifest)

	s.mcp.AddTool(mcp.NewTool("list_steps",
		mcp.WithDescription("List all steps in commit order, one per line as '<slug>\t<title>'."),
	), s.listSteps)

	s.mcp.AddTool(mcp.NewTool("read_step",
		mcp.WithDescription("Read the narrative of a step, with its commit and output log if any."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Step slug (e.g. 0, 1, 2)")),
	), s.readStep)

	s.mcp.AddTool(mcp.NewTool("search_steps",
		mcp.WithDescription("Full-text search through step titles and narratives."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchSteps)

	s.mcp.AddTool(mcp.NewTool("get_step_diff",
		mcp.WithDescription("Show what a step changed. Without a path, lists the files of the "+
			"step's snapshot, marking changed files with M and deleted files with D. "+
			"With a path, returns the unified diff of that file."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Step slug")),
		mcp.WithString("path", mcp.Description("Repository-relative file path")),
	), s.getStepDiff)

	s.mcp.AddTool(mcp.NewTool("get_narrative_format",
		mcp.WithDescription("Returns the conventions for writing STEP.md, OUTPUT.md and README.md "+
			"in a tutorial repository. Read this before authoring commits."),
	), s.getNarrativeFormat)

	s.mcp.AddResource(
		mcp.NewResource(NarrativeFormatURI, "Narrative Format",
			mcp.WithResourceDescription("How tutorial authors write per-commit narrative files."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNarrativeFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// toolError turns a service error into a tool-level error result.
func toolError(what string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", what))
	case errors.Is(err, apperr.ErrUnavailable):
		return mcp.NewToolResultError("diffs are unavailable: the source repository is not local and the build has no precomputed diffs")
	default:
		return mcp.NewToolResultError(err.Error())
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getManifest(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	m, err := s.svc.Manifest(ctx)
	if err != nil {
		return toolError("manifest", err), nil
	}
	return jsonResult(m)
}

func (s *Server) listSteps(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	steps, err := s.svc.ListSteps(ctx)
	if err != nil {
		return toolError("steps", err), nil
	}
	if len(steps) == 0 {
		return mcp.NewToolResultText("no steps"), nil
	}
	var b []byte
	for _, st := range steps {
		b = fmt.Appendf(b, "%s\t%s\n", st.Slug, st.Title)
	}
	return mcp.NewToolResultText(string(b)), nil
}

func (s *Server) readStep(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	step, err := s.svc.GetStep(ctx, slug)
	if err != nil {
		return toolError("step "+slug, err), nil
	}

	text := fmt.Sprintf("# %s\n\ncommit %s (%s)\n\n%s\n", step.Title, step.Commit, step.CommitMessage, step.Content)
	if step.HasOutput {
		out, err := s.svc.StepOutput(ctx, slug)
		if err != nil {
			return toolError("output of step "+slug, err), nil
		}
		text += "\n## Output\n\n" + out
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) searchSteps(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", defaultSearchLimit)
	results, err := s.svc.Search(ctx, query, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) getStepDiff(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path := req.GetString("path", "")
	if path == "" {
		files, err := s.svc.StepFiles(ctx, slug)
		if err != nil {
			return toolError("step "+slug, err), nil
		}
		return mcp.NewToolResultText(fileListing(files)), nil
	}

	res, err := s.svc.StepDiff(ctx, slug, path)
	if err != nil {
		return toolError(path+" in step "+slug, err), nil
	}
	switch {
	case res.Binary:
		return mcp.NewToolResultText(res.Diff), nil
	case res.Diff == "":
		return mcp.NewToolResultText(fmt.Sprintf("%s is unchanged in step %s", path, slug)), nil
	}
	return mcp.NewToolResultText(res.Diff), nil
}

// fileListing renders a step's files one per line in tree order, prefixed
// with M (changed), D (deleted) or blanks. Without a tree only changes are
// listed.
func fileListing(files *stepservice.StepFiles) string {
	var b strings.Builder
	fmt.Fprintf(&b, "step %s at %s\n", files.Slug, files.Commit)
	if files.Tree != nil {
		files.Tree.Walk(func(n *diff.Node) {
			mark := "  "
			if n.Changed {
				mark = "M "
			}
			b.WriteString(mark + n.Path + "\n")
		})
	} else {
		for _, p := range files.Changed {
			b.WriteString("M " + p + "\n")
		}
	}
	for _, p := range files.Deleted {
		b.WriteString("D " + p + "\n")
	}
	return b.String()
}

func (s *Server) getNarrativeFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NarrativeFormat), nil
}

func (s *Server) readNarrativeFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      NarrativeFormatURI,
			MIMEType: "text/markdown",
			Text:     NarrativeFormat,
		},
	}, nil
}
