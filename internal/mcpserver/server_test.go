package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/commitbook/internal/diff"
	"github.com/starford/commitbook/internal/index"
	"github.com/starford/commitbook/internal/models"
	"github.com/starford/commitbook/internal/stepservice"
	"github.com/starford/commitbook/internal/testutil"
	"github.com/starford/commitbook/internal/testutil/booktest"
)

// testServer builds a precomputed two-step book and serves it without
// repository access, the way `commitbook mcp` runs against a remote source.
func testServer(t *testing.T) *Server {
	t.Helper()
	r := testutil.TestRepo(t)
	r.WriteFile("STEP.md", "# Greeter\n\nPrint a greeting.\n")
	r.WriteFile("main.go", "package main\n\nfunc main() {\n\tprintln(\"hi\")\n}\n")
	r.Commit("Greeter")
	r.WriteFile("STEP.md", "# Louder\n\nShout the greeting.\n")
	r.WriteFile("OUTPUT.md", "HI\n")
	r.WriteFile("main.go", "package main\n\nfunc main() {\n\tprintln(\"HI\")\n}\n")
	r.Commit("Louder")

	b := booktest.Build(t, r.Dir, true, false)
	return New(stepservice.NewService(b.Store, b.DB, nil), "test")
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no in-process call helper, so dispatch to the handlers directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "get_manifest":
		result, err = srv.getManifest(ctx, req)
	case "list_steps":
		result, err = srv.listSteps(ctx, req)
	case "read_step":
		result, err = srv.readStep(ctx, req)
	case "search_steps":
		result, err = srv.searchSteps(ctx, req)
	case "get_step_diff":
		result, err = srv.getStepDiff(ctx, req)
	case "get_narrative_format":
		result, err = srv.getNarrativeFormat(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListSteps(t *testing.T) {
	srv := testServer(t)

	text := resultText(callTool(t, srv, "list_steps", nil))
	if text != "0\tGreeter\n1\tLouder\n" {
		t.Errorf("list = %q", text)
	}
}

func TestReadStep(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "read_step", map[string]interface{}{"slug": "1"})
	text := resultText(r)
	if r.IsError || !strings.HasPrefix(text, "# Louder\n") {
		t.Fatalf("read = %q", text)
	}
	if !strings.Contains(text, "Shout the greeting.") || !strings.HasSuffix(text, "## Output\n\nHI\n") {
		t.Errorf("read = %q", text)
	}
}

func TestReadStepMissing(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "read_step", map[string]interface{}{"slug": "9"})
	if !r.IsError {
		t.Error("expected error for missing step")
	}
	r = callTool(t, srv, "read_step", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error for missing slug argument")
	}
}

func TestSearchSteps(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "search_steps", map[string]interface{}{"query": "greeting", "limit": 1})
	var results []index.SearchResult
	if err := json.Unmarshal([]byte(resultText(r)), &results); err != nil {
		t.Fatalf("decode %q: %v", resultText(r), err)
	}
	if len(results) != 1 {
		t.Errorf("results = %+v, want 1 (limited)", results)
	}
}

func TestGetStepDiff(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "get_step_diff", map[string]interface{}{"slug": "1"})
	listing := resultText(r)
	if !strings.HasPrefix(listing, "step 1 at ") || !strings.HasSuffix(listing, "\nM main.go\n") {
		t.Errorf("listing = %q", listing)
	}

	r = callTool(t, srv, "get_step_diff", map[string]interface{}{"slug": "1", "path": "missing.go"})
	if !r.IsError {
		t.Errorf("unknown path = %q, want error", resultText(r))
	}

	r = callTool(t, srv, "get_step_diff", map[string]interface{}{"slug": "1", "path": "main.go"})
	text := resultText(r)
	if !strings.Contains(text, "-\tprintln(\"hi\")\n+\tprintln(\"HI\")\n") {
		t.Errorf("diff = %q", text)
	}
}

func TestGetManifest(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "get_manifest", nil)
	var m models.Manifest
	if err := json.Unmarshal([]byte(resultText(r)), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Title != "Sample Project" || len(m.Steps) != 2 || m.Steps[0].Title != "Greeter" {
		t.Errorf("manifest = %+v", m)
	}
}

func TestNarrativeFormat(t *testing.T) {
	srv := testServer(t)

	text := resultText(callTool(t, srv, "get_narrative_format", nil))
	if !strings.Contains(text, "STEP.md") {
		t.Errorf("format = %q", text)
	}

	contents, err := srv.readNarrativeFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("resource = %v, %v", contents, err)
	}
	if tc, ok := contents[0].(mcp.TextResourceContents); !ok || tc.URI != NarrativeFormatURI {
		t.Errorf("resource = %+v", contents[0])
	}
}

func TestFileListing(t *testing.T) {
	files := &stepservice.StepFiles{
		Slug:    "2",
		Commit:  "abc",
		Changed: []string{"b.go"},
		Deleted: []string{"old.go"},
		Tree:    diff.BuildTree([]models.FileNode{{Path: "b.go"}, {Path: "a/a.go"}}, []string{"b.go"}),
	}
	if got, want := fileListing(files), "step 2 at abc\n  a/a.go\nM b.go\nD old.go\n"; got != want {
		t.Errorf("listing = %q, want %q", got, want)
	}

	files.Tree = nil
	if got, want := fileListing(files), "step 2 at abc\nM b.go\nD old.go\n"; got != want {
		t.Errorf("listing without tree = %q, want %q", got, want)
	}
}
