package stepservice

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/starford/commitbook/internal/apperr"
	"github.com/starford/commitbook/internal/testutil"
	"github.com/starford/commitbook/internal/testutil/booktest"
)

func setup(t *testing.T, precompute bool) *booktest.Book {
	t.Helper()
	r := testutil.TestRepo(t)
	r.WriteFile("STEP.md", "# Start\n\nInitial layout.\n")
	r.WriteFile("cmd/app/main.go", "package main\n")
	r.WriteFile("notes.txt", "a\nb\nc\n")
	r.Commit("Start")
	r.WriteFile("STEP.md", "# Edit\n\nChange notes.\n")
	r.WriteFile("OUTPUT.md", "ok\n")
	r.WriteFile("notes.txt", "a\nx\nc\n")
	r.Remove("cmd/app/main.go")
	r.Commit("Edit notes")
	return booktest.Build(t, r.Dir, precompute, true)
}

func TestGetStep(t *testing.T) {
	f := setup(t, false)
	svc := NewService(f.Store, f.DB, f.Ext)
	ctx := context.Background()

	first, err := svc.GetStep(ctx, "0")
	if err != nil {
		t.Fatalf("GetStep: %v", err)
	}
	if first.Title != "Start" || first.Content != "Initial layout." || first.Prev != "" || first.Next != "1" {
		t.Errorf("step 0 = %+v", first)
	}
	second, _ := svc.GetStep(ctx, "1")
	if second.Prev != "0" || second.Next != "" || !second.HasOutput || second.CommitMessage != "Edit notes" || second.Position != 1 {
		t.Errorf("step 1 = %+v", second)
	}

	if _, err := svc.GetStep(ctx, "42"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStepOutput(t *testing.T) {
	f := setup(t, false)
	svc := NewService(f.Store, f.DB, f.Ext)

	out, err := svc.StepOutput(context.Background(), "1")
	if err != nil || out != "ok\n" {
		t.Errorf("output = %q, %v", out, err)
	}
	if _, err := svc.StepOutput(context.Background(), "0"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStepFiles_FromRepository(t *testing.T) {
	f := setup(t, false)
	svc := NewService(f.Store, f.DB, f.Ext)

	files, err := svc.StepFiles(context.Background(), "0")
	if err != nil {
		t.Fatalf("StepFiles: %v", err)
	}
	if strings.Join(files.Changed, ",") != "cmd/app/main.go,notes.txt" {
		t.Errorf("changed = %v", files.Changed)
	}
	if files.Tree == nil || files.Tree.Child("cmd") == nil || files.Tree.Child("STEP.md") != nil {
		t.Errorf("tree = %+v", files.Tree)
	}

	files, _ = svc.StepFiles(context.Background(), "1")
	if strings.Join(files.Changed, ",") != "notes.txt" || strings.Join(files.Deleted, ",") != "cmd/app/main.go" {
		t.Errorf("step 1 files = %+v", files)
	}
}

func TestStepDiff_FromRepository(t *testing.T) {
	f := setup(t, false)
	svc := NewService(f.Store, f.DB, f.Ext)
	ctx := context.Background()

	res, err := svc.StepDiff(ctx, "1", "notes.txt")
	if err != nil {
		t.Fatalf("StepDiff: %v", err)
	}
	if !strings.Contains(res.Diff, " a\n-b\n+x\n c\n") {
		t.Errorf("diff = %q", res.Diff)
	}

	res, _ = svc.StepDiff(ctx, "0", "notes.txt")
	if !res.New || !strings.Contains(res.Diff, "@@ -0,0 +1,3 @@") {
		t.Errorf("initial diff = %+v", res)
	}

	if _, err := svc.StepDiff(ctx, "1", "cmd/app/main.go"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("deleted path err = %v, want ErrNotFound", err)
	}
	if _, err := svc.StepDiff(ctx, "1", "STEP.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("narrative path err = %v, want ErrNotFound", err)
	}
}

func TestStepDiff_Precomputed(t *testing.T) {
	f := setup(t, true)
	svc := NewService(f.Store, f.DB, nil)

	res, err := svc.StepDiff(context.Background(), "1", "notes.txt")
	if err != nil {
		t.Fatalf("StepDiff: %v", err)
	}
	if !strings.Contains(res.Diff, "-b\n+x\n") {
		t.Errorf("diff = %q", res.Diff)
	}

	files, err := svc.StepFiles(context.Background(), "1")
	if err != nil {
		t.Fatalf("StepFiles: %v", err)
	}
	if len(files.Changed) != 1 || files.Tree == nil {
		t.Fatalf("files = %+v", files)
	}
	if n := files.Tree.Find("notes.txt"); n == nil || !n.Changed {
		t.Errorf("tree = %+v", files.Tree)
	}
}

func TestStepDiff_PrecomputedUnchangedAndUnknown(t *testing.T) {
	r := testutil.TestRepo(t)
	r.WriteFile("go.mod", "module example\n")
	r.WriteFile("main.go", "package main\n")
	r.Commit("Start")
	r.WriteFile("main.go", "package main\n\nfunc main() {}\n")
	r.Commit("Add main")
	b := booktest.Build(t, r.Dir, true, false)
	svc := NewService(b.Store, b.DB, nil)
	ctx := context.Background()

	res, err := svc.StepDiff(ctx, "1", "go.mod")
	if err != nil || res.Diff != "" || res.Path != "go.mod" {
		t.Errorf("unchanged file = %+v, %v", res, err)
	}
	for _, path := range []string{"nope.txt", "cmd", ""} {
		if _, err := svc.StepDiff(ctx, "1", path); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("StepDiff(%q) err = %v, want ErrNotFound", path, err)
		}
	}
}

func TestStepDiff_Unavailable(t *testing.T) {
	f := setup(t, false)
	svc := NewService(f.Store, f.DB, nil)

	if _, err := svc.StepDiff(context.Background(), "1", "notes.txt"); !errors.Is(err, apperr.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
	if _, err := svc.StepFiles(context.Background(), "1"); !errors.Is(err, apperr.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestManifestAndSearch(t *testing.T) {
	f := setup(t, false)
	svc := NewService(f.Store, f.DB, f.Ext)

	m, err := svc.Manifest(context.Background())
	if err != nil || len(m.Steps) != 2 {
		t.Fatalf("manifest = %+v, %v", m, err)
	}
	hits, err := svc.Search(context.Background(), "notes", 5)
	if err != nil || len(hits) == 0 {
		t.Errorf("search = %+v, %v", hits, err)
	}
	steps, _ := svc.ListSteps(context.Background())
	if len(steps) != 2 {
		t.Errorf("steps = %+v", steps)
	}
}
