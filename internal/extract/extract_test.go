package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/starford/commitbook/internal/apperr"
	"github.com/starford/commitbook/internal/gitrepo"
	"github.com/starford/commitbook/internal/testutil"
)

func openExtractor(t *testing.T, dir string, ignore ...string) *Extractor {
	t.Helper()
	b, err := gitrepo.Open(context.Background(), dir, gitrepo.DefaultOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return New(b, Options{Ignore: ignore, Workers: 2})
}

func TestIsBinary(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want bool
	}{
		{"plain", []byte("hello\n"), false},
		{"utf8", []byte("héllo wörld ✓"), false},
		{"empty", nil, false},
		{"nul", []byte("abc\x00def"), true},
		{"invalid utf8", []byte{0xff, 0xfe, 'a'}, true},
	}
	for _, c := range cases {
		if got := IsBinary(c.data); got != c.want {
			t.Errorf("%s: IsBinary = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestReadFile_BinaryNeverText(t *testing.T) {
	r := testutil.TestRepo(t)
	r.WriteBytes("image.dat", []byte("GIF89a\x00\x01\x02"))
	r.WriteFile("notes.txt", "text\n")
	h := r.Commit("Add files")

	e := openExtractor(t, r.Dir)
	blob, err := e.ReadFile(context.Background(), h, "image.dat")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !blob.Binary {
		t.Fatal("expected binary blob")
	}
	if blob.Text() != "" {
		t.Errorf("binary blob returned text %q", blob.Text())
	}

	blob, err = e.ReadFile(context.Background(), h, "notes.txt")
	if err != nil || blob.Binary || blob.Text() != "text\n" {
		t.Errorf("text blob = %+v, %v", blob, err)
	}
}

func TestReadFile_MissingIsNotFound(t *testing.T) {
	r := testutil.TestRepo(t)
	r.WriteFile("a.txt", "a")
	h := r.Commit("a")

	e := openExtractor(t, r.Dir)
	if _, err := e.ReadFile(context.Background(), h, "STEP.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	text, ok, err := e.ReadText(context.Background(), h, "STEP.md")
	if err != nil || ok || text != "" {
		t.Errorf("ReadText = %q, %v, %v", text, ok, err)
	}
}

func TestSnapshot_IgnoresAndMarksBinary(t *testing.T) {
	r := testutil.TestRepo(t)
	r.WriteFile("STEP.md", "# Step\n")
	r.WriteFile("src/app.go", "package src\n")
	r.WriteFile("docs/STEP.md", "nested narrative is code here\n")
	r.WriteBytes("bin/tool", []byte{0x7f, 'E', 'L', 'F', 0x00})
	h := r.Commit("Snapshot")

	e := openExtractor(t, r.Dir, "/STEP.md", "/OUTPUT.md")
	nodes, err := e.Snapshot(context.Background(), h)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	got := make(map[string]bool)
	for _, n := range nodes {
		got[n.Path] = n.IsBinary
		if n.IsBinary && n.Content != "" {
			t.Errorf("%s: binary node carries content", n.Path)
		}
	}
	if _, ok := got["STEP.md"]; ok {
		t.Error("root STEP.md should be ignored")
	}
	if _, ok := got["docs/STEP.md"]; !ok {
		t.Error("nested STEP.md should be kept")
	}
	if !got["bin/tool"] {
		t.Error("bin/tool should be binary")
	}
	if got["src/app.go"] {
		t.Error("src/app.go should be text")
	}
}
