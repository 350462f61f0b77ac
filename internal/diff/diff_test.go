package diff

import (
	"errors"
	"strings"
	"testing"

	"github.com/starford/commitbook/internal/apperr"
	"github.com/starford/commitbook/internal/models"
)

func file(path, content string) models.FileNode {
	return models.FileNode{Path: path, Content: content}
}

func binary(path, sum string) models.FileNode {
	return models.FileNode{Path: path, IsBinary: true, Checksum: sum}
}

func TestUnified_ChangedMiddleLine(t *testing.T) {
	prev := []models.FileNode{file("f.txt", "a\nb\nc\n")}
	cur := []models.FileNode{file("f.txt", "a\nx\nc\n")}

	res, err := Unified("f.txt", cur, prev)
	if err != nil {
		t.Fatalf("Unified: %v", err)
	}
	want := "--- a/f.txt\n+++ b/f.txt\n@@ -1,3 +1,3 @@\n a\n-b\n+x\n c\n"
	if res.Diff != want {
		t.Errorf("diff =\n%s\nwant\n%s", res.Diff, want)
	}
	if res.New || res.Binary {
		t.Errorf("flags = %+v", res)
	}
}

func TestUnified_NewFileAllAdditions(t *testing.T) {
	cur := []models.FileNode{file("main.go", "package main\n\nfunc main() {}\n")}

	res, err := Unified("main.go", cur, nil)
	if err != nil {
		t.Fatalf("Unified: %v", err)
	}
	if !res.New {
		t.Error("expected New")
	}
	want := "--- /dev/null\n+++ b/main.go\n@@ -0,0 +1,3 @@\n+package main\n+\n+func main() {}\n"
	if res.Diff != want {
		t.Errorf("diff =\n%q\nwant\n%q", res.Diff, want)
	}
	for _, line := range strings.Split(strings.TrimSuffix(res.Diff, "\n"), "\n")[3:] {
		if !strings.HasPrefix(line, "+") {
			t.Errorf("non-addition line %q", line)
		}
	}
}

func TestUnified_BinaryShortCircuits(t *testing.T) {
	cases := []struct {
		name      string
		cur, prev []models.FileNode
	}{
		{"current binary", []models.FileNode{binary("x", "1")}, []models.FileNode{file("x", "text\n")}},
		{"previous binary", []models.FileNode{file("x", "text\n")}, []models.FileNode{binary("x", "1")}},
		{"new binary", []models.FileNode{binary("x", "1")}, nil},
	}
	for _, c := range cases {
		res, err := Unified("x", c.cur, c.prev)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if !res.Binary || res.Diff != BinaryUnsupported {
			t.Errorf("%s: result = %+v", c.name, res)
		}
	}
}

func TestUnified_MissingPath(t *testing.T) {
	_, err := Unified("gone.txt", []models.FileNode{file("a", "")}, nil)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUnified_Deterministic(t *testing.T) {
	var before, after strings.Builder
	for i := 0; i < 200; i++ {
		before.WriteString("line\n")
		if i%7 == 0 {
			after.WriteString("changed\n")
		} else {
			after.WriteString("line\n")
		}
	}
	prev := []models.FileNode{file("r.txt", before.String())}
	cur := []models.FileNode{file("r.txt", after.String())}
	first, _ := Unified("r.txt", cur, prev)
	for i := 0; i < 5; i++ {
		again, _ := Unified("r.txt", cur, prev)
		if again.Diff != first.Diff {
			t.Fatal("diff output is not stable")
		}
	}
}

func TestUnified_Unchanged(t *testing.T) {
	nodes := []models.FileNode{file("same.txt", "x\n")}
	res, err := Unified("same.txt", nodes, nodes)
	if err != nil || res.Diff != "" {
		t.Errorf("unchanged diff = %q, %v", res.Diff, err)
	}
}

func TestChangedFiles(t *testing.T) {
	prev := []models.FileNode{
		file("keep.txt", "same"),
		file("edit.txt", "old"),
		file("removed.txt", "bye"),
		binary("img.png", "aaa"),
	}
	cur := []models.FileNode{
		file("keep.txt", "same"),
		file("edit.txt", "new"),
		file("added.txt", "hi"),
		binary("img.png", "bbb"),
	}
	got := ChangedFiles(cur, prev)
	want := []string{"added.txt", "edit.txt", "img.png"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("changed = %v, want %v", got, want)
	}
	if del := Deleted(cur, prev); len(del) != 1 || del[0] != "removed.txt" {
		t.Errorf("deleted = %v", del)
	}
}

func TestChangedFiles_InitialStepAllNew(t *testing.T) {
	cur := []models.FileNode{file("b", "1"), file("a", "2")}
	got := ChangedFiles(cur, nil)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("changed = %v", got)
	}
}

func TestUnified_FinalNewline(t *testing.T) {
	head := "--- a/f.txt\n+++ b/f.txt\n@@ -1,2 +1,2 @@\n a\n"
	cases := []struct {
		name      string
		prev, cur string
		want      string
	}{
		{"added", "a\nb", "a\nb\n", head + "-b\n" + noNewline + "+b\n"},
		{"removed", "a\nb\n", "a\nb", head + "-b\n+b\n" + noNewline},
		{
			"missing on both sides",
			"a\nb\nc", "a\nx\nc",
			"--- a/f.txt\n+++ b/f.txt\n@@ -1,3 +1,3 @@\n a\n-b\n+x\n c\n" + noNewline,
		},
	}
	for _, c := range cases {
		prev := []models.FileNode{file("f.txt", c.prev)}
		cur := []models.FileNode{file("f.txt", c.cur)}
		if got := ChangedFiles(cur, prev); len(got) != 1 || got[0] != "f.txt" {
			t.Errorf("%s: changed = %v", c.name, got)
		}
		res, err := Unified("f.txt", cur, prev)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if res.Diff != c.want {
			t.Errorf("%s: diff =\n%q\nwant\n%q", c.name, res.Diff, c.want)
		}
	}
}
