//go:build sqlite_fts5

package index

import "testing"

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM steps_fts`).Scan(&count); err != nil {
		t.Fatalf("steps_fts table missing: %v", err)
	}
}

func TestFTS5_SearchWithSnippet(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertStep(row("4", 4, "Wire the router", "f1"), "Mount the handlers on a powerful router."); err != nil {
		t.Fatalf("UpsertStep: %v", err)
	}

	results, err := db.Search("powerful", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Slug != "4" || results[0].Position != 4 {
		t.Errorf("result = %+v", results[0])
	}
	if results[0].Snippet == "" {
		t.Error("expected non-empty snippet")
	}
}

func TestFTS5_DeleteRemovesFromFTS(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertStep(row("9", 9, "Gone", "g"), "vanishing content")
	_ = db.DeleteStep("9")

	results, _ := db.Search("vanishing", 10)
	if len(results) != 0 {
		t.Errorf("deleted step still in FTS index: %+v", results)
	}
}

func TestFTS5_UpsertReplacesContent(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertStep(row("2", 2, "Old", "1"), "original text")
	_ = db.UpsertStep(row("2", 2, "New", "2"), "replacement text")

	results, _ := db.Search("original", 10)
	if len(results) != 0 {
		t.Error("old FTS content should be gone")
	}
	results, _ = db.Search("replacement", 10)
	if len(results) != 1 || results[0].Title != "New" {
		t.Errorf("FTS not updated: %+v", results)
	}
}

func TestFTS5_MatchesCommitMessage(t *testing.T) {
	db := testDB(t)
	s := row("0", 0, "Title", "1")
	s.CommitMessage = "Introduce middleware"
	_ = db.UpsertStep(s, "body")

	results, err := db.Search("middleware", 10)
	if err != nil || len(results) != 1 {
		t.Errorf("results = %+v, %v", results, err)
	}
}

func TestFTS5_QuerySyntaxIsLiteral(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertStep(row("0", 0, "Backends", "1"), "Switch to the go-git backend.")

	for _, q := range []string{"go-git", `"backend`, "title:backends OR"} {
		if _, err := db.Search(q, 10); err != nil {
			t.Errorf("Search(%q): %v", q, err)
		}
	}
	results, _ := db.Search("go-git", 10)
	if len(results) != 1 {
		t.Errorf("go-git results = %+v", results)
	}
}
