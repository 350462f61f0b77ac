// Package models defines the domain types for commitbook.
package models

import "time"

// Commit is one entry of the source repository history.
type Commit struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	Date    time.Time `json:"date"`
	Order   int       `json:"order"`
}

// Step is one tutorial unit, built from exactly one commit.
type Step struct {
	ID        string `json:"id"`
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	Commit    Commit `json:"commit"`
	Content   string `json:"content"`
	HasOutput bool   `json:"hasOutput"`
	Output    string `json:"-"`
	// Synthetic is set when Content was generated from the commit message
	// because the commit carries no narrative file.
	Synthetic bool `json:"synthetic"`
}

// FileNode is one file's state at a specific commit.
type FileNode struct {
	Path     string `json:"path"`
	Content  string `json:"content,omitempty"`
	IsBinary bool   `json:"isBinary"`
	// Checksum is the SHA-256 of the raw blob bytes.
	Checksum string `json:"checksum,omitempty"`
}

// ProjectMetadata holds the project-level fields resolved once per build.
type ProjectMetadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	DocNumber   string `json:"docNumber"`
	StartDate   string `json:"startDate"`
	LastDate    string `json:"lastDate"`
	RepoName    string `json:"repoName"`
	RepoPath    string `json:"repoPath"`
	RepoURL     string `json:"repoUrl"`
	Body        string `json:"-"`
}

// StepEntry is the manifest's navigation record for one step.
type StepEntry struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Commit        string `json:"commit"`
	Slug          string `json:"slug"`
	CommitMessage string `json:"commitMessage"`
	HasOutput     bool   `json:"hasOutput"`
	Synthetic     bool   `json:"synthetic"`
	Checksum      string `json:"checksum"`
}

// Manifest is the project-level record the renderer reads for navigation
// and listing.
type Manifest struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	DocNumber   string      `json:"docNumber"`
	RepoName    string      `json:"repoName"`
	RepoPath    string      `json:"repoPath"`
	RepoURL     string      `json:"repoUrl"`
	StartDate   string      `json:"startDate"`
	LastDate    string      `json:"lastDate"`
	Base        string      `json:"base"`
	Steps       []StepEntry `json:"steps"`
}

// FileChange is one changed path of a step with its unified diff.
type FileChange struct {
	Path   string `json:"path"`
	New    bool   `json:"new"`
	Binary bool   `json:"binary"`
	Diff   string `json:"diff"`
}

// StepChanges is the precomputed change set of a step. Files lists the
// whole snapshot without contents.
type StepChanges struct {
	Slug    string       `json:"slug"`
	Commit  string       `json:"commit"`
	Changed []FileChange `json:"changed"`
	Deleted []string     `json:"deleted"`
	Files   []FileNode   `json:"files"`
}

// Artifact describes one file of a build output directory.
type Artifact struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updatedAt"`
}
