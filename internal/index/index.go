package index

// StepIndex defines the interface for step indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type StepIndex interface {
	UpsertStep(s StepRow, body string) error
	DeleteStep(slug string) error
	GetStep(slug string) (*StepRow, error)
	ListSteps() ([]StepRow, error)
	Search(query string, limit int) ([]SearchResult, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies StepIndex at compile time.
var _ StepIndex = (*DB)(nil)
