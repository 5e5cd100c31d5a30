// Package index provides the SQLite-backed workspace symbol index with
// optional FTS5 full-text search. The database lives in memory only; the
// index is rebuilt from the vault on every start.
package index

// SymbolIndex defines the interface for symbol indexing operations.
// Consumers should depend on this interface rather than the concrete *DB
// type to facilitate testing with mocks.
type SymbolIndex interface {
	ReplaceDoc(path string, symbols []Symbol) error
	DeleteDoc(path string) error
	Search(query string, limit int) ([]Symbol, error)
	Close() error
}

// Verify *DB satisfies SymbolIndex at compile time.
var _ SymbolIndex = (*DB)(nil)
