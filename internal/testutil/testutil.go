// Package testutil provides shared test helpers for setting up vaults.
package testutil

import (
	"testing"

	"github.com/starford/moxide/internal/storage"
)

// TestVault creates a temporary vault directory populated with the given
// files (keys are root-relative slash paths) and returns its absolute root
// plus a storage.Provider over it.
func TestVault(t *testing.T, files map[string]string) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	for rel, content := range files {
		if err := store.Write(rel, []byte(content)); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return store.Root(), store
}
