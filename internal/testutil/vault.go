package testutil

import (
	"fhirsync/internal/vault"
)

// NewTestStore creates a new in-memory object store for testing.
func NewTestStore() vault.Store {
	return vault.NewMemoryStore()
}
