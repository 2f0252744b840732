// Package storetest opens throwaway in-memory stores for tests in other
// packages.
package storetest

import (
	"testing"

	"nichescout/store"
)

// Open returns an in-memory store that is closed on test cleanup.
func Open(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
