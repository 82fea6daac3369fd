package testutil

import (
	"provenance-go/internal/research"
	"provenance-go/internal/vault"
)

// NewTestVault creates an in-memory pack vault.
func NewTestVault() research.PackVault {
	return vault.NewMemoryVault()
}
