package testutil

import (
	"provenance-go/internal/encryption"
	"provenance-go/internal/research"
)

// NewTestEncryptor creates a reversible, non-cryptographic pack encryptor.
func NewTestEncryptor() research.Encryptor {
	return encryption.NewTestEncryptor()
}
