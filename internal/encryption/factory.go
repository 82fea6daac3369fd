package encryption

import (
	"fmt"

	"provenance-go/internal/config"
	"provenance-go/internal/research"
)

// NewEncryptorFromConfig returns the pack encryptor selected by cfg.
// Type "none" (or empty) yields nil: packs are stored as plain JSON.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (research.Encryptor, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "age":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
