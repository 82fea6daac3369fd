package research

import (
	"context"
	"io"
)

// PackVault stores reproducibility packs by key.
// Keys have the form "project-{id}/{uuid}.json", with an ".age" suffix when
// the pack is encrypted.
type PackVault interface {
	// PutPack stores size bytes read from r under key, replacing any previous value.
	PutPack(ctx context.Context, key string, r io.Reader, size int64) error

	// GetPack writes the pack stored under key to w.
	GetPack(ctx context.Context, key string, w io.Writer) error

	// ListPacks returns the keys under prefix in lexical order.
	ListPacks(ctx context.Context, prefix string) ([]string, error)

	// ValidateSetup verifies that the vault is reachable and writable.
	ValidateSetup(ctx context.Context) error
}
