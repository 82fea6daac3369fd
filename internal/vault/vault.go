// Package vault stores reproducibility packs in memory, on a local
// filesystem or in an S3 bucket.
package vault

import (
	"fmt"
	"path"
	"strings"

	"provenance-go/internal/research"
)

// checkKey rejects keys that could escape the vault root.
func checkKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return fmt.Errorf("invalid pack key %q", key)
	}
	if path.Clean(key) != key || key == "." || strings.HasPrefix(key, "../") || key == ".." {
		return fmt.Errorf("invalid pack key %q", key)
	}
	return nil
}

func packNotFound(key string) error {
	return fmt.Errorf("pack %s: %w", key, research.ErrNotFound)
}
