package vault

import (
	"context"
	"fmt"

	"provenance-go/internal/config"
	"provenance-go/internal/research"
)

// NewVaultFromConfig creates the pack vault selected by cfg.Type.
func NewVaultFromConfig(ctx context.Context, cfg config.VaultConfig) (research.PackVault, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryVault(), nil
	case "filesystem":
		if cfg.FSVaultRoot == "" {
			return nil, fmt.Errorf("filesystem vault requires fs_vault_root to be set")
		}
		v, err := NewFileSystemVault(cfg.FSVaultRoot)
		if err != nil {
			return nil, err
		}
		return v, nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 vault requires s3_bucket to be set")
		}
		v, err := NewS3Vault(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}
