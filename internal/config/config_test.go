package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		BaseDir: "/home/user/.local/share/prov",
		LogDir:  "/home/user/.local/share/prov/log",
		Culture: "fr",
		Vault: VaultConfig{
			Type:       "s3",
			S3Bucket:   "research-packs",
			S3Prefix:   "prod",
			S3Region:   "eu-west-1",
			S3Endpoint: "http://localhost:9000",
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  "/home/user/.local/share/prov/keys/prov.pub",
			PrivateKeyPath: "/home/user/.local/share/prov/keys/prov.key",
		},
		Database: DatabaseConfig{Type: "sqlite", DataDir: "/home/user/.local/share/prov/db"},
		Server:   ServerConfig{Addr: ":9090", VerifySchedule: "@hourly"},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if got.LogDir != original.LogDir {
		t.Errorf("LogDir = %q, want %q", got.LogDir, original.LogDir)
	}
	if got.Culture != "fr" {
		t.Errorf("Culture = %q, want %q", got.Culture, "fr")
	}
	if got.Vault != original.Vault {
		t.Errorf("Vault = %+v, want %+v", got.Vault, original.Vault)
	}
	if got.Encryption != original.Encryption {
		t.Errorf("Encryption = %+v, want %+v", got.Encryption, original.Encryption)
	}
	if got.Database != original.Database {
		t.Errorf("Database = %+v, want %+v", got.Database, original.Database)
	}
	if got.Server != original.Server {
		t.Errorf("Server = %+v, want %+v", got.Server, original.Server)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/prov")

	if cfg.BaseDir != "/data/prov" {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, "/data/prov")
	}
	if cfg.LogDir != "/data/prov/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/prov/log")
	}
	if cfg.Database.DataDir != "/data/prov/db" {
		t.Errorf("Database.DataDir = %q, want %q", cfg.Database.DataDir, "/data/prov/db")
	}
	if cfg.Vault.FSVaultRoot != "/data/prov/packs" {
		t.Errorf("Vault.FSVaultRoot = %q, want %q", cfg.Vault.FSVaultRoot, "/data/prov/packs")
	}
	if cfg.Encryption.PublicKeyPath != "/data/prov/keys/prov.pub" {
		t.Errorf("Encryption.PublicKeyPath = %q, want %q", cfg.Encryption.PublicKeyPath, "/data/prov/keys/prov.pub")
	}
	if cfg.Encryption.PrivateKeyPath != "/data/prov/keys/prov.key" {
		t.Errorf("Encryption.PrivateKeyPath = %q, want %q", cfg.Encryption.PrivateKeyPath, "/data/prov/keys/prov.key")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults error = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "memory everything", mutate: func(c *Config) {
			c.Database = DatabaseConfig{Type: "memory"}
			c.Vault = VaultConfig{Type: "memory"}
		}},
		{name: "unknown database", mutate: func(c *Config) { c.Database.Type = "postgres" }, wantErr: "database"},
		{name: "sqlite without data_dir", mutate: func(c *Config) { c.Database.DataDir = "" }, wantErr: "data_dir"},
		{name: "filesystem vault without root", mutate: func(c *Config) { c.Vault.FSVaultRoot = "" }, wantErr: "fs_vault_root"},
		{name: "s3 vault without bucket", mutate: func(c *Config) { c.Vault = VaultConfig{Type: "s3"} }, wantErr: "s3_bucket"},
		{name: "unknown vault", mutate: func(c *Config) { c.Vault.Type = "ftp" }, wantErr: "vault"},
		{name: "age without keys", mutate: func(c *Config) {
			c.Encryption = EncryptionConfig{Type: "age"}
		}, wantErr: "key paths"},
		{name: "unknown encryption", mutate: func(c *Config) { c.Encryption.Type = "rot13" }, wantErr: "encryption"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("/data/prov")
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "prov.toml")

		if err := Init(path, NewConfig(dir)); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("config file not created: %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "prov.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		if err := Init(path, cfg); err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "prov.toml")
		cfg := NewConfig(dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want %q", got.Database.Type, "memory")
		}
		if got.BaseDir != dir {
			t.Errorf("BaseDir = %q, want %q", got.BaseDir, dir)
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/prov.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
