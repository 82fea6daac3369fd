package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Env holds the locations prov reads from the environment.
//   - PROV_CONFIG_PATH: config file location (default: ~/.config/prov.toml)
//   - PROV_HOME: base directory for prov data (default: ~/.local/share/prov)
type Env struct {
	ConfigPath string `envconfig:"CONFIG_PATH"`
	Home       string `envconfig:"HOME"`
}

// Defaults are the resolved application paths.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
}

// GetDefaults returns application default paths. A .env file in the working
// directory is loaded first; variables already set take precedence over it.
func GetDefaults() (*Defaults, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	var env Env
	if err := envconfig.Process("prov", &env); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	configPath, err := orHome(env.ConfigPath, ".config", "prov.toml")
	if err != nil {
		return nil, err
	}
	baseDir, err := orHome(env.Home, ".local", "share", "prov")
	if err != nil {
		return nil, err
	}

	return &Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
	}, nil
}

// orHome returns path when set, otherwise the given location under the
// user's home directory.
func orHome(path string, elem ...string) (string, error) {
	if path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, elem...)...), nil
}
