package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds installation parameters shared by the board binaries.
type Config struct {
	// InstallDir is the installation root. Empty means "derive from the
	// binary's own location" so relative asset paths always resolve.
	InstallDir string `yaml:"install_dir"`
	// RemoteURL is the upstream repository the installation tracks.
	RemoteURL string `yaml:"remote_url"`
	// RemoteBranch is the branch the installation follows.
	RemoteBranch string `yaml:"remote_branch"`
	// SettingsFile is the user settings file, relative to InstallDir,
	// preserved unconditionally across synchronization.
	SettingsFile string `yaml:"settings_file"`
	// BackupSuffix is appended to SettingsFile for the transient backup copy.
	BackupSuffix string `yaml:"backup_suffix"`
	// KeepPaths lists untracked paths the synchronizer must not remove.
	KeepPaths []string `yaml:"keep_paths"`
	// EngineURL is where the installer downloads the chess engine binary from.
	EngineURL string `yaml:"engine_url"`
	// EngineChecksum is the base64-encoded SHA-256 of the engine binary.
	// Empty disables verification.
	EngineChecksum string `yaml:"engine_checksum"`
}

const (
	// DefaultConfigFilename is the default filename for bootstrap settings.
	DefaultConfigFilename = "board-bootstrap.yaml"

	// DefaultRemoteURL is the upstream source of the installation.
	DefaultRemoteURL = "https://github.com/ledboard/board-games.git"

	// DefaultRemoteBranch is the branch the appliance follows.
	DefaultRemoteBranch = "main"

	// DefaultSettingsFilename is the preserved user settings file.
	DefaultSettingsFilename = "settings.json"

	// DefaultBackupSuffix marks the transient settings backup.
	DefaultBackupSuffix = ".backup"

	// DefaultEngineURL is where the chess engine binary is fetched from.
	DefaultEngineURL = "https://github.com/official-stockfish/Stockfish/releases/latest/download/stockfish-ubuntu-x86-64"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errRemoteURLRequired is returned when the remote URL is missing.
	errRemoteURLRequired = errors.New("remote repository URL must be provided")
	// errRemoteBranchRequired is returned when the remote branch is missing.
	errRemoteBranchRequired = errors.New("remote branch must be provided")
)

// Default returns the compiled-in configuration.
// The synchronizer and installer take their fixed constants from here;
// tests override the fields to point at local fixtures.
func Default() *Config {
	return &Config{
		RemoteURL:    DefaultRemoteURL,
		RemoteBranch: DefaultRemoteBranch,
		SettingsFile: DefaultSettingsFilename,
		BackupSuffix: DefaultBackupSuffix,
		KeepPaths: []string{
			DefaultSettingsFilename,
			DefaultSettingsFilename + DefaultBackupSuffix,
			"venv",
			".vscode",
		},
		EngineURL: DefaultEngineURL,
	}
}

// Load reads configuration from the provided path and validates it.
// A missing file is not an error: the defaults apply unchanged.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	cfg := Default()

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return nil, fmt.Errorf("read bootstrap settings: %w", err)
	}

	if err = yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal bootstrap settings: %w", err)
	}

	if err = Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal bootstrap settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write bootstrap settings: %w", err)
	}

	return nil
}

// Validate checks required fields and fills in defaulted ones.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if strings.TrimSpace(cfg.RemoteURL) == "" {
		return errRemoteURLRequired
	}

	if strings.TrimSpace(cfg.RemoteBranch) == "" {
		return errRemoteBranchRequired
	}

	if cfg.SettingsFile == "" {
		cfg.SettingsFile = DefaultSettingsFilename
	}

	if cfg.BackupSuffix == "" {
		cfg.BackupSuffix = DefaultBackupSuffix
	}

	if cfg.EngineURL != "" {
		if _, err := url.ParseRequestURI(cfg.EngineURL); err != nil {
			return fmt.Errorf("invalid engine URL: %w", err)
		}
	}

	return nil
}
