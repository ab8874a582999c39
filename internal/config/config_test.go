package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestValidate checks required fields and format validations.
func TestValidate(t *testing.T) {
	t.Parallel()

	// Missing remote URL.
	err := Validate(new(Config))
	require.Error(t, err)

	// Missing branch.
	err = Validate(&Config{RemoteURL: "https://example.com/games.git"})
	require.Error(t, err)

	// Bad engine URL.
	err = Validate(&Config{
		RemoteURL:    "https://example.com/games.git",
		RemoteBranch: "main",
		EngineURL:    "not a url",
	})
	require.Error(t, err)

	// Defaults filled in.
	cfg := &Config{
		RemoteURL:    "https://example.com/games.git",
		RemoteBranch: "main",
	}
	require.NoError(t, Validate(cfg))
	require.Equal(t, DefaultSettingsFilename, cfg.SettingsFile)
	require.Equal(t, DefaultBackupSuffix, cfg.BackupSuffix)
}

// TestLoadMissingFileUsesDefaults ensures a missing config file is not fatal.
func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultRemoteURL, cfg.RemoteURL)
	require.Equal(t, DefaultRemoteBranch, cfg.RemoteBranch)
	require.Contains(t, cfg.KeepPaths, "venv")
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bootstrap.yaml")

	cfg := &Config{
		RemoteURL:    "https://updates.local/games.git",
		RemoteBranch: "stable",
		SettingsFile: "settings.json",
	}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.RemoteURL, loaded.RemoteURL)
	require.Equal(t, cfg.RemoteBranch, loaded.RemoteBranch)
}
