package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ledboard/board-bootstrap/internal/config"
	"github.com/ledboard/board-bootstrap/internal/logger"
	"github.com/ledboard/board-bootstrap/internal/service/updater"
	"github.com/ledboard/board-bootstrap/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// installDir overrides the installation root.
	installDir string

	// checkOnly compares revisions without mutating anything.
	checkOnly bool

	// logLevel sets the minimum diagnostic level.
	logLevel string

	// rootCmd represents the base command synchronizing the installation.
	rootCmd = &cobra.Command{
		Use:   "board-updater",
		Short: "Synchronize the installation with its upstream repository",
		Long:  "Initialize tracking of the upstream repository or fast-forward the local tree to the remote revision, preserving the user settings file unconditionally. With --check-only the comparison runs without mutation and the exit status reports whether an update is available.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			if level, ok := logger.ParseLogLevel(logLevel); ok {
				logger.SetLevel(level)
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			root, err := resolveInstallDir(cfg)
			if err != nil {
				return err
			}

			return updater.Run(ctx, &updater.Settings{
				InstallDir:      root,
				RemoteURL:       cfg.RemoteURL,
				Branch:          cfg.RemoteBranch,
				SettingsFile:    cfg.SettingsFile,
				BackupSuffix:    cfg.BackupSuffix,
				KeepPaths:       cfg.KeepPaths,
				CheckOnly:       checkOnly,
				StopExecutables: updater.DefaultStopExecutables,
			})
		},
	}
)

// resolveInstallDir picks the installation root: flag, then config, then the
// directory containing this binary.
func resolveInstallDir(cfg *config.Config) (string, error) {
	if installDir != "" {
		return installDir, nil
	}

	if cfg.InstallDir != "" {
		return cfg.InstallDir, nil
	}

	executable, err := os.Executable()
	if err != nil {
		return "", err
	}

	return filepath.Dir(executable), nil
}

// Execute runs the board-updater CLI. Exit status 1 covers both a pending
// update in check-only mode and hard failure; 0 means up to date or applied.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&installDir, "install-dir", "d", "", "installation root (default: the updater's own directory)")
	rootCmd.Flags().BoolVar(&checkOnly, "check-only", false, "compare revisions without applying anything")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "info", "log level (debug, info, warn, error)")
}
