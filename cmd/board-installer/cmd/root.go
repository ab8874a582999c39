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
	"github.com/ledboard/board-bootstrap/internal/service/installer"
	"github.com/ledboard/board-bootstrap/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// installDir overrides the installation root.
	installDir string

	// logLevel sets the minimum diagnostic level.
	logLevel string

	// rootCmd represents the base command provisioning the appliance.
	rootCmd = &cobra.Command{
		Use:   "board-installer",
		Short: "Provision desktop entries, splash image and chess engine",
		Long:  "Run the one-shot provisioning steps around the core bootstrap: generate .desktop launchers and an autostart entry, install the boot splash image and download the chess engine binary. Failing steps are reported and the remaining steps still run.",
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

			return installer.Run(ctx, &installer.Options{
				InstallDir:     root,
				EngineURL:      cfg.EngineURL,
				EngineChecksum: cfg.EngineChecksum,
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

// Execute runs the board-installer CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&installDir, "install-dir", "d", "", "installation root (default: the installer's own directory)")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "info", "log level (debug, info, warn, error)")
}
