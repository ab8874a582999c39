package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/ledboard/board-bootstrap/internal/logger"
	"github.com/ledboard/board-bootstrap/internal/service/launcher"
	"github.com/ledboard/board-bootstrap/internal/version"
)

var (
	// installDir overrides the installation root.
	installDir string

	// logLevel sets the minimum diagnostic level.
	logLevel string

	// rootCmd represents the base command launching the selected game.
	rootCmd = &cobra.Command{
		Use:       "board-launcher [chess|checkers]",
		Short:     "Prepare the appliance session and start the selected board game",
		Long:      "Resolve the requested game variant, establish the display, audio and runtime environment of the user session, escalate privilege for hardware access and hand off execution to the game. On success the process image is replaced and this command never returns.",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(launcher.VariantChess), string(launcher.VariantCheckers)},
		RunE: func(_ *cobra.Command, args []string) error {
			// No signal handlers on purpose: the launcher stays interruptible
			// by default and installs nothing the game would inherit.
			ctx := context.Background()

			if level, ok := logger.ParseLogLevel(logLevel); ok {
				logger.SetLevel(level)
			}

			variant := ""
			if len(args) > 0 {
				variant = args[0]
			}

			return launcher.Run(ctx, &launcher.Options{
				Variant:    variant,
				InstallDir: installDir,
				LogLevel:   logLevel,
			})
		},
	}
)

// Execute runs the board-launcher CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&installDir, "install-dir", "d", "", "installation root (default: the launcher's own directory)")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "info", "log level (debug, info, warn, error)")
}
