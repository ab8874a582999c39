package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ledboard/board-bootstrap/internal/logger"
)

// Default install locations. Destinations are fields on Options so tests can
// redirect them into a temporary directory.
const (
	defaultSplashDest = "/usr/share/plymouth/themes/pix/splash.png"

	splashSourceName = "assets/splash.png"
	engineDestName   = "engines/stockfish"
)

// errInstallIncomplete is returned when at least one provisioning step failed.
var errInstallIncomplete = errors.New("installation incomplete")

// Options are inputs accepted by the installer entry point.
type Options struct {
	// InstallDir is the installation root.
	InstallDir string
	// Home is the target user's home directory. Empty means the current user's.
	Home string
	// ApplicationsDir overrides where .desktop launchers are written.
	ApplicationsDir string
	// AutostartDir overrides where the autostart entry is written.
	AutostartDir string
	// SplashDest overrides the boot splash destination.
	SplashDest string
	// EngineURL is where the chess engine binary is downloaded from.
	// Empty skips the engine step.
	EngineURL string
	// EngineChecksum is the base64-encoded SHA-256 of the engine binary.
	// Empty disables verification.
	EngineChecksum string
}

// step is one independent provisioning action. Steps have no ordering or
// consistency requirements between them.
type step struct {
	name string
	run  func(ctx context.Context, opts *Options) error
}

// Run executes every provisioning step once. A failing step is reported and
// the remaining steps still run; the combined error is returned at the end.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "board-installer")

	if err := normalize(opts); err != nil {
		return err
	}

	steps := []step{
		{name: "desktop entries", run: installDesktopEntries},
		{name: "autostart entry", run: installAutostartEntry},
		{name: "splash image", run: installSplash},
		{name: "chess engine", run: installEngine},
	}

	var failed []error

	for _, s := range steps {
		logger.Infof(ctx, "Installing %s", s.name)

		if err := s.run(ctx, opts); err != nil {
			logger.ErrorKV(ctx, "Step failed", "step", s.name, "error", err)
			failed = append(failed, fmt.Errorf("%s: %w", s.name, err))
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%w: %w", errInstallIncomplete, errors.Join(failed...))
	}

	logger.Info(ctx, "Installation complete")

	return nil
}

// normalize fills in defaulted option fields.
func normalize(opts *Options) error {
	if opts.InstallDir == "" {
		return errors.New("installation root is required")
	}

	if opts.Home == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}

		opts.Home = home
	}

	if opts.ApplicationsDir == "" {
		opts.ApplicationsDir = filepath.Join(opts.Home, ".local", "share", "applications")
	}

	if opts.AutostartDir == "" {
		opts.AutostartDir = filepath.Join(opts.Home, ".config", "autostart")
	}

	if opts.SplashDest == "" {
		opts.SplashDest = defaultSplashDest
	}

	return nil
}
