package installer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ledboard/board-bootstrap/internal/logger"
)

// desktopEntry describes one generated launcher file.
type desktopEntry struct {
	filename string
	title    string
	variant  string
	icon     string
}

var desktopEntries = []desktopEntry{
	{filename: "board-chess.desktop", title: "Chess", variant: "chess", icon: "assets/chess.png"},
	{filename: "board-checkers.desktop", title: "Checkers", variant: "checkers", icon: "assets/checkers.png"},
}

// installDesktopEntries writes a .desktop launcher per variant.
func installDesktopEntries(_ context.Context, opts *Options) error {
	if err := os.MkdirAll(opts.ApplicationsDir, 0o755); err != nil {
		return fmt.Errorf("create applications directory: %w", err)
	}

	launcher := filepath.Join(opts.InstallDir, "board-launcher")

	for _, entry := range desktopEntries {
		content := fmt.Sprintf(`[Desktop Entry]
Type=Application
Name=%s
Comment=Play %s on the board
Exec=%s %s
Icon=%s
Terminal=false
Categories=Game;BoardGame;
`, entry.title, entry.title, launcher, entry.variant, filepath.Join(opts.InstallDir, entry.icon))

		path := filepath.Join(opts.ApplicationsDir, entry.filename)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", entry.filename, err)
		}
	}

	return nil
}

// installAutostartEntry writes the autostart entry launching the default
// variant on login.
func installAutostartEntry(_ context.Context, opts *Options) error {
	if err := os.MkdirAll(opts.AutostartDir, 0o755); err != nil {
		return fmt.Errorf("create autostart directory: %w", err)
	}

	content := fmt.Sprintf(`[Desktop Entry]
Type=Application
Name=Board Games
Exec=%s
X-GNOME-Autostart-enabled=true
`, filepath.Join(opts.InstallDir, "board-launcher"))

	path := filepath.Join(opts.AutostartDir, "board-launcher.desktop")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write autostart entry: %w", err)
	}

	return nil
}

// installSplash copies the boot splash image into place. A missing source
// image is logged and skipped: not every build ships one.
func installSplash(ctx context.Context, opts *Options) error {
	source := filepath.Join(opts.InstallDir, splashSourceName)

	in, err := os.Open(filepath.Clean(source))
	if err != nil {
		if os.IsNotExist(err) {
			logger.Infof(ctx, "No splash image at %s, skipping", source)
			return nil
		}

		return fmt.Errorf("open splash image: %w", err)
	}
	defer in.Close()

	if err = os.MkdirAll(filepath.Dir(opts.SplashDest), 0o755); err != nil {
		return fmt.Errorf("create splash directory: %w", err)
	}

	out, err := os.OpenFile(filepath.Clean(opts.SplashDest), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create splash destination: %w", err)
	}

	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy splash image: %w", err)
	}

	return out.Close()
}
