package installer

import (
	"context"
	"crypto"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/ledboard/board-bootstrap/internal/logger"

	// Ensure SHA256 is available for engine checksum verification.
	_ "crypto/sha256"
)

// engineFileMode makes the installed engine executable.
const engineFileMode os.FileMode = 0o755

// engineChecksumFunction verifies the downloaded engine binary.
const engineChecksumFunction = crypto.SHA256

// installEngine downloads the chess engine binary and applies it atomically
// with checksum verification.
func installEngine(ctx context.Context, opts *Options) error {
	if opts.EngineURL == "" {
		logger.Info(ctx, "No engine URL configured, skipping")
		return nil
	}

	dest := filepath.Join(opts.InstallDir, engineDestName)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create engine directory: %w", err)
	}

	var checksum []byte

	if opts.EngineChecksum != "" {
		decoded, err := base64.StdEncoding.DecodeString(opts.EngineChecksum)
		if err != nil {
			return fmt.Errorf("decode engine checksum: %w", err)
		}

		checksum = decoded
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.EngineURL, nil)
	if err != nil {
		return fmt.Errorf("build engine request: %w", err)
	}

	response, err := http.DefaultClient.Do(request)
	if err != nil {
		return fmt.Errorf("download engine: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("download engine: %s returned %s", opts.EngineURL, response.Status)
	}

	// Apply swaps the target aside before renaming the new file in, so the
	// target must exist even on first install.
	if _, err = os.Stat(dest); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("probe engine destination: %w", err)
		}

		placeholder, createErr := os.Create(filepath.Clean(dest))
		if createErr != nil {
			return fmt.Errorf("create engine destination: %w", createErr)
		}

		if err = placeholder.Close(); err != nil {
			return fmt.Errorf("create engine destination: %w", err)
		}
	}

	logger.Infof(ctx, "Applying engine binary to %s", dest)

	if err = goupdate.Apply(response.Body, goupdate.Options{
		TargetPath: dest,
		TargetMode: engineFileMode,
		Checksum:   checksum,
		Hash:       engineChecksumFunction,
	}); err != nil {
		return fmt.Errorf("apply engine binary: %w", err)
	}

	// Apply leaves the previous binary next to the new one.
	if _, err = os.Stat(dest + ".old"); err == nil {
		_ = os.Remove(dest + ".old")
	}

	return nil
}
