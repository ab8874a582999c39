//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"fmt"
	"os"

	ps "github.com/mitchellh/go-ps"

	"github.com/ledboard/board-bootstrap/internal/logger"
)

// FindByName returns the PIDs of running processes whose executable name
// matches one of the provided names. The calling process is excluded.
func FindByName(names ...string) ([]int, error) {
	wanted := make(map[string]struct{}, len(names))
	for _, name := range names {
		wanted[name] = struct{}{}
	}

	processes, err := ps.Processes()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	self := os.Getpid()

	var pids []int

	for _, process := range processes {
		if process.Pid() == self {
			continue
		}

		if _, found := wanted[process.Executable()]; found {
			pids = append(pids, process.Pid())
		}
	}

	return pids, nil
}

// TerminateByName kills running processes whose executable name matches one
// of the provided names. Used by the synchronizer to stop the game before it
// rewrites the installation tree underneath it.
func TerminateByName(ctx context.Context, names ...string) error {
	pids, err := FindByName(names...)
	if err != nil {
		return err
	}

	for _, pid := range pids {
		process, err := os.FindProcess(pid)
		if err != nil {
			return fmt.Errorf("find process %d: %w", pid, err)
		}

		logger.Infof(ctx, "Stopping process %d before update", pid)

		if err = process.Kill(); err != nil {
			return fmt.Errorf("kill process %d: %w", pid, err)
		}
	}

	return nil
}
