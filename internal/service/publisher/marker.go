package publisher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/pybi-publisher/internal/logger"
)

// MarkerFilename marks that a run is in progress in a work directory.
const MarkerFilename = ".pybi-publisher.lock"

// errAlreadyRunning is returned when a live process holds the marker.
var errAlreadyRunning = errors.New("another run is in progress")

// acquireMarker writes the run marker into dir and returns its release function.
// A marker left by a process that no longer exists is replaced.
func acquireMarker(ctx context.Context, dir string) (func(), error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	path := filepath.Join(dir, MarkerFilename)

	logger.Debug(ctx, "Checking for the presence of a run marker")

	if pid, ok := readMarker(path); ok {
		alive, err := isAlive(pid)
		if err != nil {
			return nil, fmt.Errorf("check marker owner: %w", err)
		}

		if alive {
			return nil, fmt.Errorf("pid %d holds %s: %w", pid, path, errAlreadyRunning)
		}

		logger.InfoKV(ctx, "Removing stale run marker", "pid", pid)

		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale marker: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%s: %w", path, errAlreadyRunning)
		}

		return nil, fmt.Errorf("create marker: %w", err)
	}

	_, err = file.WriteString(strconv.Itoa(os.Getpid()))
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write marker: %w", err)
	}

	return func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.WarnKV(ctx, "Failed to remove run marker", "path", path, "error", err)
		}
	}, nil
}

// readMarker returns the pid stored in the marker at path.
// Unreadable or malformed markers count as stale.
func readMarker(path string) (int, bool) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return 0, false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(contents)))
	if err != nil || pid <= 0 {
		return 0, true
	}

	return pid, true
}

func isAlive(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}

	process, err := ps.FindProcess(pid)
	if err != nil {
		return false, err
	}

	return process != nil, nil
}
