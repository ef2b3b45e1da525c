// Package pid guards against concurrently running daemon instances.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"codeberg.org/welterm/udsd/internal/errors"
)

const pidFile = "udsd.pid"

func path() string {
	return filepath.Join(os.TempDir(), pidFile)
}

// Write writes the current process ID to the PID file. An existing
// file naming a live process wins; a stale or malformed one is
// overwritten.
func Write() error {
	return writeAt(path())
}

func writeAt(path string) error {
	errFactory := errors.New()

	if data, err := os.ReadFile(path); err == nil {
		if otherPID, err := strconv.Atoi(string(data)); err == nil && processAlive(otherPID) {
			return errFactory.WithData(errors.ErrAlreadyRunning, otherPID)
		}
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// processAlive probes with signal 0, which checks existence without
// delivering anything.
func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return process.Signal(syscall.Signal(0)) == nil
}

// Remove removes the PID file.
func Remove() error {
	return removeAt(path())
}

func removeAt(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}
