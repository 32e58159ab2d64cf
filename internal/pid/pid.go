// Package pid keeps a single daemon instance per machine. Register access
// must never be shared between two processes.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/hwcontrol/internal/errors"
)

const (
	pidFile = "hwcontrol.pid"
)

// File is the PID file of one daemon instance.
type File struct {
	path string
}

// New returns the PID file in dir, or in the temp dir when dir is empty.
func New(dir string) *File {
	if dir == "" {
		dir = os.TempDir()
	}
	return &File{path: filepath.Join(dir, pidFile)}
}

func (f *File) Path() string {
	return f.path
}

// Write records the current process ID. It fails with ErrAlreadyRunning
// while another live process owns the file; a stale file is replaced.
func (f *File) Write() error {
	errFactory := errors.New()

	if owner, ok := f.owner(); ok && owner != os.Getpid() {
		process, err := os.FindProcess(owner)
		if err != nil {
			return errFactory.Wrap(errors.ErrInternal, err)
		}
		if err := process.Signal(syscall.Signal(0)); err == nil {
			return errFactory.WithData(errors.ErrAlreadyRunning, owner)
		}
	}

	if err := os.WriteFile(f.path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// owner reads the recorded process ID. Unreadable content counts as no
// owner.
func (f *File) owner() (int, bool) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}

	return pid, true
}

// Remove deletes the PID file. A missing file is not an error.
func (f *File) Remove() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}
