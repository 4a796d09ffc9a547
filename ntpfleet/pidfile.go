package ntpfleet

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// PidfilePollInterval is the polling fallback interval while waiting for a
// pidfile to materialize.
var PidfilePollInterval = 200 * time.Millisecond

// ErrPidfileTimeout is returned when a pidfile does not name a live process
// within the wait budget.
var ErrPidfileTimeout = errors.New("timed out waiting for pidfile")

// ReadPIDFile reads a pidfile written by the daemon itself. A missing, empty
// or non-numeric file means the daemon is not ready yet and is reported as
// (0, false); only the presence of a positive ASCII integer counts.
func ReadPIDFile(path string) (int, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return 0, false
	}

	return pid, true
}

// PIDAlive reports whether the given PID names a live process, using a
// zero signal probe.
func PIDAlive(pid int) bool {
	return unix.Kill(pid, 0) == nil
}

// WaitPIDFile blocks until the pidfile at path contains a valid PID or the
// timeout elapses. It watches the pidfile's directory for creation events and
// falls back to plain polling when the watch cannot be established (or for
// writes the watch misses).
func WaitPIDFile(ctx context.Context, path string, timeout time.Duration) (int, error) {
	if pid, ok := ReadPIDFile(path); ok {
		return pid, nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var fsEvents chan fsnotify.Event

	w, err := fsnotify.NewWatcher()
	if err == nil {
		defer w.Close()

		if err := w.Add(filepath.Dir(path)); err == nil {
			fsEvents = w.Events
		}
	}

	tick := time.NewTicker(PidfilePollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0, errors.Wrapf(ErrPidfileTimeout, "%s", path)

		case ev := <-fsEvents:
			if ev.Name != path {
				continue
			}

		case <-tick.C:
		}

		if pid, ok := ReadPIDFile(path); ok {
			return pid, nil
		}
	}
}

// RemovePIDFile removes a pidfile, tolerating its absence.
func RemovePIDFile(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove pidfile")
	}
	return nil
}
