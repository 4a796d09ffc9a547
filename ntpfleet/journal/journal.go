// Package journal implements ntpfleet's Journaler interface on top of a
// file, with a file lock so that only one supervisor can run against the same
// journal (and therefore the same fleet) at a time.
package journal

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/ShayNeeo/ntpfleet/ntpfleet"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// multiWriter combines multiple journalers.
type multiWriter struct {
	writers []ntpfleet.Journaler
}

// MultiWriter creates a journaler that writes to every passed journaler and
// returns the first write error.
func MultiWriter(ws ...ntpfleet.Journaler) ntpfleet.Journaler {
	return &multiWriter{ws}
}

func (w *multiWriter) Write(event ntpfleet.Event) error {
	var firstErr error
	for _, writer := range w.writers {
		if err := writer.Write(event); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// FileLockJournaler is a journaler that uses a file lock (flock) to lock the
// given file and writes to it. The FileLockJournaler instance must be closed
// by the caller or by the operating system when the application exits.
//
// Reading the Journal
//
// The caller does not need to acquire the file lock in order to read the
// written journal, as each Write operation performed on the file is
// guaranteed to always be valid and atomic.
type FileLockJournaler struct {
	Writer
	f *os.File
	l *flock.Flock
}

// ErrLockedElsewhere is returned if NewFileLockJournaler can't acquire the
// file lock, meaning another supervisor already owns the fleet.
var ErrLockedElsewhere = errors.New("file already locked elsewhere")

// NewFileLockJournaler creates a new file journaler if it can acquire a flock
// on the path. It returns an error if it fails to acquire the lock.
func NewFileLockJournaler(path string) (*FileLockJournaler, error) {
	return newFileLockJournaler(nil, path)
}

// NewFileLockJournalerWait creates a new file journaler but waits until the
// lock can be acquired or until the context times out.
func NewFileLockJournalerWait(ctx context.Context, path string) (*FileLockJournaler, error) {
	return newFileLockJournaler(ctx, path)
}

func newFileLockJournaler(ctx context.Context, path string) (*FileLockJournaler, error) {
	// Ensure the directory exists.
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, errors.Wrap(err, "failed to create journal directory")
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND|os.O_CREATE|os.O_SYNC, 0600)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}

	l := flock.New(path)

	var locked bool
	if ctx != nil {
		locked, err = l.TryLockContext(ctx, 25*time.Millisecond)
	} else {
		locked, err = l.TryLock()
	}

	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "failed to acquire lock")
	}

	if !locked {
		f.Close()
		return nil, ErrLockedElsewhere
	}

	return &FileLockJournaler{
		Writer: NewWriter(f),
		f:      f,
		l:      l,
	}, nil
}

// Reader creates a backward reader over the journal file's current contents.
func (f *FileLockJournaler) Reader() *Reader {
	return NewReader(f.f)
}

// Close closes the file and releases the flock.
func (f *FileLockJournaler) Close() error {
	f.f.Close()
	return f.l.Unlock()
}
