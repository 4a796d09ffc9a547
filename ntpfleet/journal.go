package ntpfleet

import (
	"bytes"
	"encoding/json"
	"io"
	"time"

	"github.com/pkg/errors"
)

// Journaler describes an event logger.
type Journaler interface {
	Write(Event) error
}

type writerJournaler struct{ w io.Writer }

// NewWriterJournaler creates a new journaler that writes line-delimited JSON
// events into the writer.
func NewWriterJournaler(w io.Writer) Journaler {
	return &writerJournaler{w}
}

// Write writes the given event into the writer. Writes are concurrently safe
// and are atomic.
func (l *writerJournaler) Write(ev Event) error {
	type eventJSON struct {
		Time time.Time `json:"time"`
		Type string    `json:"type"`
		Data Event     `json:"data"`
	}

	evJSON := eventJSON{
		Time: time.Now(),
		Type: ev.Type(),
		Data: ev,
	}

	buf := bytes.Buffer{}
	buf.Grow(512)

	if err := json.NewEncoder(&buf).Encode(evJSON); err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	// Append a new line.
	buf.WriteByte('\n')

	_, err := l.w.Write(buf.Bytes())
	if err != nil {
		return errors.Wrap(err, "failed to write event")
	}

	return nil
}

// EventReader describes a journal reader that yields events newest-first.
type EventReader interface {
	Read() (Event, time.Time, error)
}

// PreviousRun describes what a previous supervisor invocation left behind:
// instances that were spawned but never recorded as exited.
type PreviousRun struct {
	// Leftover maps instance names to the last PID they were spawned with.
	Leftover map[string]int
}

// ReadPreviousRun scans events newest-first until the previous run's lock
// acquisition and returns the instances it never saw exit. It must be called
// before the current run writes its own acquisition marker. An empty (but
// non-nil) PreviousRun is returned for a journal with no previous run.
func ReadPreviousRun(r EventReader) (*PreviousRun, error) {
	prev := &PreviousRun{Leftover: map[string]int{}}

	// PIDs already seen exiting; a spawn matching one of these is accounted
	// for.
	exited := map[int]bool{}

	for {
		ev, _, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return prev, nil
			}
			return nil, errors.Wrap(err, "failed to read journal")
		}

		switch ev := ev.(type) {
		case *EventAcquired:
			// Start marker of the previous run; everything older is
			// accounted for by that run's own recovery.
			return prev, nil

		case *EventInstanceExited:
			exited[ev.PID] = true

		case *EventInstanceSpawned:
			if exited[ev.PID] {
				continue
			}
			// Newest-first scan: keep the most recent spawn per name.
			if _, ok := prev.Leftover[ev.Name]; !ok {
				prev.Leftover[ev.Name] = ev.PID
			}
		}
	}
}
