package journal

import (
	"bytes"
	"encoding/json"
	"io"
	"time"

	"github.com/ShayNeeo/ntpfleet/ntpfleet"
	"github.com/pkg/errors"
)

// Event describes the JSON structure of an event to be written.
type Event struct {
	Time time.Time      `json:"time"`
	Type string         `json:"type"`
	Data ntpfleet.Event `json:"data"`
}

// Writer is a simple journaler that writes line-delimited JSON events into
// the writer.
type Writer struct{ w io.Writer }

var _ ntpfleet.Journaler = (*Writer)(nil)

// NewWriter creates a new journal writer.
func NewWriter(w io.Writer) Writer {
	return Writer{w}
}

// Write writes the given event into the writer. Writes are concurrently safe
// and are atomic.
func (l Writer) Write(ev ntpfleet.Event) error {
	evJSON := Event{
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
