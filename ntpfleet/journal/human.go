package journal

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ShayNeeo/ntpfleet/ntpfleet"
)

// HumanWriter is a journaler that writes one human-readable line per event.
// It exists to mirror the JSON journal onto stderr.
type HumanWriter struct {
	mu sync.Mutex
	w  io.Writer
}

var _ ntpfleet.Journaler = (*HumanWriter)(nil)

// NewHumanWriter creates a new human-readable journal writer.
func NewHumanWriter(w io.Writer) *HumanWriter {
	return &HumanWriter{w: w}
}

// Write formats the event as a single line.
func (h *HumanWriter) Write(ev ntpfleet.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, err := fmt.Fprintf(h.w, "%s %s: %s\n",
		time.Now().Format(time.RFC3339), ev.Type(), describe(ev))
	return err
}

func describe(ev ntpfleet.Event) string {
	switch ev := ev.(type) {
	case *ntpfleet.EventWarning:
		return fmt.Sprintf("[%s] %s", ev.Component, ev.Error)
	case *ntpfleet.EventDaemonProbed:
		return fmt.Sprintf("%s version %s extensions %v", ev.Path, ev.Version, ev.Extensions)
	case *ntpfleet.EventInstanceSpawned:
		return fmt.Sprintf("%s pid %d", ev.Name, ev.PID)
	case *ntpfleet.EventInstanceSpawnError:
		return fmt.Sprintf("%s: %s", ev.Name, ev.Reason)
	case *ntpfleet.EventInstanceExited:
		return fmt.Sprintf("%s pid %d exit code %d %s", ev.Name, ev.PID, ev.ExitCode, ev.Error)
	case *ntpfleet.EventLimiterAttached:
		return fmt.Sprintf("%s pid %d limiter pid %d at %d%%", ev.Name, ev.PID, ev.LimiterPID, ev.Percent)
	case *ntpfleet.EventLimiterAbsent:
		return fmt.Sprintf("%s runs unlimited: %s", ev.Name, ev.Reason)
	case *ntpfleet.EventLimiterTimeout:
		return fmt.Sprintf("%s runs unlimited: no pidfile at %s", ev.Name, ev.PIDFile)
	case *ntpfleet.EventStaleInstance:
		return fmt.Sprintf("%s pid %d (killed: %t)", ev.Name, ev.PID, ev.Killed)
	case *ntpfleet.EventFleetRunning:
		return fmt.Sprintf("%d of %d planned instances", ev.Running, ev.Planned)
	case *ntpfleet.EventHealthCheckFailed:
		return fmt.Sprintf("%s at %s: %s", ev.Name, ev.Addr, ev.Error)
	default:
		return ""
	}
}
