package ntpfleet

// eventType describes an event type.
type eventType = string

const (
	eventWarning            eventType = "warning"
	eventAcquired           eventType = "acquired lock"
	eventDaemonProbed       eventType = "daemon probed"
	eventInstanceSpawned    eventType = "instance spawned"
	eventInstanceSpawnError eventType = "instance spawn error"
	eventInstanceExited     eventType = "instance exited"
	eventLimiterAttached    eventType = "limiter attached"
	eventLimiterAbsent      eventType = "limiter absent"
	eventLimiterTimeout     eventType = "limiter timed out"
	eventStaleInstance      eventType = "stale instance cleaned"
	eventFleetRunning       eventType = "fleet running"
	eventFleetStopped       eventType = "fleet stopped"
	eventHealthCheckFailed  eventType = "health check failed"
)

// Event is an interface describing known events.
type Event interface {
	Type() string
	event()
}

// NewEvent creates a new event from the given event type. It is used primarily
// for decoding events from its type. Nil is returned if the event type is
// unknown.
func NewEvent(eventType string) Event {
	switch eventType {
	case eventWarning:
		return &EventWarning{}
	case eventAcquired:
		return &EventAcquired{}
	case eventDaemonProbed:
		return &EventDaemonProbed{}
	case eventInstanceSpawned:
		return &EventInstanceSpawned{}
	case eventInstanceSpawnError:
		return &EventInstanceSpawnError{}
	case eventInstanceExited:
		return &EventInstanceExited{}
	case eventLimiterAttached:
		return &EventLimiterAttached{}
	case eventLimiterAbsent:
		return &EventLimiterAbsent{}
	case eventLimiterTimeout:
		return &EventLimiterTimeout{}
	case eventStaleInstance:
		return &EventStaleInstance{}
	case eventFleetRunning:
		return &EventFleetRunning{}
	case eventFleetStopped:
		return &EventFleetStopped{}
	case eventHealthCheckFailed:
		return &EventHealthCheckFailed{}
	default:
		return nil
	}
}

// EventWarning is emitted when a non-fatal error occurs.
type EventWarning struct {
	Component string `json:"component"`
	Error     string `json:"error"`
}

func (ev *EventWarning) Type() string { return eventWarning }
func (ev *EventWarning) event()       {}

// EventAcquired is emitted when the flock (i.e. write lock on the journal) is
// acquired, which is on startup. It marks the boundary between supervisor
// runs when the journal is read backwards.
type EventAcquired struct{}

func (ev *EventAcquired) Type() string { return eventAcquired }
func (ev *EventAcquired) event()       {}

// EventDaemonProbed is emitted once the daemon executable's version has been
// mapped to its supported extension flags.
type EventDaemonProbed struct {
	Path       string   `json:"path"`
	Version    string   `json:"version"`
	Extensions []string `json:"extensions"`
}

func (ev *EventDaemonProbed) Type() string { return eventDaemonProbed }
func (ev *EventDaemonProbed) event()       {}

// EventInstanceSpawned is emitted when a planned instance has been started.
type EventInstanceSpawned struct {
	Name string `json:"name"`
	PID  int    `json:"pid"`
}

func (ev *EventInstanceSpawned) Type() string { return eventInstanceSpawned }
func (ev *EventInstanceSpawned) event()       {}

// EventInstanceSpawnError is emitted when a planned instance fails to start.
// The fleet keeps running with the instances that did start.
type EventInstanceSpawnError struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

func (ev *EventInstanceSpawnError) Type() string { return eventInstanceSpawnError }
func (ev *EventInstanceSpawnError) event()       {}

// EventInstanceExited is emitted when a tracked instance has exited for any
// reason.
type EventInstanceExited struct {
	Name     string `json:"name"`
	PID      int    `json:"pid"`
	Error    string `json:"error,omitempty"`
	ExitCode int    `json:"exit_code"` // -1 if interrupted or terminated
}

// IsGraceful returns true if the instance stopped gracefully (i.e. on SIGINT).
func (ev EventInstanceExited) IsGraceful() bool {
	return ev.ExitCode != -1
}

func (ev *EventInstanceExited) Type() string { return eventInstanceExited }
func (ev *EventInstanceExited) event()       {}

// EventLimiterAttached is emitted when the external CPU limiter has been
// attached to a running instance.
type EventLimiterAttached struct {
	Name       string `json:"name"`
	PID        int    `json:"pid"`
	LimiterPID int    `json:"limiter_pid"`
	Percent    int    `json:"percent"`
}

func (ev *EventLimiterAttached) Type() string { return eventLimiterAttached }
func (ev *EventLimiterAttached) event()       {}

// EventLimiterAbsent is emitted when no limiter executable is available; the
// instance runs unthrottled.
type EventLimiterAbsent struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

func (ev *EventLimiterAbsent) Type() string { return eventLimiterAbsent }
func (ev *EventLimiterAbsent) event()       {}

// EventLimiterTimeout is emitted when the instance's pidfile did not
// materialize within the attach retry budget. Distinct from EventLimiterAbsent
// so operators can tell a slow daemon from a missing limiter.
type EventLimiterTimeout struct {
	Name    string `json:"name"`
	PIDFile string `json:"pid_file"`
}

func (ev *EventLimiterTimeout) Type() string { return eventLimiterTimeout }
func (ev *EventLimiterTimeout) event()       {}

// EventStaleInstance is emitted when a leftover of a previous supervisor run
// has been cleaned up (killed if still alive, pidfile and socket removed).
type EventStaleInstance struct {
	Name   string `json:"name"`
	PID    int    `json:"pid"`
	Killed bool   `json:"killed"`
}

func (ev *EventStaleInstance) Type() string { return eventStaleInstance }
func (ev *EventStaleInstance) event()       {}

// EventFleetRunning is emitted once every plan has been attempted and the
// supervisor has entered its terminal wait.
type EventFleetRunning struct {
	Planned int `json:"planned"`
	Running int `json:"running"`
}

func (ev *EventFleetRunning) Type() string { return eventFleetRunning }
func (ev *EventFleetRunning) event()       {}

// EventFleetStopped is emitted after every tracked instance has been confirmed
// stopped and the run directory scrubbed.
type EventFleetStopped struct{}

func (ev *EventFleetStopped) Type() string { return eventFleetStopped }
func (ev *EventFleetStopped) event()       {}

// EventHealthCheckFailed is emitted when a public instance fails to answer a
// time query.
type EventHealthCheckFailed struct {
	Name  string `json:"name"`
	Addr  string `json:"addr"`
	Error string `json:"error"`
}

func (ev *EventHealthCheckFailed) Type() string { return eventHealthCheckFailed }
func (ev *EventHealthCheckFailed) event()       {}
