package ntpfleet

import (
	"context"
	"fmt"
	osexec "os/exec"
	"strconv"
	"time"

	"github.com/ShayNeeo/ntpfleet/ntpfleet/exec"
	"github.com/pkg/errors"
)

// LimiterAttachTimeout bounds the wait for an instance's pidfile before
// giving up on attaching the limiter. The instance keeps running unthrottled
// past it.
var LimiterAttachTimeout = 5 * time.Second

// AttachResult is the outcome of an attach-after-spawn attempt.
type AttachResult int

const (
	// LimiterAttached means the limiter process is running against the
	// instance.
	LimiterAttached AttachResult = iota

	// LimiterAbsent means no limiter executable is available; the instance
	// runs unlimited.
	LimiterAbsent

	// LimiterTimedOut means the instance's pidfile never materialized within
	// the attach budget; the instance runs unlimited.
	LimiterTimedOut
)

func (r AttachResult) String() string {
	switch r {
	case LimiterAttached:
		return "attached"
	case LimiterAbsent:
		return "absent"
	case LimiterTimedOut:
		return "timed out"
	default:
		return fmt.Sprintf("AttachResult(%d)", int(r))
	}
}

// Limiter constrains a daemon instance to a CPU share through an external
// limiter executable. Every failure mode degrades to "unlimited": a missing
// limiter or a slow pidfile never aborts the fleet.
type Limiter struct {
	// Path is the limiter executable. Empty or unresolvable means every
	// attach reports LimiterAbsent.
	Path string

	// AttachTimeout bounds the pidfile wait; zero uses LimiterAttachTimeout.
	AttachTimeout time.Duration

	// startProc and lookPath are seams for tests.
	startProc func(argv []string) (exec.Process, error)
	lookPath  func(file string) (string, error)
}

// NewLimiter creates a limiter around the given executable path.
func NewLimiter(path string) *Limiter {
	return &Limiter{
		Path:      path,
		startProc: exec.StartProcess,
		lookPath:  osexec.LookPath,
	}
}

// resolve returns the usable limiter executable path, or "" when absent.
func (l *Limiter) resolve() string {
	if l.Path == "" {
		return ""
	}

	path, err := l.lookPath(l.Path)
	if err != nil {
		return ""
	}

	return path
}

// Attach waits for the instance's pidfile and starts the limiter against the
// discovered PID. The returned process is nil unless the result is
// LimiterAttached; the error is only ever the limiter's own spawn failure.
func (l *Limiter) Attach(ctx context.Context, plan InstancePlan) (exec.Process, AttachResult, error) {
	path := l.resolve()
	if path == "" {
		return nil, LimiterAbsent, nil
	}

	timeout := l.AttachTimeout
	if timeout == 0 {
		timeout = LimiterAttachTimeout
	}

	pid, err := WaitPIDFile(ctx, plan.PIDFile, timeout)
	if err != nil {
		return nil, LimiterTimedOut, nil
	}

	// -z makes the limiter exit when its target does, so limiter processes
	// never outlive the fleet.
	argv := []string{
		path,
		"-p", strconv.Itoa(pid),
		"-l", strconv.Itoa(plan.CPULimitPercent),
		"-z",
	}

	proc, err := l.startProc(argv)
	if err != nil {
		return nil, LimiterAbsent, errors.Wrap(err, "failed to start limiter")
	}

	return proc, LimiterAttached, nil
}

// WrapArgv prepends the limiter invocation to a daemon argument vector so the
// limiter becomes the parent of the spawned daemon. The argv is returned
// unchanged when no limiter is available; ok reports whether it was wrapped.
func (l *Limiter) WrapArgv(argv []string, percent int) ([]string, bool) {
	path := l.resolve()
	if path == "" {
		return argv, false
	}

	wrapped := make([]string, 0, len(argv)+4)
	wrapped = append(wrapped, path, "-l", strconv.Itoa(percent), "-z")
	wrapped = append(wrapped, argv...)

	return wrapped, true
}
