// Package exec abstracts package os' Process implementation so that the
// supervisor's lifecycle logic can be exercised without spawning real daemons.
package exec

import (
	"os"
	"runtime"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Process describes a spawned daemon (or limiter) process.
type Process interface {
	PID() int
	Signal(os.Signal) error
	Kill() error
	Wait() ExitStatus
}

// ExitStatus is a process' exit status.
type ExitStatus struct {
	PID   int
	Code  int // -1 for interrupt
	Error error
}

type process struct {
	*os.Process
}

var _ Process = process{}

// FindProcess creates a new Process from an existing process ID. It is used
// when recovering instances left behind by a previous supervisor.
func FindProcess(pid int) (Process, error) {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil, err
	}

	return process{p}, nil
}

// StartProcess spawns argv[0] with the given argument vector. The child is
// wired to die with the supervisor and cannot disown itself into a grandchild
// the supervisor would lose track of.
func StartProcess(argv []string) (Process, error) {
	// Lock this goroutine to the OS thread for Pdeathsig.
	// See https://github.com/golang/go/issues/27505.
	runtime.LockOSThread()

	// Linux-only: become the subreaper so a daemon that forks is reparented
	// to us instead of init, keeping the whole fleet in our process group's
	// view.
	if err := unix.Prctl(unix.PR_SET_CHILD_SUBREAPER, 1, 0, 0, 0); err != nil {
		return nil, errors.Wrap(err, "failed to set subreaper")
	}

	p, err := os.StartProcess(argv[0], argv, &os.ProcAttr{
		Sys: &syscall.SysProcAttr{Pdeathsig: syscall.SIGTERM},
	})
	if err != nil {
		return nil, err
	}

	return process{p}, nil
}

func (proc process) PID() int {
	return proc.Pid
}

// Wait waits for the process to exit. It must be called on the same goroutine
// as StartProcess.
func (proc process) Wait() ExitStatus {
	s, err := proc.Process.Wait()
	runtime.UnlockOSThread()

	status := ExitStatus{
		PID:   proc.Pid,
		Code:  -1,
		Error: err,
	}
	if s != nil {
		status.Code = s.ExitCode()
	}

	return status
}
