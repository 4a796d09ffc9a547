package ntpfleet

import (
	"os"
	"path/filepath"
	"time"

	"github.com/ShayNeeo/ntpfleet/ntpfleet/exec"
)

// StaleKillTimeout bounds how long a leftover instance of a previous
// supervisor run gets to exit after being interrupted.
var StaleKillTimeout = 5 * time.Second

// CleanupPreviousRun disposes of whatever a previous supervisor invocation
// left behind: leftover instances still alive are interrupted (and killed if
// they linger), and their pidfiles and control sockets are removed. A fresh
// run must never inherit processes it did not probe and launch itself.
func CleanupPreviousRun(prev *PreviousRun, runDir string, j Journaler) {
	for name, pid := range prev.Leftover {
		killed := false

		if PIDAlive(pid) {
			killed = true
			stopStale(pid)
		}

		if err := RemovePIDFile(filepath.Join(runDir, name+".pid")); err != nil {
			j.Write(&EventWarning{
				Component: "recovery",
				Error:     err.Error(),
			})
		}
		if err := os.Remove(filepath.Join(runDir, name+".sock")); err != nil && !os.IsNotExist(err) {
			j.Write(&EventWarning{
				Component: "recovery",
				Error:     err.Error(),
			})
		}

		j.Write(&EventStaleInstance{
			Name:   name,
			PID:    pid,
			Killed: killed,
		})
	}
}

// stopStale interrupts the process and escalates to SIGKILL when it lingers
// past the stale-kill budget.
func stopStale(pid int) {
	proc, err := exec.FindProcess(pid)
	if err != nil {
		return
	}

	if err := proc.Signal(os.Interrupt); err != nil {
		proc.Kill()
		return
	}

	deadline := time.Now().Add(StaleKillTimeout)
	for time.Now().Before(deadline) {
		if !PIDAlive(pid) {
			return
		}
		time.Sleep(PidfilePollInterval)
	}

	proc.Kill()
}
