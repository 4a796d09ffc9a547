package ntpfleet

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCleanupPreviousRun(t *testing.T) {
	runDir := t.TempDir()

	pidfile := filepath.Join(runDir, "ntp1.pid")
	socket := filepath.Join(runDir, "ntp1.sock")

	// A PID far above any plausible pid_max stands in for a dead leftover.
	const deadPID = 1 << 22

	if err := os.WriteFile(pidfile, []byte("4194304\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(socket, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	j := mockJournal{}

	CleanupPreviousRun(&PreviousRun{
		Leftover: map[string]int{"ntp1": deadPID},
	}, runDir, &j)

	if _, err := os.Stat(pidfile); !os.IsNotExist(err) {
		t.Error("stale pidfile left behind")
	}
	if _, err := os.Stat(socket); !os.IsNotExist(err) {
		t.Error("stale control socket left behind")
	}

	j.Verify(t, true, []Event{
		&EventStaleInstance{Name: "ntp1", PID: deadPID, Killed: false},
	})
}

func TestCleanupPreviousRunEmpty(t *testing.T) {
	j := mockJournal{}
	j.Finalize()

	// Nothing leftover means nothing journaled; a write would panic.
	CleanupPreviousRun(&PreviousRun{Leftover: map[string]int{}}, t.TempDir(), &j)
}
