package ntpfleet

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ShayNeeo/ntpfleet/ntpfleet/exec"
	"github.com/pkg/errors"
)

const forever time.Duration = math.MaxInt64

func newNextPID() func() int {
	var pid uint32
	return func() int { return int(atomic.AddUint32(&pid, 1)) }
}

func fakeLookPath(t *testing.T, resolved string) func(string) (string, error) {
	t.Helper()
	return func(file string) (string, error) {
		if resolved == "" {
			return "", errors.New("executable file not found in $PATH")
		}
		return resolved, nil
	}
}

func TestLimiterAttach(t *testing.T) {
	t.Run("absent", func(t *testing.T) {
		l := &Limiter{
			Path:     "cpulimit",
			lookPath: fakeLookPath(t, ""),
		}

		proc, result, err := l.Attach(context.Background(), InstancePlan{Name: "ntp1"})
		if err != nil {
			t.Fatal("unexpected error:", err)
		}
		if result != LimiterAbsent || proc != nil {
			t.Errorf("got (%v, %v), want (nil, absent)", proc, result)
		}
	})

	t.Run("empty path", func(t *testing.T) {
		l := &Limiter{}

		_, result, err := l.Attach(context.Background(), InstancePlan{Name: "ntp1"})
		if err != nil {
			t.Fatal("unexpected error:", err)
		}
		if result != LimiterAbsent {
			t.Errorf("result = %v, want absent", result)
		}
	})

	t.Run("attached", func(t *testing.T) {
		pidfile := filepath.Join(t.TempDir(), "ntp1.pid")
		if err := os.WriteFile(pidfile, []byte("4321\n"), 0o644); err != nil {
			t.Fatal(err)
		}

		var gotArgv []string
		nextPID := newNextPID()

		l := &Limiter{
			Path:     "cpulimit",
			lookPath: fakeLookPath(t, "/usr/bin/cpulimit"),
			startProc: func(argv []string) (exec.Process, error) {
				gotArgv = argv
				return exec.NewSleepProcess(forever, 0, nextPID()), nil
			},
		}

		plan := InstancePlan{Name: "ntp1", PIDFile: pidfile, CPULimitPercent: 30}

		proc, result, err := l.Attach(context.Background(), plan)
		if err != nil {
			t.Fatal("unexpected error:", err)
		}
		if result != LimiterAttached || proc == nil {
			t.Fatalf("got (%v, %v), want attached", proc, result)
		}

		expect := []string{"/usr/bin/cpulimit", "-p", "4321", "-l", "30", "-z"}
		if !reflect.DeepEqual(gotArgv, expect) {
			t.Errorf("argv = %v, want %v", gotArgv, expect)
		}
	})

	t.Run("pidfile timeout", func(t *testing.T) {
		l := &Limiter{
			Path:          "cpulimit",
			AttachTimeout: 50 * time.Millisecond,
			lookPath:      fakeLookPath(t, "/usr/bin/cpulimit"),
			startProc: func(argv []string) (exec.Process, error) {
				t.Error("limiter spawned without a target pid")
				return nil, errors.New("unreachable")
			},
		}

		plan := InstancePlan{
			Name:            "ntp1",
			PIDFile:         filepath.Join(t.TempDir(), "never.pid"),
			CPULimitPercent: 30,
		}

		proc, result, err := l.Attach(context.Background(), plan)
		if err != nil {
			t.Fatal("unexpected error:", err)
		}
		if result != LimiterTimedOut || proc != nil {
			t.Errorf("got (%v, %v), want (nil, timed out)", proc, result)
		}
	})
}

func TestLimiterWrapArgv(t *testing.T) {
	daemonArgv := []string{"/usr/sbin/chronyd", "port 123"}

	t.Run("wrapped", func(t *testing.T) {
		l := &Limiter{
			Path:     "cpulimit",
			lookPath: fakeLookPath(t, "/usr/bin/cpulimit"),
		}

		argv, ok := l.WrapArgv(daemonArgv, 30)
		if !ok {
			t.Fatal("expected argv to be wrapped")
		}

		expect := []string{"/usr/bin/cpulimit", "-l", "30", "-z", "/usr/sbin/chronyd", "port 123"}
		if !reflect.DeepEqual(argv, expect) {
			t.Errorf("argv = %v, want %v", argv, expect)
		}
	})

	t.Run("absent leaves argv alone", func(t *testing.T) {
		l := &Limiter{
			Path:     "cpulimit",
			lookPath: fakeLookPath(t, ""),
		}

		argv, ok := l.WrapArgv(daemonArgv, 30)
		if ok {
			t.Fatal("expected argv to be unchanged")
		}
		if !reflect.DeepEqual(argv, daemonArgv) {
			t.Errorf("argv = %v, want %v", argv, daemonArgv)
		}
	})
}
