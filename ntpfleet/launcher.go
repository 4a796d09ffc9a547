package ntpfleet

import (
	"context"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/ShayNeeo/ntpfleet/ntpfleet/exec"
	"github.com/pkg/errors"
)

// RunningInstance is a successfully launched daemon instance and, when one
// could be attached, its limiter process. The limiter handle resolves
// asynchronously since attaching waits on the daemon's pidfile.
type RunningInstance struct {
	Plan InstancePlan
	Proc exec.Process

	mu      sync.Mutex
	limiter exec.Process

	// attachDone is closed once the attach attempt has settled (including
	// immediately, when no attach is pending).
	attachDone chan struct{}
}

// LimiterProc returns the attached limiter process, nil while none is (or
// ever will be) attached.
func (inst *RunningInstance) LimiterProc() exec.Process {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	return inst.limiter
}

// AwaitLimiter blocks until the attach attempt has settled and returns the
// limiter process, nil when the instance runs unthrottled.
func (inst *RunningInstance) AwaitLimiter() exec.Process {
	<-inst.attachDone
	return inst.LimiterProc()
}

func (inst *RunningInstance) setLimiter(p exec.Process) {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	inst.limiter = p
}

// Launcher starts one daemon process per instance plan.
type Launcher struct {
	DaemonPath string
	ConfigPath string
	Capability Capability

	// Limiter is optional; nil disables CPU limiting entirely.
	Limiter *Limiter

	// WrapLimiter selects wrap-before-spawn (the limiter becomes the
	// daemon's parent) instead of the default attach-after-spawn.
	WrapLimiter bool

	// RuntimeUser, when set, is the daemon's runtime user; run directories
	// are chowned to it so the daemon can write its pidfile and socket.
	RuntimeUser string

	j Journaler

	startProc func(argv []string) (exec.Process, error)
}

// NewLauncher creates a launcher for the probed daemon.
func NewLauncher(daemonPath, configPath string, cap Capability, j Journaler) *Launcher {
	return &Launcher{
		DaemonPath: daemonPath,
		ConfigPath: configPath,
		Capability: cap,
		j:          j,
		startProc:  exec.StartProcess,
	}
}

// Launch assembles the instance's argument vector and starts its process,
// applying the CPU limit per the configured strategy. Limiter degradation is
// journaled and never fails the launch; only the daemon spawn itself can.
func (l *Launcher) Launch(ctx context.Context, plan InstancePlan) (*RunningInstance, error) {
	if err := l.ensureRunDir(plan); err != nil {
		return nil, err
	}

	argv := BuildArgs(l.DaemonPath, l.ConfigPath, plan, l.Capability)

	limit := plan.CPULimitPercent > 0 && l.Limiter != nil

	wrapped := false
	if limit && l.WrapLimiter {
		argv, wrapped = l.Limiter.WrapArgv(argv, plan.CPULimitPercent)
		if !wrapped {
			l.j.Write(&EventLimiterAbsent{
				Name:   plan.Name,
				Reason: "limiter executable not found",
			})
		}
	}

	proc, err := l.startProc(argv)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to start instance %s", plan.Name)
	}

	l.j.Write(&EventInstanceSpawned{
		Name: plan.Name,
		PID:  proc.PID(),
	})

	inst := &RunningInstance{
		Plan:       plan,
		Proc:       proc,
		attachDone: make(chan struct{}),
	}

	if limit && !l.WrapLimiter {
		// Attaching blocks on the daemon's pidfile, so it must not hold up
		// the next launch. The limiter is reaped as soon as it exits; the
		// supervisor is a subreaper, so skipping this would leave a zombie
		// behind every limiter that quits mid-run.
		go func() {
			defer close(inst.attachDone)

			if lproc := l.attachLimiter(ctx, plan); lproc != nil {
				inst.setLimiter(lproc)
				go lproc.Wait()
			}
		}()
	} else {
		close(inst.attachDone)
	}

	return inst, nil
}

// attachLimiter runs the attach-after-spawn strategy and journals the
// outcome. Any degradation leaves the instance running unthrottled.
func (l *Launcher) attachLimiter(ctx context.Context, plan InstancePlan) exec.Process {
	proc, result, err := l.Limiter.Attach(ctx, plan)

	switch result {
	case LimiterAttached:
		pid, _ := ReadPIDFile(plan.PIDFile)
		l.j.Write(&EventLimiterAttached{
			Name:       plan.Name,
			PID:        pid,
			LimiterPID: proc.PID(),
			Percent:    plan.CPULimitPercent,
		})
		return proc

	case LimiterTimedOut:
		l.j.Write(&EventLimiterTimeout{
			Name:    plan.Name,
			PIDFile: plan.PIDFile,
		})

	case LimiterAbsent:
		reason := "limiter executable not found"
		if err != nil {
			reason = err.Error()
		}
		l.j.Write(&EventLimiterAbsent{
			Name:   plan.Name,
			Reason: reason,
		})
	}

	return nil
}

// ensureRunDir creates the pidfile/socket directories with the minimum
// access the daemon's runtime user needs to create files there.
func (l *Launcher) ensureRunDir(plan InstancePlan) error {
	dirs := map[string]struct{}{
		filepath.Dir(plan.PIDFile):       {},
		filepath.Dir(plan.ControlSocket): {},
	}

	for dir := range dirs {
		if err := os.MkdirAll(dir, 0o770); err != nil {
			return errors.Wrapf(err, "failed to create run directory %s", dir)
		}

		if l.RuntimeUser == "" {
			continue
		}

		uid, gid, err := lookupUser(l.RuntimeUser)
		if err != nil {
			return errors.Wrapf(err, "failed to resolve runtime user %q", l.RuntimeUser)
		}

		if err := os.Chown(dir, uid, gid); err != nil {
			return errors.Wrapf(err, "failed to chown run directory %s", dir)
		}
	}

	return nil
}

func lookupUser(name string) (uid, gid int, err error) {
	u, err := user.Lookup(name)
	if err != nil {
		return 0, 0, err
	}

	uid, err = strconv.Atoi(u.Uid)
	if err != nil {
		return 0, 0, errors.Wrap(err, "non-numeric uid")
	}

	gid, err = strconv.Atoi(u.Gid)
	if err != nil {
		return 0, 0, errors.Wrap(err, "non-numeric gid")
	}

	return uid, gid, nil
}
