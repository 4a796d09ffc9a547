package ntpfleet

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// FleetWaitTimeout is the grace period for an interrupted instance to exit
// before it is SIGKILLed.
var FleetWaitTimeout = time.Minute

// State is the supervisor's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateLaunching
	StateRunning
	StateTerminating
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLaunching:
		return "launching"
	case StateRunning:
		return "running"
	case StateTerminating:
		return "terminating"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrNoInstances is returned when not a single planned instance could be
// started.
var ErrNoInstances = errors.New("no instance could be started")

// LaunchError is one planned instance's structured launch failure.
type LaunchError struct {
	Name string
	Err  error
}

func (err *LaunchError) Error() string {
	return fmt.Sprintf("instance %s: %s", err.Name, err.Err)
}

func (err *LaunchError) Unwrap() error { return err.Err }

// LaunchReport summarizes a fleet launch. A fleet with failures but at least
// one running instance runs degraded; the failures are recorded here and in
// the journal.
type LaunchReport struct {
	Planned int
	Running int
	Failed  []*LaunchError
}

// Supervisor owns every launched instance: it launches the planned fleet,
// tracks exits, and guarantees that a single termination request (delivered
// any number of times) stops the whole fleet exactly once without leaking a
// process, pidfile or control socket.
type Supervisor struct {
	// WaitTimeout is the per-termination grace period before SIGKILL.
	WaitTimeout time.Duration

	j      Journaler
	launch func(context.Context, InstancePlan) (*RunningInstance, error)

	mu      sync.Mutex
	state   State
	running []*RunningInstance

	wg        sync.WaitGroup
	allExited chan struct{}

	terminating uint32
	stopped     chan struct{}
}

// NewSupervisor creates a supervisor that launches instances through the
// given launcher.
func NewSupervisor(l *Launcher, j Journaler) *Supervisor {
	return &Supervisor{
		WaitTimeout: FleetWaitTimeout,
		j:           j,
		launch:      l.Launch,
		stopped:     make(chan struct{}),
	}
}

// State returns the supervisor's current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Running returns a snapshot of the tracked instances.
func (s *Supervisor) Running() []*RunningInstance {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make([]*RunningInstance, len(s.running))
	copy(snapshot, s.running)
	return snapshot
}

// Launch attempts every plan in order. Individual failures are journaled and
// collected in the report rather than aborting the survivors; an error is
// returned only when the supervisor is not Idle or when nothing at all could
// be started.
func (s *Supervisor) Launch(ctx context.Context, plans []InstancePlan) (*LaunchReport, error) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return nil, errors.Errorf("cannot launch from state %q", s.state)
	}
	s.state = StateLaunching
	s.allExited = make(chan struct{})
	s.mu.Unlock()

	report := &LaunchReport{Planned: len(plans)}

	for _, plan := range plans {
		inst, err := s.launch(ctx, plan)
		if err != nil {
			s.j.Write(&EventInstanceSpawnError{
				Name:   plan.Name,
				Reason: err.Error(),
			})
			report.Failed = append(report.Failed, &LaunchError{Name: plan.Name, Err: err})
			continue
		}

		s.track(inst)
		report.Running++
	}

	// All exit watchers are registered; the fleet is considered running even
	// when degraded.
	go func() {
		s.wg.Wait()
		close(s.allExited)
	}()

	s.mu.Lock()
	s.state = StateRunning
	s.mu.Unlock()

	if report.Running == 0 && len(plans) > 0 {
		// Nothing started; don't announce a running fleet. The per-instance
		// spawn errors are already journaled.
		return report, ErrNoInstances
	}

	s.j.Write(&EventFleetRunning{
		Planned: report.Planned,
		Running: report.Running,
	})

	return report, nil
}

// track registers a launched instance and starts its exit watcher.
func (s *Supervisor) track(inst *RunningInstance) {
	s.mu.Lock()
	s.running = append(s.running, inst)
	s.mu.Unlock()

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		status := inst.Proc.Wait()

		ev := EventInstanceExited{
			Name:     inst.Plan.Name,
			PID:      status.PID,
			ExitCode: status.Code,
		}
		if status.Error != nil {
			ev.Error = status.Error.Error()
		}

		s.j.Write(&ev)
	}()
}

// Wait blocks until the context is canceled or the whole fleet has exited on
// its own, then terminates. This is the supervisor's terminal wait and may
// block indefinitely while the fleet is healthy.
func (s *Supervisor) Wait(ctx context.Context) {
	s.mu.Lock()
	allExited := s.allExited
	s.mu.Unlock()

	select {
	case <-ctx.Done():
	case <-allExited:
	}

	s.Terminate()
}

// Run launches the planned fleet and blocks until it has stopped. The
// returned error is ErrNoInstances when nothing could be started; a degraded
// fleet is not an error (the report and journal carry the failures).
func (s *Supervisor) Run(ctx context.Context, plans []InstancePlan) (*LaunchReport, error) {
	report, err := s.Launch(ctx, plans)
	if err != nil {
		s.Terminate()
		return report, err
	}

	s.Wait(ctx)
	return report, nil
}

// Terminate stops the whole fleet: every tracked instance is interrupted
// once, given the grace period, then SIGKILLed, and the run directory is
// scrubbed of the fleet's pidfiles and control sockets. Terminate is
// idempotent; concurrent and repeated calls all block until the fleet is
// stopped.
func (s *Supervisor) Terminate() {
	if !atomic.CompareAndSwapUint32(&s.terminating, 0, 1) {
		<-s.stopped
		return
	}

	s.mu.Lock()
	s.state = StateTerminating
	instances := make([]*RunningInstance, len(s.running))
	copy(instances, s.running)
	allExited := s.allExited
	s.mu.Unlock()

	for _, inst := range instances {
		if err := inst.Proc.Signal(os.Interrupt); err != nil {
			// Can't interrupt; go straight for the kill.
			inst.Proc.Kill()
		}
	}

	if allExited != nil {
		after := time.NewTimer(s.WaitTimeout)
		defer after.Stop()

		select {
		case <-allExited:

		case <-after.C:
			// Grace period elapsed with stragglers; SIGKILL cannot be
			// ignored.
			for _, inst := range instances {
				inst.Proc.Kill()
			}
			<-allExited
		}
	}

	for _, inst := range instances {
		// Limiters exit on their own once the target is gone; the kill just
		// hurries along the ones that haven't noticed yet. An attach still in
		// flight resolves to a limiter whose target is already dead, and its
		// reaper collects it either way.
		if lproc := inst.LimiterProc(); lproc != nil {
			lproc.Kill()
		}

		s.cleanupInstance(inst.Plan)
	}

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()

	s.j.Write(&EventFleetStopped{})
	close(s.stopped)
}

// cleanupInstance removes an instance's pidfile and control socket.
func (s *Supervisor) cleanupInstance(plan InstancePlan) {
	if err := RemovePIDFile(plan.PIDFile); err != nil {
		s.j.Write(&EventWarning{
			Component: "supervisor",
			Error:     err.Error(),
		})
	}

	if err := os.Remove(plan.ControlSocket); err != nil && !os.IsNotExist(err) {
		s.j.Write(&EventWarning{
			Component: "supervisor",
			Error:     fmt.Sprintf("failed to remove control socket: %s", err),
		})
	}
}
