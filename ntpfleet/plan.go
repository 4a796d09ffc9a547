package ntpfleet

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
)

// TopologyMode selects the shape of the fleet.
type TopologyMode string

const (
	// SharedPort runs N interchangeable instances all bound to the same
	// public port; the kernel distributes inbound traffic across them.
	SharedPort TopologyMode = "shared-port"

	// Hierarchy splits the fleet into private relay instances that sync with
	// the upstream sources and public server instances that source time from
	// the relay over loopback.
	Hierarchy TopologyMode = "hierarchy"
)

// Role is an instance's role within the fleet.
type Role string

const (
	// RoleUniform is a SharedPort instance: public port, full upstream
	// source list.
	RoleUniform Role = "uniform"

	// RoleClient is a Hierarchy relay: syncs upstream, serves only the
	// private relay port on loopback.
	RoleClient Role = "client"

	// RoleServer is a Hierarchy public server: serves the public port,
	// sources time from the relay, holds no upstream configuration of its
	// own.
	RoleServer Role = "server"
)

// ServesPublic returns true for roles that bind the public port.
func (r Role) ServesPublic() bool {
	return r == RoleUniform || r == RoleServer
}

// HoldsUpstream returns true for roles that carry the upstream source
// configuration.
func (r Role) HoldsUpstream() bool {
	return r == RoleUniform || r == RoleClient
}

// InstancePlan fully describes one daemon instance before it is launched.
type InstancePlan struct {
	Name string
	Role Role

	// ListenPort is the port this instance binds: the public port for
	// Uniform/Server roles, the private relay port for Client roles.
	ListenPort int

	// AllowCIDR is the client subnet allowed to query this instance.
	AllowCIDR string

	// UpstreamHost/UpstreamPort point a Server-role instance at the relay.
	// Empty for other roles, whose upstream comes from the included config.
	UpstreamHost string
	UpstreamPort int

	ControlSocket string
	PIDFile       string

	// CPULimitPercent caps the instance's CPU share; 0 means unlimited.
	CPULimitPercent int

	// LocalStratum is the daemon's fallback stratum when unsynchronized;
	// 0 omits the directive.
	LocalStratum int

	// SchedPriority is the daemon's real-time scheduling priority hint;
	// 0 omits the directive.
	SchedPriority int
}

// Topology is the requested fleet shape. Plan turns it into concrete
// instance plans.
type Topology struct {
	Mode TopologyMode

	// Instances is the SharedPort parallelism factor, typically the number
	// of processor cores.
	Instances int

	// Clients and Servers size the Hierarchy fleet.
	Clients int
	Servers int

	PublicPort int
	RelayPort  int

	AllowCIDR string

	RunDir string

	CPULimitPercent int
	LocalStratum    int
	SchedPriority   int
}

// Plan produces the ordered list of instance plans for the topology. The
// order is the launch order; no ordering is guaranteed once the operating
// system schedules the instances.
func (t Topology) Plan() ([]InstancePlan, error) {
	switch t.Mode {
	case SharedPort:
		return t.planSharedPort()
	case Hierarchy:
		return t.planHierarchy()
	default:
		return nil, errors.Errorf("unknown topology mode %q", t.Mode)
	}
}

func (t Topology) planSharedPort() ([]InstancePlan, error) {
	if t.Instances < 1 {
		return nil, errors.Errorf("shared-port topology needs at least 1 instance, got %d", t.Instances)
	}

	plans := make([]InstancePlan, 0, t.Instances)
	for i := 1; i <= t.Instances; i++ {
		plan := t.instance(fmt.Sprintf("ntp%d", i), RoleUniform)
		plan.ListenPort = t.PublicPort
		plan.AllowCIDR = t.AllowCIDR
		plans = append(plans, plan)
	}

	return plans, nil
}

func (t Topology) planHierarchy() ([]InstancePlan, error) {
	if t.Clients < 1 || t.Servers < 1 {
		return nil, errors.Errorf(
			"hierarchy topology needs at least 1 client and 1 server, got %d/%d",
			t.Clients, t.Servers)
	}
	if t.RelayPort == t.PublicPort {
		return nil, errors.Errorf("relay port %d collides with the public port", t.RelayPort)
	}

	plans := make([]InstancePlan, 0, t.Clients+t.Servers)

	// Clients first so the relay port has a chance to be up by the time the
	// servers poll it; servers retry their upstream internally regardless.
	for i := 1; i <= t.Clients; i++ {
		plan := t.instance(fmt.Sprintf("client%d", i), RoleClient)
		plan.ListenPort = t.RelayPort
		plan.AllowCIDR = "127.0.0.1"
		plans = append(plans, plan)
	}

	for i := 1; i <= t.Servers; i++ {
		plan := t.instance(fmt.Sprintf("server%d", i), RoleServer)
		plan.ListenPort = t.PublicPort
		plan.AllowCIDR = t.AllowCIDR
		plan.UpstreamHost = "127.0.0.1"
		plan.UpstreamPort = t.RelayPort
		plans = append(plans, plan)
	}

	return plans, nil
}

// instance fills the per-instance fields whose uniqueness the whole plan
// depends on: pidfile and control socket are namespaced by the instance name.
func (t Topology) instance(name string, role Role) InstancePlan {
	return InstancePlan{
		Name:            name,
		Role:            role,
		ControlSocket:   filepath.Join(t.RunDir, name+".sock"),
		PIDFile:         filepath.Join(t.RunDir, name+".pid"),
		CPULimitPercent: t.CPULimitPercent,
		LocalStratum:    t.LocalStratum,
		SchedPriority:   t.SchedPriority,
	}
}
