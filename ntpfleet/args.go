package ntpfleet

import (
	"fmt"
	"strings"
)

// Relay poll bounds for Server-role upstream lines. Tight polling keeps the
// public servers close to the loopback relay.
const (
	relayMinPoll = 0
	relayMaxPoll = 2
)

// BuildArgs assembles the daemon argument vector for one planned instance.
// Everything after the executable path is a single config directive per
// argument, which is how the daemon accepts configuration on its command
// line. The builder is pure so the full invocation surface is testable
// without spawning anything.
func BuildArgs(daemonPath, configPath string, plan InstancePlan, cap Capability) []string {
	args := []string{daemonPath}

	// The config file carries the upstream source list (and the shared
	// logging/drift settings), so only upstream-holding roles include it.
	if plan.Role.HoldsUpstream() && configPath != "" {
		args = append(args, "include "+configPath)
	}

	args = append(args,
		fmt.Sprintf("pidfile %s", plan.PIDFile),
		fmt.Sprintf("bindcmdaddress %s", plan.ControlSocket),
		fmt.Sprintf("port %d", plan.ListenPort),
	)

	if plan.AllowCIDR != "" {
		args = append(args, "allow "+plan.AllowCIDR)
	}

	if plan.Role == RoleServer {
		args = append(args, serverDirective(plan, cap))
	}

	if plan.LocalStratum > 0 {
		args = append(args, fmt.Sprintf("local stratum %d", plan.LocalStratum))
	}

	if plan.SchedPriority > 0 {
		args = append(args, fmt.Sprintf("sched_priority %d", plan.SchedPriority))
	}

	return args
}

// serverDirective builds the relay upstream line, with every extension flag
// the probed daemon supports.
func serverDirective(plan InstancePlan, cap Capability) string {
	b := strings.Builder{}
	fmt.Fprintf(&b, "server %s port %d minpoll %d maxpoll %d",
		plan.UpstreamHost, plan.UpstreamPort, relayMinPoll, relayMaxPoll)

	for _, ext := range cap.Extensions {
		b.WriteByte(' ')
		b.WriteString(string(ext))
	}

	return b.String()
}
