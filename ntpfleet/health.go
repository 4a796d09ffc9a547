package ntpfleet

import (
	"context"
	"fmt"
	"time"

	"github.com/beevik/ntp"
)

// Health probe defaults. Probing is read-only and never restarts anything;
// it exists so a fleet that stops answering shows up in the journal.
var (
	HealthCheckInterval = time.Minute
	HealthCheckTimeout  = 5 * time.Second
)

// HealthChecker periodically queries the fleet's serving ports over NTP and
// journals failures.
type HealthChecker struct {
	Interval time.Duration
	Timeout  time.Duration

	j Journaler

	query func(host string, opt ntp.QueryOptions) (*ntp.Response, error)
}

// NewHealthChecker creates a health checker that reports into the journal.
func NewHealthChecker(j Journaler) *HealthChecker {
	return &HealthChecker{
		Interval: HealthCheckInterval,
		Timeout:  HealthCheckTimeout,
		j:        j,
		query:    ntp.QueryWithOptions,
	}
}

// Watch probes the fleet until the context is canceled. Since instances
// sharing a port are interchangeable, each serving port is probed once per
// round.
func (h *HealthChecker) Watch(ctx context.Context, plans []InstancePlan) {
	tick := time.NewTicker(h.Interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}

		for _, plan := range servingPorts(plans) {
			if err := h.probe(plan); err != nil {
				h.j.Write(&EventHealthCheckFailed{
					Name:  plan.Name,
					Addr:  fmt.Sprintf("127.0.0.1:%d", plan.ListenPort),
					Error: err.Error(),
				})
			}
		}
	}
}

// probe issues one NTP query against the instance's port on loopback.
func (h *HealthChecker) probe(plan InstancePlan) error {
	resp, err := h.query("127.0.0.1", ntp.QueryOptions{
		Port:    plan.ListenPort,
		Timeout: h.Timeout,
	})
	if err != nil {
		return err
	}

	return resp.Validate()
}

// servingPorts reduces the plan list to one representative per public port.
func servingPorts(plans []InstancePlan) []InstancePlan {
	seen := map[int]bool{}

	var out []InstancePlan
	for _, plan := range plans {
		if !plan.Role.ServesPublic() || seen[plan.ListenPort] {
			continue
		}
		seen[plan.ListenPort] = true
		out = append(out, plan)
	}

	return out
}
