package ntpfleet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sharedPortTopology(n int) Topology {
	return Topology{
		Mode:       SharedPort,
		Instances:  n,
		PublicPort: 123,
		AllowCIDR:  "0.0.0.0/0",
		RunDir:     "/run/ntpfleet",
	}
}

func TestPlanSharedPort(t *testing.T) {
	for _, n := range []int{1, 2, 4, 16} {
		plans, err := sharedPortTopology(n).Plan()
		require.NoError(t, err)
		require.Len(t, plans, n)

		pidfiles := map[string]bool{}
		sockets := map[string]bool{}

		for _, plan := range plans {
			assert.Equal(t, RoleUniform, plan.Role)
			assert.Equal(t, 123, plan.ListenPort)
			assert.True(t, plan.Role.HoldsUpstream())
			assert.True(t, plan.Role.ServesPublic())

			assert.False(t, pidfiles[plan.PIDFile], "duplicate pidfile %s", plan.PIDFile)
			assert.False(t, sockets[plan.ControlSocket], "duplicate socket %s", plan.ControlSocket)
			pidfiles[plan.PIDFile] = true
			sockets[plan.ControlSocket] = true
		}
	}
}

func TestPlanHierarchy(t *testing.T) {
	topo := Topology{
		Mode:       Hierarchy,
		Clients:    2,
		Servers:    3,
		PublicPort: 123,
		RelayPort:  11123,
		AllowCIDR:  "0.0.0.0/0",
		RunDir:     "/run/ntpfleet",
	}

	plans, err := topo.Plan()
	require.NoError(t, err)
	require.Len(t, plans, 5)

	var clients, servers int
	paths := map[string]bool{}

	for _, plan := range plans {
		require.False(t, paths[plan.PIDFile])
		require.False(t, paths[plan.ControlSocket])
		paths[plan.PIDFile] = true
		paths[plan.ControlSocket] = true

		switch plan.Role {
		case RoleClient:
			clients++
			assert.NotEqual(t, topo.PublicPort, plan.ListenPort, "client must not expose the public port")
			assert.Equal(t, topo.RelayPort, plan.ListenPort)
			assert.True(t, plan.Role.HoldsUpstream())
			assert.Empty(t, plan.UpstreamHost)

		case RoleServer:
			servers++
			assert.Equal(t, topo.PublicPort, plan.ListenPort)
			assert.Equal(t, "127.0.0.1", plan.UpstreamHost)
			assert.Equal(t, topo.RelayPort, plan.UpstreamPort)
			assert.False(t, plan.Role.HoldsUpstream())

		default:
			t.Fatalf("unexpected role %q", plan.Role)
		}
	}

	assert.Equal(t, 2, clients)
	assert.Equal(t, 3, servers)

	// Launch order: clients before servers.
	assert.Equal(t, RoleClient, plans[0].Role)
	assert.Equal(t, RoleServer, plans[len(plans)-1].Role)
}

func TestPlanErrors(t *testing.T) {
	_, err := sharedPortTopology(0).Plan()
	assert.Error(t, err)

	_, err = Topology{Mode: Hierarchy, Clients: 0, Servers: 1, PublicPort: 123, RelayPort: 11123}.Plan()
	assert.Error(t, err)

	_, err = Topology{Mode: Hierarchy, Clients: 1, Servers: 1, PublicPort: 123, RelayPort: 123}.Plan()
	assert.Error(t, err, "relay port colliding with public port must be rejected")

	_, err = Topology{Mode: "mesh"}.Plan()
	assert.Error(t, err)
}
