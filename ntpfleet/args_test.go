package ntpfleet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildArgsUniform(t *testing.T) {
	plan := InstancePlan{
		Name:          "ntp1",
		Role:          RoleUniform,
		ListenPort:    123,
		AllowCIDR:     "0.0.0.0/0",
		ControlSocket: "/run/ntpfleet/ntp1.sock",
		PIDFile:       "/run/ntpfleet/ntp1.pid",
		LocalStratum:  10,
		SchedPriority: 50,
	}

	args := BuildArgs("/usr/sbin/chronyd", "/etc/chrony/chrony.conf", plan, Capability{})

	assert.Equal(t, []string{
		"/usr/sbin/chronyd",
		"include /etc/chrony/chrony.conf",
		"pidfile /run/ntpfleet/ntp1.pid",
		"bindcmdaddress /run/ntpfleet/ntp1.sock",
		"port 123",
		"allow 0.0.0.0/0",
		"local stratum 10",
		"sched_priority 50",
	}, args)
}

func TestBuildArgsServer(t *testing.T) {
	plan := InstancePlan{
		Name:          "server1",
		Role:          RoleServer,
		ListenPort:    123,
		AllowCIDR:     "0.0.0.0/0",
		UpstreamHost:  "127.0.0.1",
		UpstreamPort:  11123,
		ControlSocket: "/run/ntpfleet/server1.sock",
		PIDFile:       "/run/ntpfleet/server1.pid",
	}

	cap := Capability{
		Version:    Version{4, 2},
		Extensions: []Extension{ExtXleave, ExtCopy, ExtExtfield},
	}

	args := BuildArgs("/usr/sbin/chronyd", "/etc/chrony/chrony.conf", plan, cap)

	// Server roles hold no upstream source configuration of their own.
	assert.NotContains(t, args, "include /etc/chrony/chrony.conf")
	assert.Contains(t, args, "server 127.0.0.1 port 11123 minpoll 0 maxpoll 2 xleave copy extfield F323")
}

func TestBuildArgsClient(t *testing.T) {
	plan := InstancePlan{
		Name:          "client1",
		Role:          RoleClient,
		ListenPort:    11123,
		AllowCIDR:     "127.0.0.1",
		ControlSocket: "/run/ntpfleet/client1.sock",
		PIDFile:       "/run/ntpfleet/client1.pid",
	}

	args := BuildArgs("/usr/sbin/chronyd", "/etc/chrony/chrony.conf", plan, Capability{})

	assert.Contains(t, args, "include /etc/chrony/chrony.conf")
	assert.Contains(t, args, "port 11123")
	assert.Contains(t, args, "allow 127.0.0.1")

	for _, arg := range args {
		assert.NotContains(t, arg, "server ", "client role has no relay upstream line")
	}
}

func TestBuildArgsNoExtensions(t *testing.T) {
	plan := InstancePlan{
		Name:         "server1",
		Role:         RoleServer,
		ListenPort:   123,
		UpstreamHost: "127.0.0.1",
		UpstreamPort: 11123,
	}

	args := BuildArgs("/usr/sbin/chronyd", "", plan, Capability{Version: Version{4, 0}})
	assert.Contains(t, args, "server 127.0.0.1 port 11123 minpoll 0 maxpoll 2")
}
