package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/ShayNeeo/ntpfleet/ntpfleet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ntpfleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/usr/sbin/chronyd", cfg.Daemon)
	assert.Equal(t, string(ntpfleet.SharedPort), cfg.Topology.Mode)
	assert.Equal(t, 123, cfg.Topology.Port)
	assert.Equal(t, Duration(time.Minute), cfg.Health.Interval)
}

func TestLoadOverlay(t *testing.T) {
	path := writeConfig(t, `
daemon: /opt/chrony/sbin/chronyd
runtime_user: chrony
topology:
  mode: hierarchy
  clients: 2
  servers: 4
  relay_port: 11124
limiter:
  path: /usr/bin/cpulimit
  percent: 30
  wrap: true
health:
  disabled: true
  timeout: 10s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/chrony/sbin/chronyd", cfg.Daemon)
	assert.Equal(t, "chrony", cfg.RuntimeUser)
	assert.Equal(t, string(ntpfleet.Hierarchy), cfg.Topology.Mode)
	assert.Equal(t, 2, cfg.Topology.Clients)
	assert.Equal(t, 4, cfg.Topology.Servers)
	assert.Equal(t, 11124, cfg.Topology.RelayPort)
	assert.Equal(t, 30, cfg.Limiter.Percent)
	assert.True(t, cfg.Limiter.Wrap)
	assert.True(t, cfg.Health.Disabled)
	assert.Equal(t, Duration(10*time.Second), cfg.Health.Timeout)

	// Untouched fields keep their defaults.
	assert.Equal(t, 123, cfg.Topology.Port)
	assert.Equal(t, "/run/ntpfleet", cfg.RunDir)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown mode", "topology:\n  mode: mesh\n"},
		{"bad percent", "limiter:\n  percent: 150\n"},
		{"bad port", "topology:\n  port: 70000\n"},
		{"negative instances", "topology:\n  instances: -1\n"},
		{"no daemon", "daemon: ''\n"},
		{"bad duration", "health:\n  interval: soon\n"},
		{"not yaml", "{{{{\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestFleetConversion(t *testing.T) {
	cfg := Default()
	cfg.Topology.Instances = 4
	cfg.Limiter.Percent = 30

	topo := cfg.Fleet()
	assert.Equal(t, ntpfleet.SharedPort, topo.Mode)
	assert.Equal(t, 4, topo.Instances)
	assert.Equal(t, 123, topo.PublicPort)
	assert.Equal(t, 30, topo.CPULimitPercent)
	assert.Equal(t, "/run/ntpfleet", topo.RunDir)
}

func TestFleetDefaultsToCores(t *testing.T) {
	cfg := Default()
	assert.Equal(t, runtime.NumCPU(), cfg.Fleet().Instances)
}
