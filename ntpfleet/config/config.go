// Package config loads the supervisor's YAML runtime configuration.
package config

import (
	"os"
	"runtime"
	"time"

	"github.com/ShayNeeo/ntpfleet/ntpfleet"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the supervisor's runtime configuration.
type Config struct {
	// Daemon is the time daemon executable.
	Daemon string `yaml:"daemon"`

	// DaemonConfig is the daemon's config file, carrying the upstream source
	// list and the shared daemon settings.
	DaemonConfig string `yaml:"daemon_config"`

	// RunDir holds the per-instance pidfiles and control sockets.
	RunDir string `yaml:"run_dir"`

	// Journal is the supervisor's event journal file.
	Journal string `yaml:"journal"`

	// RuntimeUser, when set, is the user the daemon drops to; the run
	// directory is chowned to it.
	RuntimeUser string `yaml:"runtime_user"`

	Topology Topology `yaml:"topology"`
	Limiter  Limiter  `yaml:"limiter"`
	Health   Health   `yaml:"health"`
}

// Topology is the requested fleet shape.
type Topology struct {
	Mode string `yaml:"mode"`

	// Instances sizes the shared-port fleet; 0 means one per processor
	// core.
	Instances int `yaml:"instances"`

	// Clients and Servers size the hierarchy fleet.
	Clients int `yaml:"clients"`
	Servers int `yaml:"servers"`

	Port      int `yaml:"port"`
	RelayPort int `yaml:"relay_port"`

	Allow string `yaml:"allow"`

	LocalStratum  int `yaml:"local_stratum"`
	SchedPriority int `yaml:"sched_priority"`
}

// Limiter configures the external CPU limiter.
type Limiter struct {
	// Path is the limiter executable; empty disables limiting.
	Path string `yaml:"path"`

	// Percent is the per-instance CPU share; 0 disables limiting.
	Percent int `yaml:"percent"`

	// Wrap selects wrap-before-spawn instead of attach-after-spawn.
	Wrap bool `yaml:"wrap"`
}

// Health configures the fleet health monitor.
type Health struct {
	Disabled bool     `yaml:"disabled"`
	Interval Duration `yaml:"interval"`
	Timeout  Duration `yaml:"timeout"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}

	dura, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", s)
	}

	*d = Duration(dura)
	return nil
}

// Default returns the stock configuration for a chrony-style public server.
func Default() Config {
	return Config{
		Daemon:       "/usr/sbin/chronyd",
		DaemonConfig: "/etc/chrony/chrony.conf",
		RunDir:       "/run/ntpfleet",
		Journal:      "/var/log/ntpfleet/journal.json",
		Topology: Topology{
			Mode:         string(ntpfleet.SharedPort),
			Clients:      1,
			Servers:      3,
			Port:         123,
			RelayPort:    11123,
			Allow:        "0.0.0.0/0",
			LocalStratum: 10,
		},
		Health: Health{
			Interval: Duration(time.Minute),
			Timeout:  Duration(5 * time.Second),
		},
	}
}

// Load reads the YAML file at path over the defaults and validates the
// result. An empty path returns the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrap(err, "failed to read config")
		}

		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, errors.Wrap(err, "failed to parse config")
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate rejects configurations the planner or launcher would choke on.
func (c Config) Validate() error {
	if c.Daemon == "" {
		return errors.New("daemon path is required")
	}
	if c.RunDir == "" {
		return errors.New("run_dir is required")
	}
	if c.Journal == "" {
		return errors.New("journal path is required")
	}

	switch ntpfleet.TopologyMode(c.Topology.Mode) {
	case ntpfleet.SharedPort, ntpfleet.Hierarchy:
	default:
		return errors.Errorf("unknown topology mode %q", c.Topology.Mode)
	}

	if c.Topology.Instances < 0 {
		return errors.Errorf("instances must not be negative, got %d", c.Topology.Instances)
	}

	if err := validPort(c.Topology.Port); err != nil {
		return errors.Wrap(err, "port")
	}

	if ntpfleet.TopologyMode(c.Topology.Mode) == ntpfleet.Hierarchy {
		if err := validPort(c.Topology.RelayPort); err != nil {
			return errors.Wrap(err, "relay_port")
		}
	}

	if c.Limiter.Percent < 0 || c.Limiter.Percent > 100 {
		return errors.Errorf("limiter percent must be within 0-100, got %d", c.Limiter.Percent)
	}

	return nil
}

func validPort(port int) error {
	if port < 1 || port > 65535 {
		return errors.Errorf("%d is not a valid port", port)
	}
	return nil
}

// Fleet converts the configured topology into the planner's input. A zero
// instance count becomes one instance per processor core.
func (c Config) Fleet() ntpfleet.Topology {
	instances := c.Topology.Instances
	if instances == 0 {
		instances = runtime.NumCPU()
	}

	return ntpfleet.Topology{
		Mode:            ntpfleet.TopologyMode(c.Topology.Mode),
		Instances:       instances,
		Clients:         c.Topology.Clients,
		Servers:         c.Topology.Servers,
		PublicPort:      c.Topology.Port,
		RelayPort:       c.Topology.RelayPort,
		AllowCIDR:       c.Topology.Allow,
		RunDir:          c.RunDir,
		CPULimitPercent: c.Limiter.Percent,
		LocalStratum:    c.Topology.LocalStratum,
		SchedPriority:   c.Topology.SchedPriority,
	}
}
