package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ShayNeeo/ntpfleet/ntpfleet"
	"github.com/ShayNeeo/ntpfleet/ntpfleet/config"
	"github.com/ShayNeeo/ntpfleet/ntpfleet/journal"
	"github.com/pkg/errors"
)

var (
	configFile  string
	journalFile string
)

func init() {
	flag.StringVar(&configFile, "c", "", "config file path (defaults used when empty)")
	flag.StringVar(&journalFile, "j", "", "journal file path (overrides the config)")
	flag.Usage = func() {
		f := func(f string, v ...interface{}) {
			fmt.Fprintf(flag.CommandLine.Output(), f, v...)
		}

		f("Usage:\n")
		f("  %s -c <config> [-j <journal>]\n", filepath.Base(os.Args[0]))
		f("\n")
		f("Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()
}

func main() {
	if err := start(); err != nil {
		log.Fatalln(err)
	}
}

func start() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	if journalFile != "" {
		cfg.Journal = journalFile
	}

	j, err := journal.NewFileLockJournaler(cfg.Journal)
	if err != nil {
		if errors.Is(err, journal.ErrLockedElsewhere) {
			// Non-fatal error.
			log.Println("ntpfleet is already running")
			return nil
		}

		return errors.Wrap(err, "failed to acquire journal lock")
	}
	defer j.Close()

	journaler := journal.MultiWriter(j, journal.NewHumanWriter(os.Stderr))

	// Dispose of anything a previous supervisor left behind before this run
	// writes its own acquisition marker.
	prev, err := ntpfleet.ReadPreviousRun(j.Reader())
	if err != nil {
		journaler.Write(&ntpfleet.EventWarning{
			Component: "recovery",
			Error:     err.Error(),
		})
	} else {
		ntpfleet.CleanupPreviousRun(prev, cfg.RunDir, journaler)
	}

	journaler.Write(&ntpfleet.EventAcquired{})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cap, err := ntpfleet.ProbeDaemon(ctx, cfg.Daemon)
	if err != nil {
		return errors.Wrap(err, "failed to probe daemon")
	}

	journaler.Write(&ntpfleet.EventDaemonProbed{
		Path:       cfg.Daemon,
		Version:    cap.Version.String(),
		Extensions: cap.Strings(),
	})

	plans, err := cfg.Fleet().Plan()
	if err != nil {
		return errors.Wrap(err, "failed to plan topology")
	}

	launcher := ntpfleet.NewLauncher(cfg.Daemon, cfg.DaemonConfig, cap, journaler)
	launcher.RuntimeUser = cfg.RuntimeUser
	launcher.WrapLimiter = cfg.Limiter.Wrap
	if cfg.Limiter.Path != "" && cfg.Limiter.Percent > 0 {
		launcher.Limiter = ntpfleet.NewLimiter(cfg.Limiter.Path)
	}

	if !cfg.Health.Disabled {
		hc := ntpfleet.NewHealthChecker(journaler)
		if cfg.Health.Interval > 0 {
			hc.Interval = time.Duration(cfg.Health.Interval)
		}
		if cfg.Health.Timeout > 0 {
			hc.Timeout = time.Duration(cfg.Health.Timeout)
		}
		go hc.Watch(ctx, plans)
	}

	sup := ntpfleet.NewSupervisor(launcher, journaler)

	if _, err := sup.Run(ctx, plans); err != nil {
		return errors.Wrap(err, "fleet failed")
	}

	return nil
}
