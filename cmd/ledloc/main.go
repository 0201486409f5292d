package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sigreer/ledloc/internal/blink"
	"github.com/sigreer/ledloc/internal/config"
	"github.com/sigreer/ledloc/internal/db"
	"github.com/sigreer/ledloc/internal/device"
	"github.com/sigreer/ledloc/internal/hba"
	"github.com/sigreer/ledloc/internal/led"
	"github.com/sigreer/ledloc/internal/resolve"
	"github.com/sigreer/ledloc/internal/run"
	"github.com/sigreer/ledloc/internal/sched"
	"github.com/sigreer/ledloc/internal/topology"
	"github.com/sigreer/ledloc/internal/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "ledloc",
	Short:   "Drive locate LED control for SAS JBODs",
	Version: version.Version,
	Long: `ledloc toggles drive locate LEDs across SAS HBAs, addressing drives by
device path or serial number. Drives on controllers without locate
firmware (AHCI) get a best-effort activity blink instead.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/ledloc/config.yaml)")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(onCmd)
	rootCmd.AddCommand(offCmd)
}

// engine is the fully wired core behind every command.
type engine struct {
	sched    *sched.Scheduler
	registry *blink.Registry
	history  *db.DB
	log      *logrus.Logger
}

func (e *engine) close() {
	if e.history != nil {
		e.history.Close()
	}
}

func newEngine() (*engine, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)

	runner := run.Exec{}

	binaries := cfg.AdapterTools
	if len(binaries) == 0 {
		binaries, err = hba.DetectBinaries()
		if err != nil {
			return nil, err
		}
	}
	client := hba.NewClient(runner, binaries, cfg.ToolTimeout(), log)

	var history *db.DB
	if cfg.HistoryEnabled() {
		history, err = db.New(cfg.DBPath)
		if err != nil {
			// History is advisory; run without it.
			log.WithError(err).Warn("inventory history unavailable")
			history = nil
		}
	}

	store := topology.New(client, cfg.CachePath, cfg.CacheTTL(), history, log)
	lookup := device.NewLookup(runner, cfg.ToolTimeout())

	registry, err := blink.NewRegistry(cfg.RunDir, log)
	if err != nil {
		return nil, err
	}

	actuator := led.New(runner, registry, log)
	actuator.LocateTimeout = cfg.LocateTimeout()
	actuator.BlinkCycle = cfg.BlinkCycle()

	resolver := &resolve.Resolver{Topo: store, Lookup: lookup, History: history}

	return &engine{
		sched: &sched.Scheduler{
			Topo:    store,
			Res:     resolver,
			Act:     actuator,
			Blink:   registry,
			Disks:   lookup,
			Serials: lookup,
			History: history,
			Log:     log,
		},
		registry: registry,
		history:  history,
		log:      log,
	}, nil
}

// cleanupOnSignal sweeps blink jobs started by this invocation when the
// process is interrupted, so an aborted run doesn't leave reads cycling.
func (e *engine) cleanupOnSignal() {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		e.registry.StopStarted()
		e.close()
		os.Exit(130)
	}()
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
