package led

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sigreer/ledloc/internal/blink"
	"github.com/sigreer/ledloc/internal/hba"
	"github.com/sigreer/ledloc/internal/run"
)

const (
	// DefaultLocateTimeout bounds one firmware locate call. A hung call is
	// killed and reported as a per-drive warning; the batch moves on.
	DefaultLocateTimeout = 5 * time.Second

	// DefaultBlinkCycle is the length of both the sustained-read phase and
	// the idle phase of the AHCI blink loop.
	DefaultBlinkCycle = 2 * time.Second
)

// Actuator performs locate-state changes against single drives: a firmware
// call for SAS drives, a background read-cycle process for AHCI drives.
type Actuator struct {
	Runner        run.Runner
	Registry      *blink.Registry
	LocateTimeout time.Duration
	BlinkCycle    time.Duration
	Log           *logrus.Logger
}

// New builds an actuator with defaults filled in.
func New(r run.Runner, reg *blink.Registry, log *logrus.Logger) *Actuator {
	return &Actuator{
		Runner:        r,
		Registry:      reg,
		LocateTimeout: DefaultLocateTimeout,
		BlinkCycle:    DefaultBlinkCycle,
		Log:           log,
	}
}

// SetLocate issues the firmware locate command for one bay. The command is
// idempotent on the firmware side; repeating a state is safe.
func (a *Actuator) SetLocate(ctx context.Context, rec hba.DriveRecord, on bool) error {
	state := "OFF"
	if on {
		state = "ON"
	}
	out, err := a.Runner.Run(ctx, a.LocateTimeout,
		rec.AdapterBinary, strconv.Itoa(rec.AdapterID), "locate", rec.Bay(), state)
	if err != nil {
		if run.IsPermissionDenied(out) {
			return hba.ErrPermissionDenied
		}
		return fmt.Errorf("locate %s on %s: %w", rec.Bay(), rec.AdapterKey(), err)
	}
	return nil
}

// StartBlink spawns a detached loop alternating a bounded sustained read of
// the device with an equal idle period, and registers its process group
// under the serial. Any previous job for the serial is stopped first. This
// is the best-effort locate stand-in for drives on controllers without
// locate firmware; it must never target a SAS-resolved drive.
func (a *Actuator) StartBlink(devicePath, serial string) error {
	cycle := int(a.BlinkCycle / time.Second)
	if cycle < 1 {
		cycle = 1
	}

	script := fmt.Sprintf(
		"while :; do timeout %d dd if=%s of=/dev/null bs=1M iflag=direct >/dev/null 2>&1; sleep %d; done",
		cycle, devicePath, cycle)

	cmd := exec.Command("sh", "-c", script)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start blink for %s: %w", devicePath, err)
	}

	// Reap the leader if it dies while we are still running; the loop
	// otherwise outlives this invocation on purpose, and a later run finds
	// it through the registry marker.
	go cmd.Wait()

	pgid := cmd.Process.Pid
	if err := a.Registry.Register(serial, devicePath, pgid); err != nil {
		cmd.Process.Kill()
		return err
	}
	a.Log.Debugf("blink started for %s on %s (pgid %d)", serial, devicePath, pgid)
	return nil
}

// StopBlink stops the blink job for serial, if one exists.
func (a *Actuator) StopBlink(serial string) error {
	return a.Registry.Terminate(serial)
}
