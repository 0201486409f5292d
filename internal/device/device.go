package device

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sigreer/ledloc/internal/run"
)

// Common errors
var (
	ErrSmartctlMissing = errors.New("smartctl not found in PATH (install smartmontools)")
	ErrLsblkMissing    = errors.New("lsblk not found in PATH")
	ErrNoSerial        = errors.New("device reports no serial number")
)

// DefaultTimeout bounds each device query. Reading identity pages from a
// failing drive can stall for a long time.
const DefaultTimeout = 5 * time.Second

// BlockDevice is one local whole-disk block device.
type BlockDevice struct {
	Path   string // /dev/sdX
	Serial string // may be empty when lsblk could not read it
}

// Lookup answers device-side identity questions by shelling out to
// smartctl and lsblk. Device names are never cached: the kernel can
// reassign them across reboots, so every invocation resolves live.
type Lookup struct {
	Runner  run.Runner
	Timeout time.Duration
}

// NewLookup builds a Lookup with the default timeout when none is given.
func NewLookup(r run.Runner, timeout time.Duration) *Lookup {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Lookup{Runner: r, Timeout: timeout}
}

// Serial returns the serial number the device itself reports.
func (l *Lookup) Serial(ctx context.Context, devicePath string) (string, error) {
	out, err := l.Runner.Run(ctx, l.Timeout, "smartctl", "-i", devicePath)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", ErrSmartctlMissing
		}
		// smartctl exits non-zero for plenty of benign reasons; if the
		// identity section still contains a serial, use it.
		if serial := parseSmartctlSerial(string(out)); serial != "" {
			return serial, nil
		}
		return "", fmt.Errorf("smartctl -i %s: %w", devicePath, err)
	}
	if serial := parseSmartctlSerial(string(out)); serial != "" {
		return serial, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNoSerial, devicePath)
}

func parseSmartctlSerial(output string) string {
	for _, line := range strings.Split(output, "\n") {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.TrimSpace(parts[0]) == "Serial Number" {
			return strings.TrimSpace(parts[1])
		}
	}
	return ""
}

// ListDisks enumerates local whole-disk devices with whatever serial lsblk
// can read. Partitions and virtual devices are excluded.
func (l *Lookup) ListDisks(ctx context.Context) ([]BlockDevice, error) {
	out, err := l.Runner.Run(ctx, l.Timeout, "lsblk", "-dn", "-o", "NAME,TYPE,SERIAL")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, ErrLsblkMissing
		}
		return nil, fmt.Errorf("lsblk: %w", err)
	}

	var disks []BlockDevice
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[1] != "disk" {
			continue
		}
		disk := BlockDevice{Path: "/dev/" + fields[0]}
		if len(fields) >= 3 {
			disk.Serial = fields[2]
		}
		disks = append(disks, disk)
	}
	return disks, nil
}
