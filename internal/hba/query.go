package hba

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sigreer/ledloc/internal/run"
)

// DefaultTimeout bounds each adapter tool invocation. The tools talk to
// firmware and can hang when a link is flapping.
const DefaultTimeout = 5 * time.Second

// adapterBinaries lists the tool variants this engine knows how to drive.
// Both speak the same list/display/locate syntax against different adapter
// generations.
var adapterBinaries = []string{"sas2ircu", "sas3ircu"}

// DetectBinaries returns the adapter query tools present in PATH.
func DetectBinaries() ([]string, error) {
	var found []string
	for _, name := range adapterBinaries {
		if _, err := exec.LookPath(name); err == nil {
			found = append(found, name)
		}
	}
	if len(found) == 0 {
		return nil, ErrNoAdapterTool
	}
	return found, nil
}

// Client queries adapter topology through the firmware CLI tools.
type Client struct {
	Runner   run.Runner
	Binaries []string
	Timeout  time.Duration
	Log      *logrus.Logger
}

// NewClient builds a client over the given tool binaries.
func NewClient(r run.Runner, binaries []string, timeout time.Duration, log *logrus.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{Runner: r, Binaries: binaries, Timeout: timeout, Log: log}
}

// Adapters enumerates adapters across every configured tool variant. A
// variant that fails to list is logged and skipped; missing privilege is
// fatal because every other call would fail the same way.
func (c *Client) Adapters(ctx context.Context) ([]Adapter, error) {
	if len(c.Binaries) == 0 {
		return nil, ErrNoAdapterTool
	}

	var all []Adapter
	for _, bin := range c.Binaries {
		adapters, err := c.listAdapters(ctx, bin)
		if err != nil {
			if errors.Is(err, ErrPermissionDenied) {
				return nil, err
			}
			c.Log.WithError(err).Warnf("adapter listing via %s failed", bin)
			continue
		}
		all = append(all, adapters...)
	}
	return all, nil
}

func (c *Client) listAdapters(ctx context.Context, binary string) ([]Adapter, error) {
	out, err := c.Runner.Run(ctx, c.Timeout, binary, "list")
	if err != nil {
		if run.IsPermissionDenied(out) {
			return nil, ErrPermissionDenied
		}
		return nil, fmt.Errorf("%s list: %w", binary, err)
	}
	return ParseAdapterList(string(out), binary), nil
}

// DisplayDrives dumps and parses one adapter's drive topology.
func (c *Client) DisplayDrives(ctx context.Context, adapter Adapter) ([]DriveRecord, error) {
	out, err := c.Runner.Run(ctx, c.Timeout, adapter.Binary, strconv.Itoa(adapter.ID), "display")
	if err != nil {
		if run.IsPermissionDenied(out) {
			return nil, ErrPermissionDenied
		}
		return nil, fmt.Errorf("%s %d display: %w", adapter.Binary, adapter.ID, err)
	}
	return ParseDisplay(string(out), adapter), nil
}
