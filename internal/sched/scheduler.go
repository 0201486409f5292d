package sched

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sigreer/ledloc/internal/db"
	"github.com/sigreer/ledloc/internal/device"
	"github.com/sigreer/ledloc/internal/hba"
	"github.com/sigreer/ledloc/internal/resolve"
	"github.com/sigreer/ledloc/internal/run"
	"github.com/sigreer/ledloc/internal/topology"
)

// Result statuses. Every unit of work produces exactly one labeled result.
const (
	StatusOK      = "ok"
	StatusWarning = "warning"
	StatusError   = "error"
)

// Actuator performs one locate-state change against one drive.
type Actuator interface {
	SetLocate(ctx context.Context, rec hba.DriveRecord, on bool) error
	StartBlink(devicePath, serial string) error
	StopBlink(serial string) error
}

// BlinkSweeper terminates every registered blink job.
type BlinkSweeper interface {
	TerminateAll() int
}

// DiskLister enumerates local block devices for AHCI candidate discovery.
type DiskLister interface {
	ListDisks(ctx context.Context) ([]device.BlockDevice, error)
}

// SerialLookup resolves a device path to its reported serial.
type SerialLookup interface {
	Serial(ctx context.Context, devicePath string) (string, error)
}

// TopologySource serves the current inventory snapshot.
type TopologySource interface {
	Get(ctx context.Context, force bool) (*topology.Snapshot, error)
}

// Resolver maps an identifier onto the topology.
type Resolver interface {
	Resolve(ctx context.Context, identifier string) (*resolve.Resolution, error)
}

// Result is one labeled outcome line for one unit of work.
type Result struct {
	Unit   string `json:"unit"` // serial or device path
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// AdapterResult is one adapter's tally after its serial sweep.
type AdapterResult struct {
	Adapter string `json:"adapter"`
	OK      int    `json:"ok"`
	Failed  int    `json:"failed"`
}

// Summary is the joined outcome of one bulk operation.
type Summary struct {
	TotalDrives int             `json:"total_drives"`
	Adapters    []AdapterResult `json:"adapters"`
	AHCICount   int             `json:"ahci_count"`
	Results     []Result        `json:"results"`
	Elapsed     time.Duration   `json:"elapsed"`
}

// Failed is the total number of failed units across all adapters.
func (s *Summary) Failed() int {
	n := 0
	for _, a := range s.Adapters {
		n += a.Failed
	}
	return n
}

// Scheduler fans locate work out across adapters and the AHCI fallback
// population. Its one hard ordering rule: within a single adapter, firmware
// calls run strictly one at a time - concurrent calls corrupt firmware
// state. Across adapters everything runs in parallel, so a bulk sweep costs
// about as much as the slowest adapter, not the sum of all of them.
type Scheduler struct {
	Topo    TopologySource
	Res     Resolver
	Act     Actuator
	Blink   BlinkSweeper
	Disks   DiskLister
	Serials SerialLookup
	History *db.DB // optional run log
	Log     *logrus.Logger
}

// List returns the ground-truth inventory view. It always forces a rebuild;
// a listing served from cache defeats its purpose.
func (s *Scheduler) List(ctx context.Context) (*topology.Snapshot, error) {
	return s.Topo.Get(ctx, true)
}

// LocateOne changes the locate state of a single drive identified by device
// path or serial. SAS drives go through firmware; a device path with no SAS
// record falls back to the blink proxy.
func (s *Scheduler) LocateOne(ctx context.Context, identifier string, on bool) (*Result, error) {
	res, err := s.Res.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}

	if res.Record != nil {
		rec := *res.Record
		if err := s.Act.SetLocate(ctx, rec, on); err != nil {
			if errors.Is(err, run.ErrTimeout) {
				return &Result{Unit: rec.Serial, Status: StatusWarning, Detail: err.Error()}, nil
			}
			return nil, err
		}
		return &Result{
			Unit:   rec.Serial,
			Status: StatusOK,
			Detail: fmt.Sprintf("locate %s for %s bay %s", stateWord(on), rec.AdapterKey(), rec.Bay()),
		}, nil
	}

	// AHCI fallback: no SAS record for this device.
	if on {
		if err := s.Act.StartBlink(res.DevicePath, res.Serial); err != nil {
			return nil, err
		}
		return &Result{Unit: res.DevicePath, Status: StatusOK, Detail: "blink started (no locate LED on this controller)"}, nil
	}
	if err := s.Act.StopBlink(res.Serial); err != nil {
		return nil, err
	}
	return &Result{Unit: res.DevicePath, Status: StatusOK, Detail: "blink stopped"}, nil
}

// BulkSetLocate applies one locate state to every known drive. SAS drives
// are swept per adapter; AHCI candidates are blinked (ON) or all registered
// blink jobs are stopped (OFF). Per-drive failures are aggregated, never
// fatal to sibling work.
func (s *Scheduler) BulkSetLocate(ctx context.Context, on bool) (*Summary, error) {
	start := time.Now()

	snap, err := s.Topo.Get(ctx, false)
	if err != nil {
		// Turning everything off must still stop blink jobs when no SAS
		// drive exists at all.
		if !on && errors.Is(err, topology.ErrEmptyInventory) {
			snap = &topology.Snapshot{}
		} else {
			return nil, err
		}
	}

	parts := snap.ByAdapter()
	keys := make([]string, 0, len(parts))
	for key := range parts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	sum := &Summary{TotalDrives: len(snap.Drives)}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, key := range keys {
		wg.Add(1)
		go func(key string, drives []hba.DriveRecord) {
			defer wg.Done()
			ar, results := s.sweepAdapter(ctx, key, drives, on)
			mu.Lock()
			sum.Adapters = append(sum.Adapters, ar)
			sum.Results = append(sum.Results, results...)
			mu.Unlock()
		}(key, parts[key])
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if on {
			count, results := s.startAHCIBlinks(ctx, snap)
			mu.Lock()
			sum.AHCICount = count
			sum.Results = append(sum.Results, results...)
			mu.Unlock()
			return
		}
		stopped := s.Blink.TerminateAll()
		mu.Lock()
		sum.AHCICount = stopped
		sum.Results = append(sum.Results, Result{
			Unit:   "blink",
			Status: StatusOK,
			Detail: fmt.Sprintf("stopped %d blink job(s)", stopped),
		})
		mu.Unlock()
	}()

	wg.Wait()

	sort.Slice(sum.Adapters, func(i, j int) bool {
		return sum.Adapters[i].Adapter < sum.Adapters[j].Adapter
	})
	sum.Elapsed = time.Since(start)

	if s.History != nil {
		if _, err := s.History.RecordRun("bulk-"+stateWord(on), sum.TotalDrives, sum.AHCICount, sum.Failed(), sum.Elapsed); err != nil {
			s.Log.WithError(err).Warn("could not record run history")
		}
	}
	return sum, nil
}

// sweepAdapter applies the state to one adapter's drives strictly in order.
func (s *Scheduler) sweepAdapter(ctx context.Context, key string, drives []hba.DriveRecord, on bool) (AdapterResult, []Result) {
	ar := AdapterResult{Adapter: key}
	results := make([]Result, 0, len(drives))

	for _, rec := range drives {
		err := s.Act.SetLocate(ctx, rec, on)
		if err == nil {
			ar.OK++
			results = append(results, Result{Unit: rec.Serial, Status: StatusOK, Detail: "locate " + stateWord(on)})
			continue
		}
		ar.Failed++
		status := StatusError
		if errors.Is(err, run.ErrTimeout) {
			status = StatusWarning
			s.Log.Warnf("locate timed out for %s bay %s", key, rec.Bay())
		}
		results = append(results, Result{Unit: rec.Serial, Status: status, Detail: err.Error()})
	}
	return ar, results
}

// startAHCIBlinks discovers local devices whose serial is absent from the
// SAS snapshot and starts a blink job for each. The devices are independent
// of each other and of the adapter sweeps, so starts run concurrently.
func (s *Scheduler) startAHCIBlinks(ctx context.Context, snap *topology.Snapshot) (int, []Result) {
	disks, err := s.Disks.ListDisks(ctx)
	if err != nil {
		s.Log.WithError(err).Warn("AHCI candidate discovery unavailable")
		return 0, []Result{{Unit: "ahci", Status: StatusWarning, Detail: "device discovery unavailable: " + err.Error()}}
	}

	known := snap.Serials()
	count := 0
	var results []Result
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, disk := range disks {
		wg.Add(1)
		go func(disk device.BlockDevice) {
			defer wg.Done()

			serial := disk.Serial
			if serial == "" {
				looked, err := s.Serials.Serial(ctx, disk.Path)
				if err != nil {
					// A device with no readable serial matches neither
					// inventory; surface it instead of skipping silently.
					mu.Lock()
					results = append(results, Result{Unit: disk.Path, Status: StatusWarning, Detail: "unidentifiable device: " + err.Error()})
					mu.Unlock()
					return
				}
				serial = looked
			}
			if known[hba.NormalizeSerial(serial)] {
				return // SAS drive, handled by its adapter sweep
			}

			res := Result{Unit: disk.Path, Status: StatusOK, Detail: "blink started"}
			if err := s.Act.StartBlink(disk.Path, serial); err != nil {
				res.Status = StatusError
				res.Detail = err.Error()
			}
			mu.Lock()
			if res.Status == StatusOK {
				count++
			}
			results = append(results, res)
			mu.Unlock()
		}(disk)
	}
	wg.Wait()
	return count, results
}

func stateWord(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
