package blink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/sigreer/ledloc/internal/hba"
)

// DefaultRunDir holds one marker file per active blink job.
const DefaultRunDir = "/run/ledloc"

// markerPrefix + normalized serial + markerSuffix names a job's marker file.
const (
	markerPrefix = "blink-"
	markerSuffix = ".pid"
)

// Job is one live background blink process, identified by the process group
// it was spawned into.
type Job struct {
	Serial string
	Device string
	PGID   int
}

// Registry tracks background blink processes through marker files under the
// run dir, so a later invocation of the tool can find and stop jobs an
// earlier one started. The registry is the only component that signals
// these processes. All mutation happens under one lock; concurrent starts
// for distinct serials race on the directory otherwise.
type Registry struct {
	dir string
	log *logrus.Logger

	mu      sync.Mutex
	started map[string]bool // serials registered by this invocation
}

// NewRegistry opens (creating if needed) the registry at dir.
func NewRegistry(dir string, log *logrus.Logger) (*Registry, error) {
	if dir == "" {
		dir = DefaultRunDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blink run dir: %w", err)
	}
	return &Registry{dir: dir, log: log, started: make(map[string]bool)}, nil
}

func (r *Registry) markerPath(serial string) string {
	return filepath.Join(r.dir, markerPrefix+hba.NormalizeSerial(serial)+markerSuffix)
}

// Register records a new blink job for serial, terminating any existing job
// for the same serial first so at most one is ever live per drive.
func (r *Registry) Register(serial, device string, pgid int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.terminateLocked(serial)

	marker := r.markerPath(serial)
	body := fmt.Sprintf("%d %s\n", pgid, device)
	if err := os.WriteFile(marker, []byte(body), 0644); err != nil {
		return fmt.Errorf("failed to write blink marker: %w", err)
	}
	r.started[hba.NormalizeSerial(serial)] = true
	return nil
}

// Lookup returns the live job for serial, if any. A marker whose process
// group is gone is treated as absent and cleaned up.
func (r *Registry) Lookup(serial string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookupLocked(serial)
}

func (r *Registry) lookupLocked(serial string) (*Job, bool) {
	job, err := readMarker(r.markerPath(serial))
	if err != nil {
		return nil, false
	}
	job.Serial = hba.NormalizeSerial(serial)
	if !groupAlive(job.PGID) {
		os.Remove(r.markerPath(serial))
		return nil, false
	}
	return job, true
}

// Terminate stops the blink job for serial. No job is a no-op, not an error.
func (r *Registry) Terminate(serial string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terminateLocked(serial)
	return nil
}

func (r *Registry) terminateLocked(serial string) {
	marker := r.markerPath(serial)
	job, err := readMarker(marker)
	if err == nil {
		killGroup(job.PGID)
	}
	os.Remove(marker)
	delete(r.started, hba.NormalizeSerial(serial))
}

// TerminateAll stops every registered blink job, including jobs started by
// earlier invocations, and returns how many it stopped. Individual failures
// are logged and do not stop the sweep.
func (r *Registry) TerminateAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		r.log.WithError(err).Warnf("could not scan blink run dir %s", r.dir)
		return 0
	}

	stopped := 0
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, markerPrefix) || !strings.HasSuffix(name, markerSuffix) {
			continue
		}
		marker := filepath.Join(r.dir, name)
		job, err := readMarker(marker)
		if err != nil {
			r.log.WithError(err).Warnf("removing unreadable blink marker %s", name)
			os.Remove(marker)
			continue
		}
		killGroup(job.PGID)
		os.Remove(marker)
		stopped++
	}
	r.started = make(map[string]bool)
	return stopped
}

// StopStarted stops only the jobs registered by this invocation. It backs
// the signal-cleanup path: an interrupted run takes its own jobs with it
// and leaves jobs from earlier invocations alone.
func (r *Registry) StopStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for serial := range r.started {
		r.terminateLocked(serial)
	}
}

// readMarker parses "pgid device\n" out of a marker file.
func readMarker(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(string(data))
	if len(fields) < 1 {
		return nil, errors.New("empty blink marker")
	}
	pgid, err := strconv.Atoi(fields[0])
	if err != nil || pgid <= 0 {
		return nil, fmt.Errorf("bad pgid in blink marker: %q", fields[0])
	}
	job := &Job{PGID: pgid}
	if len(fields) > 1 {
		job.Device = fields[1]
	}
	return job, nil
}

// killGroup signals an entire process group. The blink cycle spawns a child
// per iteration, so signalling only the leader would orphan the in-flight
// read. An already-gone group is fine.
func killGroup(pgid int) {
	err := unix.Kill(-pgid, unix.SIGTERM)
	if err != nil && !errors.Is(err, unix.ESRCH) {
		unix.Kill(-pgid, unix.SIGKILL)
	}
}

// groupAlive reports whether any process in the group still exists.
func groupAlive(pgid int) bool {
	err := unix.Kill(-pgid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
