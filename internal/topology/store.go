package topology

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sigreer/ledloc/internal/db"
	"github.com/sigreer/ledloc/internal/hba"
)

// DefaultTTL is how long a snapshot is served without re-querying adapters.
const DefaultTTL = 5 * time.Minute

// DefaultCachePath is where the snapshot file lives between invocations.
const DefaultCachePath = "/var/cache/ledloc/topology.json"

// ErrEmptyInventory indicates a rebuild found zero drives on every adapter.
// The prior snapshot, if any, is left in place so a transient tool failure
// cannot erase a good inventory.
var ErrEmptyInventory = errors.New("no drives found on any adapter")

// Snapshot is one immutable merged inventory across all adapters.
type Snapshot struct {
	Drives     []hba.DriveRecord `json:"drives"`
	CapturedAt time.Time         `json:"captured_at"`
}

// FindSerial looks a drive up by serial, case-insensitively.
func (s *Snapshot) FindSerial(serial string) *hba.DriveRecord {
	want := hba.NormalizeSerial(serial)
	for i := range s.Drives {
		if hba.NormalizeSerial(s.Drives[i].Serial) == want {
			return &s.Drives[i]
		}
	}
	return nil
}

// Serials returns the set of normalized serials in the snapshot.
func (s *Snapshot) Serials() map[string]bool {
	set := make(map[string]bool, len(s.Drives))
	for _, rec := range s.Drives {
		set[hba.NormalizeSerial(rec.Serial)] = true
	}
	return set
}

// ByAdapter partitions the snapshot's drives by owning adapter.
func (s *Snapshot) ByAdapter() map[string][]hba.DriveRecord {
	parts := make(map[string][]hba.DriveRecord)
	for _, rec := range s.Drives {
		key := rec.AdapterKey()
		parts[key] = append(parts[key], rec)
	}
	return parts
}

// Store owns the topology cache: a snapshot file whose modification time is
// the freshness clock, plus the in-memory copy for the current invocation.
// Rebuilds replace the file atomically; readers never see a partial write.
type Store struct {
	client  *hba.Client
	path    string
	ttl     time.Duration
	history *db.DB // optional, best-effort
	log     *logrus.Logger

	mu  sync.Mutex
	cur *Snapshot
}

// New builds a store over the given adapter client. history may be nil.
func New(client *hba.Client, path string, ttl time.Duration, history *db.DB, log *logrus.Logger) *Store {
	if path == "" {
		path = DefaultCachePath
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, path: path, ttl: ttl, history: history, log: log}
}

// Get returns the current snapshot, serving the cache when it is younger
// than the TTL and force is unset. A forced call always rebuilds.
func (s *Store) Get(ctx context.Context, force bool) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !force {
		if snap := s.cached(); snap != nil {
			return snap, nil
		}
	}
	return s.rebuild(ctx)
}

// cached returns a fresh snapshot or nil. The in-memory copy is preferred;
// otherwise the cache file is loaded if its mtime is within the TTL.
func (s *Store) cached() *Snapshot {
	if s.cur != nil && time.Since(s.cur.CapturedAt) < s.ttl {
		return s.cur
	}

	fi, err := os.Stat(s.path)
	if err != nil || time.Since(fi.ModTime()) >= s.ttl {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.log.WithError(err).Warnf("discarding unreadable topology cache %s", s.path)
		return nil
	}
	if len(snap.Drives) == 0 {
		return nil
	}
	s.cur = &snap
	return &snap
}

// rebuild queries every adapter and replaces the snapshot. Adapter queries
// run sequentially; a rebuild is infrequent and the tools dislike overlap.
func (s *Store) rebuild(ctx context.Context) (*Snapshot, error) {
	adapters, err := s.client.Adapters(ctx)
	if err != nil {
		return nil, err
	}

	var drives []hba.DriveRecord
	seen := make(map[string]bool)
	for _, adapter := range adapters {
		recs, err := s.client.DisplayDrives(ctx, adapter)
		if err != nil {
			if errors.Is(err, hba.ErrPermissionDenied) {
				return nil, err
			}
			s.log.WithError(err).Warnf("adapter %s drive query failed", adapter.Key())
			continue
		}
		for _, rec := range recs {
			key := hba.NormalizeSerial(rec.Serial)
			if seen[key] {
				s.log.Warnf("duplicate serial %s on adapter %s, keeping first record", rec.Serial, adapter.Key())
				continue
			}
			seen[key] = true
			drives = append(drives, rec)
		}
	}

	if len(drives) == 0 {
		return nil, ErrEmptyInventory
	}

	sort.Slice(drives, func(i, j int) bool {
		a, b := drives[i], drives[j]
		if a.AdapterKey() != b.AdapterKey() {
			return a.AdapterKey() < b.AdapterKey()
		}
		if a.Enclosure != b.Enclosure {
			return a.Enclosure < b.Enclosure
		}
		return a.Slot < b.Slot
	})

	snap := &Snapshot{Drives: drives, CapturedAt: time.Now()}
	if err := s.persist(snap); err != nil {
		s.log.WithError(err).Warnf("could not persist topology cache %s", s.path)
	}
	if s.history != nil {
		if err := s.history.RecordDrives(snap.Drives); err != nil {
			s.log.WithError(err).Warn("could not record inventory history")
		}
	}
	s.cur = snap
	return snap, nil
}

// persist writes the snapshot to a temp file and renames it over the cache,
// so the cache is always either the old snapshot or the new one.
func (s *Store) persist(snap *Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".topology-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace topology cache: %w", err)
	}
	return nil
}
