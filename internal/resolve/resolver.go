package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sigreer/ledloc/internal/db"
	"github.com/sigreer/ledloc/internal/hba"
	"github.com/sigreer/ledloc/internal/topology"
)

// ErrNotFound indicates an identifier that matches no known drive.
var ErrNotFound = errors.New("drive not found")

// SerialLookup resolves a block device path to the serial it reports.
type SerialLookup interface {
	Serial(ctx context.Context, devicePath string) (string, error)
}

// TopologySource serves the current inventory snapshot.
type TopologySource interface {
	Get(ctx context.Context, force bool) (*topology.Snapshot, error)
}

// Resolution is the outcome of resolving one identifier. Record is nil when
// the identifier names a device with no SAS-side record; for a device path
// that is the AHCI fallback signal, not an error.
type Resolution struct {
	Record       *hba.DriveRecord
	IsDevicePath bool
	DevicePath   string // set when the identifier was a device path
	Serial       string // normalized serial the lookup went through
}

// Resolver maps user identifiers (device path or serial) onto the SAS
// topology.
type Resolver struct {
	Topo    TopologySource
	Lookup  SerialLookup
	History *db.DB // optional, enriches not-found errors with last-seen data
}

// Resolve maps an identifier to its drive record. A device path is first
// resolved to a serial through the device itself; failure there is a hard
// error since the identifier cannot be disambiguated. A bare identifier is
// treated as a serial directly.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (*Resolution, error) {
	res := &Resolution{}

	serial := identifier
	if strings.HasPrefix(identifier, "/") {
		res.IsDevicePath = true
		res.DevicePath = identifier

		looked, err := r.Lookup.Serial(ctx, identifier)
		if err != nil {
			return nil, fmt.Errorf("cannot identify %s: %w", identifier, err)
		}
		serial = looked
	}
	res.Serial = hba.NormalizeSerial(serial)

	snap, err := r.Topo.Get(ctx, false)
	if err != nil {
		return nil, err
	}

	if rec := snap.FindSerial(res.Serial); rec != nil {
		res.Record = rec
		return res, nil
	}

	if res.IsDevicePath {
		// Not on any SAS adapter: the caller proceeds down the AHCI path.
		return res, nil
	}
	return nil, r.notFound(identifier)
}

// notFound builds the error for an unmatched bare serial, adding the
// last-known location from the inventory history when one exists.
func (r *Resolver) notFound(identifier string) error {
	if r.History != nil {
		rec, seen, err := r.History.LastSeen(identifier)
		if err == nil && rec != nil {
			return fmt.Errorf("%w: %s (last seen %s on %s enclosure %d slot %d)",
				ErrNotFound, identifier, seen.Format("2006-01-02 15:04"),
				rec.AdapterKey(), rec.Enclosure, rec.Slot)
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, identifier)
}
