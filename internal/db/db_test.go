package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigreer/ledloc/internal/hba"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := New(filepath.Join(t.TempDir(), "inventory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestRecordDrivesAndLastSeen(t *testing.T) {
	d := newTestDB(t)

	drives := []hba.DriveRecord{
		{AdapterBinary: "sas3ircu", AdapterID: 0, Enclosure: 2, Slot: 0, Serial: "ZR50MFBH", Model: "ST8000NM0075", SizeMB: 7501160},
		{AdapterBinary: "sas2ircu", AdapterID: 1, Enclosure: 1, Slot: 4, Serial: "WCK5NWKQ"},
	}
	require.NoError(t, d.RecordDrives(drives))

	rec, seen, err := d.LastSeen("zr50mfbh")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "ZR50MFBH", rec.Serial)
	assert.Equal(t, 2, rec.Enclosure)
	assert.Equal(t, "ST8000NM0075", rec.Model)
	assert.WithinDuration(t, time.Now(), seen, time.Minute)

	rec, _, err = d.LastSeen("UNKNOWN")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRecordDrivesUpsertKeepsModel(t *testing.T) {
	d := newTestDB(t)

	require.NoError(t, d.RecordDrives([]hba.DriveRecord{
		{AdapterBinary: "sas3ircu", AdapterID: 0, Enclosure: 2, Slot: 0, Serial: "ZR50MFBH", Model: "ST8000NM0075"},
	}))
	// A later snapshot that lost the model must not erase it.
	require.NoError(t, d.RecordDrives([]hba.DriveRecord{
		{AdapterBinary: "sas3ircu", AdapterID: 0, Enclosure: 2, Slot: 3, Serial: "ZR50MFBH"},
	}))

	rec, _, err := d.LastSeen("ZR50MFBH")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 3, rec.Slot)
	assert.Equal(t, "ST8000NM0075", rec.Model)
}

func TestRecordRun(t *testing.T) {
	d := newTestDB(t)

	id, err := d.RecordRun("bulk-on", 12, 2, 1, 3*time.Second)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}
