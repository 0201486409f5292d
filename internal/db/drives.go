package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sigreer/ledloc/internal/hba"
)

// RecordDrives upserts the drives of a fresh topology snapshot, preserving
// each serial's first-seen timestamp.
func (d *DB) RecordDrives(drives []hba.DriveRecord) error {
	now := time.Now()

	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}

	for _, rec := range drives {
		_, err := tx.Exec(`
			INSERT INTO drives (
				serial, adapter_binary, adapter_id, enclosure, slot,
				model, size_mb, first_seen, last_seen
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(serial) DO UPDATE SET
				adapter_binary = excluded.adapter_binary,
				adapter_id = excluded.adapter_id,
				enclosure = excluded.enclosure,
				slot = excluded.slot,
				model = COALESCE(NULLIF(excluded.model, ''), model),
				size_mb = COALESCE(NULLIF(excluded.size_mb, 0), size_mb),
				last_seen = excluded.last_seen
		`,
			hba.NormalizeSerial(rec.Serial), rec.AdapterBinary, rec.AdapterID,
			rec.Enclosure, rec.Slot, rec.Model, rec.SizeMB, now, now,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to upsert drive %s: %w", rec.Serial, err)
		}
	}

	return tx.Commit()
}

// LastSeen returns the last recorded location for a serial, or nil when the
// serial has never been inventoried.
func (d *DB) LastSeen(serial string) (*hba.DriveRecord, time.Time, error) {
	row := d.conn.QueryRow(`
		SELECT serial, adapter_binary, adapter_id, enclosure, slot,
			COALESCE(model, ''), COALESCE(size_mb, 0), last_seen
		FROM drives WHERE serial = ?
	`, hba.NormalizeSerial(serial))

	var rec hba.DriveRecord
	var seen time.Time
	err := row.Scan(&rec.Serial, &rec.AdapterBinary, &rec.AdapterID,
		&rec.Enclosure, &rec.Slot, &rec.Model, &rec.SizeMB, &seen)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to query drive %s: %w", serial, err)
	}
	return &rec, seen, nil
}

// RecordRun logs one batch operation and returns its run id.
func (d *DB) RecordRun(action string, totalDrives, ahciCount, failed int, elapsed time.Duration) (string, error) {
	id := uuid.NewString()
	_, err := d.conn.Exec(`
		INSERT INTO runs (id, action, total_drives, ahci_count, failed, elapsed_ms, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, action, totalDrives, ahciCount, failed, elapsed.Milliseconds(), time.Now())
	if err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}
	return id, nil
}
