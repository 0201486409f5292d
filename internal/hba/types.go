package hba

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors
var (
	ErrNoAdapterTool    = errors.New("no adapter query tool found in PATH (sas2ircu/sas3ircu)")
	ErrPermissionDenied = errors.New("permission denied (requires root)")
)

// Adapter is one SAS HBA as reported by a query tool's list output.
// Indexes are only stable within a single run of the tool.
type Adapter struct {
	ID     int    `json:"id"`     // index the tool addresses the adapter by
	Family string `json:"family"` // device family token from the list row (SAS3008, ...)
	Binary string `json:"binary"` // which tool variant listed it (sas2ircu or sas3ircu)
}

// Key returns a stable within-run identifier for the adapter. Two tool
// variants can each report an adapter 0, so the binary is part of the key.
func (a Adapter) Key() string {
	return fmt.Sprintf("%s:%d", a.Binary, a.ID)
}

// DriveRecord is one physical drive attached to a SAS adapter.
// (AdapterBinary, AdapterID, Enclosure, Slot) identifies a bay; Serial
// identifies the physical drive and is the only key shared with the
// device-side inventory.
type DriveRecord struct {
	AdapterID     int    `json:"adapter_id"`
	AdapterBinary string `json:"adapter_binary"`
	Enclosure     int    `json:"enclosure"`
	Slot          int    `json:"slot"`
	Serial        string `json:"serial"`
	Model         string `json:"model,omitempty"`
	SizeMB        int64  `json:"size_mb,omitempty"`
}

// AdapterKey returns the owning adapter's key (see Adapter.Key).
func (r DriveRecord) AdapterKey() string {
	return fmt.Sprintf("%s:%d", r.AdapterBinary, r.AdapterID)
}

// Bay formats the drive's physical position the way the firmware tools
// address it.
func (r DriveRecord) Bay() string {
	return fmt.Sprintf("%d:%d", r.Enclosure, r.Slot)
}

// NormalizeSerial upper-cases and trims a serial for comparison. Serial
// matching is case-insensitive everywhere in this tool.
func NormalizeSerial(serial string) string {
	return strings.ToUpper(strings.TrimSpace(serial))
}
