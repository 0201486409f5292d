package hba

import (
	"regexp"
	"strconv"
	"strings"
)

// adapterRowRe matches inventory rows in 'sasNircu list' output: an adapter
// index followed by a device-family token. Headers, banners and the trailing
// status line don't match and are ignored.
var adapterRowRe = regexp.MustCompile(`^\s*(\d+)\s+(SAS\d{3,4})\b`)

// ParseAdapterList extracts adapters from the raw 'list' output of one tool
// variant.
func ParseAdapterList(output, binary string) []Adapter {
	var adapters []Adapter
	for _, line := range strings.Split(output, "\n") {
		m := adapterRowRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		adapters = append(adapters, Adapter{ID: id, Family: m[2], Binary: binary})
	}
	return adapters
}

// hardDiskMarker opens a drive block in 'sasNircu <n> display' output.
const hardDiskMarker = "Device is a Hard disk"

// ParseDisplay extracts drive records from the raw 'display' output of one
// adapter. Blocks open at the hard-disk marker and close at the Protocol
// line; a block missing serial, enclosure or slot is dropped as noise.
// Field order within a block is free and unrecognized fields are skipped.
func ParseDisplay(output string, adapter Adapter) []DriveRecord {
	var drives []DriveRecord
	var cur *driveBlock

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, hardDiskMarker) {
			// A marker before the previous block's terminator means the
			// block was malformed; it is discarded, not emitted.
			cur = &driveBlock{}
			cur.rec.AdapterID = adapter.ID
			cur.rec.AdapterBinary = adapter.Binary
			continue
		}
		if cur == nil {
			continue
		}

		key, val, ok := splitField(line)
		if !ok {
			continue
		}

		if key == "Protocol" {
			if cur.complete() {
				drives = append(drives, cur.rec)
			}
			cur = nil
			continue
		}
		cur.set(key, val)
	}

	return drives
}

type driveBlock struct {
	rec                           DriveRecord
	haveEnc, haveSlot, haveSerial bool
}

func (b *driveBlock) complete() bool {
	return b.haveEnc && b.haveSlot && b.haveSerial
}

func (b *driveBlock) set(key, val string) {
	switch key {
	case "Enclosure #":
		if n, err := strconv.Atoi(val); err == nil {
			b.rec.Enclosure = n
			b.haveEnc = true
		}
	case "Slot #":
		if n, err := strconv.Atoi(val); err == nil {
			b.rec.Slot = n
			b.haveSlot = true
		}
	case "Serial No":
		if val != "" && val != "N/A" {
			b.rec.Serial = val
			b.haveSerial = true
		}
	case "Model Number":
		b.rec.Model = val
	case "Size (in MB)/(in sectors)":
		// "7501160/15362376263" - only the MB part matters here
		if idx := strings.Index(val, "/"); idx > 0 {
			val = val[:idx]
		}
		b.rec.SizeMB, _ = strconv.ParseInt(val, 10, 64)
	}
}

func splitField(line string) (key, val string, ok bool) {
	parts := strings.SplitN(line, ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), true
}
