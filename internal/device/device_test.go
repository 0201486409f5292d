package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	out []byte
	err error
}

func (f *fakeRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) ([]byte, error) {
	return f.out, f.err
}

const smartctlOutput = `smartctl 7.4 2023-08-01 r5530 [x86_64-linux-6.6.30] (local build)
Copyright (C) 2002-23, Bruce Allen, Christian Franke, www.smartmontools.org

=== START OF INFORMATION SECTION ===
Vendor:               SEAGATE
Product:              ST8000NM0075
Serial Number:        ZR50MFBH
Logical block size:   512 bytes
`

func TestSerial(t *testing.T) {
	l := NewLookup(&fakeRunner{out: []byte(smartctlOutput)}, 0)

	serial, err := l.Serial(context.Background(), "/dev/sda")
	require.NoError(t, err)
	assert.Equal(t, "ZR50MFBH", serial)
}

func TestSerialToleratesNonZeroExit(t *testing.T) {
	// smartctl flags failing health checks through its exit status while
	// still printing the identity section.
	l := NewLookup(&fakeRunner{out: []byte(smartctlOutput), err: errors.New("exit status 4")}, 0)

	serial, err := l.Serial(context.Background(), "/dev/sda")
	require.NoError(t, err)
	assert.Equal(t, "ZR50MFBH", serial)
}

func TestSerialMissing(t *testing.T) {
	l := NewLookup(&fakeRunner{out: []byte("=== START OF INFORMATION SECTION ===\n")}, 0)

	_, err := l.Serial(context.Background(), "/dev/sda")
	require.ErrorIs(t, err, ErrNoSerial)
}

const lsblkOutput = `sda  disk ZR50MFBH
sdb  disk
sdc  disk D4HCI001
sr0  rom  QM00003
dm-0 lvm
`

func TestListDisks(t *testing.T) {
	l := NewLookup(&fakeRunner{out: []byte(lsblkOutput)}, 0)

	disks, err := l.ListDisks(context.Background())
	require.NoError(t, err)
	require.Len(t, disks, 3)

	assert.Equal(t, BlockDevice{Path: "/dev/sda", Serial: "ZR50MFBH"}, disks[0])
	assert.Equal(t, BlockDevice{Path: "/dev/sdb"}, disks[1])
	assert.Equal(t, BlockDevice{Path: "/dev/sdc", Serial: "D4HCI001"}, disks[2])
}
