package topology

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigreer/ledloc/internal/hba"
)

// fakeRunner serves canned output per command line and counts calls.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	outputs map[string]string
}

func (f *fakeRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) ([]byte, error) {
	key := strings.Join(append([]string{name}, args...), " ")
	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.mu.Unlock()

	out, ok := f.outputs[key]
	if !ok {
		return nil, fmt.Errorf("unexpected command %q", key)
	}
	return []byte(out), nil
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

const listTwoAdapters = `
   0     SAS3008     1000h    97h   00h:01h:00h:00h      1028h   1f45h
   3     SAS3008     1000h    97h   00h:02h:00h:00h      1028h   1f45h
`

func displayWith(serials ...string) string {
	var b strings.Builder
	for i, serial := range serials {
		fmt.Fprintf(&b, `Device is a Hard disk
  Enclosure #                             : 2
  Slot #                                  : %d
  Serial No                               : %s
  Model Number                            : ST8000NM0075
  Size (in MB)/(in sectors)               : 7501160/15362376263
  Protocol                                : SAS

`, i, serial)
	}
	return b.String()
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestStore(t *testing.T, runner *fakeRunner, path string) *Store {
	t.Helper()
	client := hba.NewClient(runner, []string{"sas3ircu"}, time.Second, quietLogger())
	return New(client, path, 5*time.Minute, nil, quietLogger())
}

func twoAdapterRunner() *fakeRunner {
	return &fakeRunner{outputs: map[string]string{
		"sas3ircu list":      listTwoAdapters,
		"sas3ircu 0 display": displayWith("AAAA0001", "AAAA0002"),
		"sas3ircu 3 display": displayWith("BBBB0001"),
	}}
}

func TestGetRebuildsAndMerges(t *testing.T) {
	runner := twoAdapterRunner()
	store := newTestStore(t, runner, filepath.Join(t.TempDir(), "topology.json"))

	snap, err := store.Get(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, snap.Drives, 3)

	// list + one display per adapter
	assert.Equal(t, 3, runner.callCount())

	parts := snap.ByAdapter()
	require.Len(t, parts, 2)
	assert.Len(t, parts["sas3ircu:0"], 2)
	assert.Len(t, parts["sas3ircu:3"], 1)
}

func TestGetServesCacheWithinTTL(t *testing.T) {
	runner := twoAdapterRunner()
	path := filepath.Join(t.TempDir(), "topology.json")
	store := newTestStore(t, runner, path)

	_, err := store.Get(context.Background(), false)
	require.NoError(t, err)
	before := runner.callCount()

	// Second fetch within the TTL performs zero external queries.
	snap, err := store.Get(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, snap.Drives, 3)
	assert.Equal(t, before, runner.callCount())

	// A fresh store over the same cache file (a later invocation) serves
	// the file without querying either.
	runner2 := twoAdapterRunner()
	store2 := newTestStore(t, runner2, path)
	snap2, err := store2.Get(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, snap2.Drives, 3)
	assert.Equal(t, 0, runner2.callCount())
}

func TestGetForceAlwaysRebuilds(t *testing.T) {
	runner := twoAdapterRunner()
	store := newTestStore(t, runner, filepath.Join(t.TempDir(), "topology.json"))

	_, err := store.Get(context.Background(), false)
	require.NoError(t, err)
	before := runner.callCount()

	_, err = store.Get(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, before*2, runner.callCount())
}

func TestEmptyRebuildKeepsPriorSnapshot(t *testing.T) {
	runner := twoAdapterRunner()
	path := filepath.Join(t.TempDir(), "topology.json")
	store := newTestStore(t, runner, path)

	_, err := store.Get(context.Background(), false)
	require.NoError(t, err)

	// The adapters now report nothing.
	runner.mu.Lock()
	runner.outputs["sas3ircu 0 display"] = ""
	runner.outputs["sas3ircu 3 display"] = ""
	runner.mu.Unlock()

	_, err = store.Get(context.Background(), true)
	require.ErrorIs(t, err, ErrEmptyInventory)

	// The cache file still holds the previous good inventory.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Len(t, snap.Drives, 3)
}

func TestFindSerialIsCaseInsensitive(t *testing.T) {
	snap := &Snapshot{Drives: []hba.DriveRecord{{Serial: "ZR50MFBH", Enclosure: 2, Slot: 5}}}

	rec := snap.FindSerial("zr50mfbh")
	require.NotNil(t, rec)
	assert.Equal(t, 5, rec.Slot)
	assert.Nil(t, snap.FindSerial("missing"))
}
