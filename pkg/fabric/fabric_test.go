package fabric

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/worldline-systems/wll/pkg/wcrypto"
)

func TestClockStrictlyMonotonic(t *testing.T) {
	fixedWall := time.UnixMilli(1000)
	c := NewClockWithWallFunc(1, func() time.Time { return fixedWall })

	var prev TemporalAnchor
	for i := 0; i < 5; i++ {
		next := c.Now()
		if i > 0 {
			require.True(t, prev.Less(next))
		}
		prev = next
	}
}

func TestClockUpdateMergesRemote(t *testing.T) {
	fixedWall := time.UnixMilli(500)
	c := NewClockWithWallFunc(1, func() time.Time { return fixedWall })

	local := c.Now()
	remote := TemporalAnchor{Physical: 2000, Logical: 3, NodeId: 9}
	merged := c.Update(remote)

	require.True(t, local.Less(merged))
	require.Equal(t, int64(2000), merged.Physical)
}

func TestEventIntegrityHash(t *testing.T) {
	ts := TemporalAnchor{Physical: 42, Logical: 1, NodeId: 1}
	var worldline wcrypto.Digest
	worldline[0] = 7

	e := NewEvent(ts, worldline, KindCommitmentProposed, []byte("payload"))
	require.True(t, e.Verify())
	require.Equal(t, e.Id, e.IntegrityHash)

	tampered := e
	tampered.Payload = []byte("tampered")
	require.False(t, tampered.Verify())
}

func TestWALAppendAndRecover(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.bin")

	w, err := OpenWAL(path, WALOptions{Sync: EveryWrite})
	require.NoError(t, err)

	ts := TemporalAnchor{Physical: 1, Logical: 0, NodeId: 1}
	var worldline wcrypto.Digest
	e1 := NewEvent(ts, worldline, KindWorldlineCreated, []byte("one"))
	ts2 := TemporalAnchor{Physical: 2, Logical: 0, NodeId: 1}
	e2 := NewEvent(ts2, worldline, KindCommitmentProposed, []byte("two"))

	off1, err := w.Append(e1)
	require.NoError(t, err)
	off2, err := w.Append(e2)
	require.NoError(t, err)
	require.Greater(t, off2, off1)
	require.NoError(t, w.Close())

	recovered, err := Recover(path)
	require.NoError(t, err)
	require.Len(t, recovered, 2)
	require.Equal(t, e1.Id, recovered[0].Event.Id)
	require.Equal(t, e2.Id, recovered[1].Event.Id)
}

// TestWALTornTailRecovery is the spec's torn-tail scenario: append 3
// events, truncate the last 4 bytes, reopen, recover exactly 2.
func TestWALTornTailRecovery(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.bin")

	w, err := OpenWAL(path, WALOptions{Sync: EveryWrite})
	require.NoError(t, err)

	var worldline wcrypto.Digest
	for i := 0; i < 3; i++ {
		ts := TemporalAnchor{Physical: int64(i + 1), Logical: 0, NodeId: 1}
		e := NewEvent(ts, worldline, KindRefUpdated, []byte{byte(i)})
		_, err := w.Append(e)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-4))

	recovered, err := Recover(path)
	require.NoError(t, err)
	require.Len(t, recovered, 2)
}

func TestRouterDeliversMatchingEvents(t *testing.T) {
	r := NewRouter()
	var worldline wcrypto.Digest
	ch, id := r.Subscribe(EventFilter{Kinds: map[EventKind]bool{KindOutcomeRecorded: true}}, 4)
	defer r.Unsubscribe(id)

	ts := TemporalAnchor{Physical: 1}
	r.Route(NewEvent(ts, worldline, KindCommitmentProposed, nil))
	r.Route(NewEvent(ts, worldline, KindOutcomeRecorded, []byte("match")))

	select {
	case e := <-ch:
		require.Equal(t, KindOutcomeRecorded, e.Kind)
	default:
		t.Fatal("expected a delivered event")
	}
}

func TestRouterDropsOldestOnOverflow(t *testing.T) {
	r := NewRouter()
	var worldline wcrypto.Digest
	ch, id := r.Subscribe(EventFilter{}, 1)

	ts1 := TemporalAnchor{Physical: 1}
	ts2 := TemporalAnchor{Physical: 2}
	r.Route(NewEvent(ts1, worldline, KindSyncStarted, []byte("first")))
	r.Route(NewEvent(ts2, worldline, KindSyncCompleted, []byte("second")))

	got := <-ch
	require.Equal(t, KindSyncCompleted, got.Kind)
	require.Equal(t, uint64(1), r.Dropped(id))
}

func TestFabricEmitDurableBeforePublish(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.bin")
	wal, err := OpenWAL(path, WALOptions{Sync: EveryWrite})
	require.NoError(t, err)

	f := Open(wal, 1)
	defer f.Close()

	ch, id := f.Subscribe(EventFilter{}, 4)
	defer f.Unsubscribe(id)

	var worldline wcrypto.Digest
	e, err := f.Emit(worldline, KindCommitmentProposed, []byte("hello"))
	require.NoError(t, err)

	recovered, err := Recover(path)
	require.NoError(t, err)
	require.Len(t, recovered, 1)
	require.Equal(t, e.Id, recovered[0].Event.Id)

	got := <-ch
	require.Equal(t, e.Id, got.Id)
}
