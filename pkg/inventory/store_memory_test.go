package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	version, err := store.Put(ctx, "machine-a", testRecord("machine-a", "00:11:22:33:44:55", ""))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), version)

	got, err := store.Get(ctx, "machine-a")
	require.NoError(t, err)
	assert.Equal(t, "machine-a", got.ID)
	assert.Equal(t, uint64(1), got.Version)

	t.Run("GetReturnsCopy", func(t *testing.T) {
		got.Network[0].DHCP.MAC = "ff:ff:ff:ff:ff:ff"

		again, err := store.Get(ctx, "machine-a")
		require.NoError(t, err)
		assert.Equal(t, "00:11:22:33:44:55", again.Network[0].DHCP.MAC)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := store.Get(ctx, "machine-z")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemoryStoreVersionsNeverReused(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	v1, err := store.Put(ctx, "machine-a", testRecord("machine-a", "00:11:22:33:44:55", ""))
	require.NoError(t, err)

	found, err := store.Delete(ctx, "machine-a")
	require.NoError(t, err)
	require.True(t, found)

	// Re-creating the id continues the version sequence.
	v2, err := store.Put(ctx, "machine-a", testRecord("machine-a", "00:11:22:33:44:55", ""))
	require.NoError(t, err)
	assert.Greater(t, v2, v1)
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	found, err := store.Delete(ctx, "machine-a")
	require.NoError(t, err)
	assert.False(t, found)

	_, err = store.Put(ctx, "machine-a", testRecord("machine-a", "00:11:22:33:44:55", ""))
	require.NoError(t, err)

	found, err = store.Delete(ctx, "machine-a")
	require.NoError(t, err)
	assert.True(t, found)

	_, err = store.Get(ctx, "machine-a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreScanSnapshot(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Put(ctx, "machine-a", testRecord("machine-a", "00:00:00:00:00:01", ""))
	require.NoError(t, err)
	_, err = store.Put(ctx, "machine-b", testRecord("machine-b", "00:00:00:00:00:02", ""))
	require.NoError(t, err)

	snap, err := store.Scan(ctx)
	require.NoError(t, err)

	// Mutations after the scan started are invisible to it.
	_, err = store.Put(ctx, "machine-c", testRecord("machine-c", "00:00:00:00:00:03", ""))
	require.NoError(t, err)

	found, err := store.Delete(ctx, "machine-a")
	require.NoError(t, err)
	require.True(t, found)

	seen := make(map[string]struct{})
	for record := range snap.Records() {
		seen[record.ID] = struct{}{}
	}

	require.NoError(t, snap.Err())
	assert.Equal(t, map[string]struct{}{"machine-a": {}, "machine-b": {}}, seen)
}

func TestMemoryStoreScanCancel(t *testing.T) {
	store := NewMemoryStore()

	macs := []string{"00:00:00:00:00:01", "00:00:00:00:00:02", "00:00:00:00:00:03"}
	for i, id := range []string{"m-1", "m-2", "m-3"} {
		_, err := store.Put(context.Background(), id, testRecord(id, macs[i], ""))
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	snap, err := store.Scan(ctx)
	require.NoError(t, err)

	// Abandon the scan without draining; the producer unblocks, closes the
	// channel and reports the cancellation.
	cancel()

	require.Eventually(t, func() bool {
		return snap.Err() != nil
	}, time.Second, 5*time.Millisecond)

	for range snap.Records() {
	}

	assert.ErrorIs(t, snap.Err(), context.Canceled)
}
