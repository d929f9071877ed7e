package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/metalgrid/hwinv/pkg/models"
)

func testRecord(id, mac, ip string) *models.HardwareRecord {
	iface := &models.Interface{DHCP: &models.DHCP{MAC: mac}}
	if ip != "" {
		iface.DHCP.IP = &models.IP{Address: ip, Family: 4}
	}

	return &models.HardwareRecord{
		ID:       id,
		Network:  []*models.Interface{iface},
		Metadata: `{"state":"provisioning"}`,
	}
}

// completedSnapshot delivers the given records and closes cleanly.
func completedSnapshot(records ...*models.HardwareRecord) *Snapshot {
	snap := newSnapshot()

	go func() {
		defer close(snap.records)

		for _, record := range records {
			snap.records <- record
		}
	}()

	return snap
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	svc, err := New(context.Background(), NewMemoryStore(), &Config{}, zerolog.Nop())
	require.NoError(t, err)

	t.Cleanup(func() { _ = svc.Close() })

	return svc
}

func TestPushAndLookup(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	pushed, err := svc.Push(ctx, testRecord("machine-a", "00:11:22:33:44:55", "10.0.0.5"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), pushed.Version)

	t.Run("ByID", func(t *testing.T) {
		got, err := svc.ByID(ctx, "machine-a")
		require.NoError(t, err)
		assert.Equal(t, "machine-a", got.ID)
		assert.Equal(t, uint64(1), got.Version)
	})

	t.Run("ByMAC", func(t *testing.T) {
		got, err := svc.ByMAC(ctx, "00:11:22:33:44:55")
		require.NoError(t, err)
		assert.Equal(t, "machine-a", got.ID)
	})

	t.Run("ByIP", func(t *testing.T) {
		got, err := svc.ByIP(ctx, "10.0.0.5")
		require.NoError(t, err)
		assert.Equal(t, "machine-a", got.ID)
	})

	t.Run("UnknownKeys", func(t *testing.T) {
		_, err := svc.ByID(ctx, "machine-z")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = svc.ByMAC(ctx, "ff:ff:ff:ff:ff:ff")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = svc.ByIP(ctx, "10.0.0.99")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestPushConflict(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.Push(ctx, testRecord("machine-a", "00:11:22:33:44:55", "10.0.0.5"))
	require.NoError(t, err)

	t.Run("MACClaimedByOtherID", func(t *testing.T) {
		_, err := svc.Push(ctx, testRecord("machine-b", "00:11:22:33:44:55", "10.0.0.6"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConflict)

		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "00:11:22:33:44:55", conflict.Key)

		// The rejected push left no trace.
		_, err = svc.ByID(ctx, "machine-b")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = svc.ByIP(ctx, "10.0.0.6")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("IPClaimedByOtherID", func(t *testing.T) {
		_, err := svc.Push(ctx, testRecord("machine-c", "aa:bb:cc:dd:ee:ff", "10.0.0.5"))
		require.Error(t, err)

		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "10.0.0.5", conflict.Key)
	})

	t.Run("RePushSameIDAllowed", func(t *testing.T) {
		pushed, err := svc.Push(ctx, testRecord("machine-a", "00:11:22:33:44:55", "10.0.0.5"))
		require.NoError(t, err)
		assert.Greater(t, pushed.Version, uint64(1))
	})
}

func TestPushFullReplace(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	v1, err := svc.Push(ctx, testRecord("machine-a", "00:11:22:33:44:55", "10.0.0.5"))
	require.NoError(t, err)

	v2, err := svc.Push(ctx, testRecord("machine-a", "aa:bb:cc:dd:ee:ff", "10.0.0.6"))
	require.NoError(t, err)
	assert.Greater(t, v2.Version, v1.Version)

	got, err := svc.ByID(ctx, "machine-a")
	require.NoError(t, err)
	assert.Equal(t, v2.Version, got.Version)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", got.Network[0].DHCP.MAC)

	// Keys dropped by the replace are free for other records.
	_, err = svc.ByMAC(ctx, "00:11:22:33:44:55")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Push(ctx, testRecord("machine-b", "00:11:22:33:44:55", "10.0.0.5"))
	require.NoError(t, err)

	got, err = svc.ByMAC(ctx, "00:11:22:33:44:55")
	require.NoError(t, err)
	assert.Equal(t, "machine-b", got.ID)
}

func TestPushInvalid(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	t.Run("NilRecord", func(t *testing.T) {
		_, err := svc.Push(ctx, nil)
		assert.ErrorIs(t, err, ErrInvalidRecord)
	})

	t.Run("MissingID", func(t *testing.T) {
		_, err := svc.Push(ctx, testRecord("  ", "00:11:22:33:44:55", ""))
		assert.ErrorIs(t, err, ErrInvalidRecord)
	})

	t.Run("MalformedMAC", func(t *testing.T) {
		_, err := svc.Push(ctx, testRecord("machine-a", "not-a-mac", ""))
		assert.ErrorIs(t, err, ErrInvalidRecord)

		_, err = svc.ByID(ctx, "machine-a")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("CallerVersionIgnored", func(t *testing.T) {
		record := testRecord("machine-a", "00:11:22:33:44:55", "")
		record.Version = 999

		pushed, err := svc.Push(ctx, record)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), pushed.Version)
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.Push(ctx, testRecord("machine-a", "00:11:22:33:44:55", "10.0.0.5"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "machine-a"))

	t.Run("LookupsMiss", func(t *testing.T) {
		_, err := svc.ByID(ctx, "machine-a")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = svc.ByMAC(ctx, "00:11:22:33:44:55")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = svc.ByIP(ctx, "10.0.0.5")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("KeysReusable", func(t *testing.T) {
		_, err := svc.Push(ctx, testRecord("machine-b", "00:11:22:33:44:55", "10.0.0.5"))
		require.NoError(t, err)

		got, err := svc.ByMAC(ctx, "00:11:22:33:44:55")
		require.NoError(t, err)
		assert.Equal(t, "machine-b", got.ID)
	})

	t.Run("UnknownID", func(t *testing.T) {
		err := svc.Delete(ctx, "machine-z")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestAll(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	ids := []string{"m-1", "m-2", "m-3"}
	macs := []string{"00:00:00:00:00:01", "00:00:00:00:00:02", "00:00:00:00:00:03"}

	for i, id := range ids {
		_, err := svc.Push(ctx, testRecord(id, macs[i], ""))
		require.NoError(t, err)
	}

	snap, err := svc.All(ctx)
	require.NoError(t, err)

	seen := make(map[string]uint64)
	for record := range snap.Records() {
		seen[record.ID] = record.Version
	}

	require.NoError(t, snap.Err())
	assert.Len(t, seen, len(ids))

	for _, id := range ids {
		got, err := svc.ByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, got.Version, seen[id])
	}
}

func TestConcurrentPushSameID(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	const writers = 16

	var wg sync.WaitGroup

	versions := make([]uint64, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			pushed, err := svc.Push(ctx, testRecord("machine-a", "00:11:22:33:44:55", ""))
			if assert.NoError(t, err) {
				versions[i] = pushed.Version
			}
		}(i)
	}

	wg.Wait()

	// Serialized writers: no gaps, no duplicates.
	seen := make(map[uint64]struct{}, writers)

	var maxVersion uint64

	for _, v := range versions {
		_, dup := seen[v]
		require.False(t, dup, "duplicate version %d", v)
		seen[v] = struct{}{}

		if v > maxVersion {
			maxVersion = v
		}
	}

	assert.Equal(t, uint64(writers), maxVersion)

	got, err := svc.ByID(ctx, "machine-a")
	require.NoError(t, err)
	assert.Equal(t, maxVersion, got.Version)
}

func TestConcurrentPushDistinctIDsSameMAC(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	const writers = 8

	var (
		wg        sync.WaitGroup
		okCount   int64
		conflicts int64
		mu        sync.Mutex
	)

	for i := 0; i < writers; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			id := string(rune('a' + i))
			_, err := svc.Push(ctx, testRecord("machine-"+id, "00:11:22:33:44:55", ""))

			mu.Lock()
			defer mu.Unlock()

			if err == nil {
				okCount++
			} else if errors.Is(err, ErrConflict) {
				conflicts++
			}
		}(i)
	}

	wg.Wait()

	// Exactly one writer may own the MAC.
	assert.Equal(t, int64(1), okCount)
	assert.Equal(t, int64(writers-1), conflicts)

	_, err := svc.ByMAC(ctx, "00:11:22:33:44:55")
	assert.NoError(t, err)
}

func TestPushStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := NewMockRecordStore(ctrl)
	mockStore.EXPECT().Scan(gomock.Any()).Return(completedSnapshot(), nil)

	svc, err := New(ctx, mockStore, &Config{}, zerolog.Nop())
	require.NoError(t, err)

	errBackend := errors.New("backend down")
	mockStore.EXPECT().Put(gomock.Any(), "machine-a", gomock.Any()).Return(uint64(0), errBackend)

	_, err = svc.Push(ctx, testRecord("machine-a", "00:11:22:33:44:55", "10.0.0.5"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)

	// The failed push's reservation was rolled back: the MAC is free for a
	// different record.
	mockStore.EXPECT().Put(gomock.Any(), "machine-b", gomock.Any()).Return(uint64(1), nil)

	_, err = svc.Push(ctx, testRecord("machine-b", "00:11:22:33:44:55", "10.0.0.5"))
	require.NoError(t, err)
}

func TestDeleteStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := NewMockRecordStore(ctrl)
	mockStore.EXPECT().Scan(gomock.Any()).Return(completedSnapshot(), nil)

	svc, err := New(ctx, mockStore, &Config{}, zerolog.Nop())
	require.NoError(t, err)

	errBackend := errors.New("backend down")
	mockStore.EXPECT().Get(gomock.Any(), "machine-a").Return(nil, errBackend)

	err = svc.Delete(ctx, "machine-a")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHydrateRebuildsIndices(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Put(ctx, "machine-a", testRecord("machine-a", "00:11:22:33:44:55", "10.0.0.5"))
	require.NoError(t, err)
	_, err = store.Put(ctx, "machine-b", testRecord("machine-b", "aa:bb:cc:dd:ee:ff", "10.0.0.6"))
	require.NoError(t, err)

	svc, err := New(ctx, store, &Config{}, zerolog.Nop())
	require.NoError(t, err)

	got, err := svc.ByMAC(ctx, "aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	assert.Equal(t, "machine-b", got.ID)

	got, err = svc.ByIP(ctx, "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, "machine-a", got.ID)
}

func TestHydrateScanInterrupted(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	errBackend := errors.New("backend down")

	snap := newSnapshot()

	go func() {
		snap.records <- testRecord("machine-a", "00:11:22:33:44:55", "")
		snap.fail(fmt.Errorf("%w: %s", ErrUnavailable, errBackend))
		close(snap.records)
	}()

	mockStore := NewMockRecordStore(ctrl)
	mockStore.EXPECT().Scan(gomock.Any()).Return(snap, nil)

	// A scan cut short mid-stream must fail startup, not leave a service
	// running with half-hydrated indices.
	_, err := New(ctx, mockStore, &Config{}, zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHydrateConflictingRecordUnindexed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	// Both records claim 10.0.0.5; durable data like this predates the
	// uniqueness enforcement.
	macs := map[string]string{
		"machine-a": "00:00:00:00:00:01",
		"machine-b": "00:00:00:00:00:02",
	}

	for id, mac := range macs {
		_, err := store.Put(ctx, id, testRecord(id, mac, "10.0.0.5"))
		require.NoError(t, err)
	}

	svc, err := New(ctx, store, &Config{}, zerolog.Nop())
	require.NoError(t, err)

	// Hydration order decides the winner; the other record is left out of
	// the index entirely, so even its unshared MAC does not resolve.
	winner, err := svc.ByIP(ctx, "10.0.0.5")
	require.NoError(t, err)

	loser := "machine-a"
	if winner.ID == "machine-a" {
		loser = "machine-b"
	}

	got, err := svc.ByMAC(ctx, macs[winner.ID])
	require.NoError(t, err)
	assert.Equal(t, winner.ID, got.ID)

	_, err = svc.ByMAC(ctx, macs[loser])
	assert.ErrorIs(t, err, ErrNotFound)

	// The unindexed record stays reachable by id.
	got, err = svc.ByID(ctx, loser)
	require.NoError(t, err)
	assert.Equal(t, loser, got.ID)
}
