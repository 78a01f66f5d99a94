package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreBatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, "donations", "D7", Document{"status": "PENDING"}))

	err := store.Batch(ctx, func(b Batch) error {
		b.Set("deleted_donations", "D7", Document{"status": "PENDING", "deletedBy": "Admin"})
		b.Delete("donations", "D7")
		b.Update("users", "missing", Document{"isSuspended": true})
		return nil
	})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get(ctx, "donations", "D7")
	require.NoError(t, err, "active record must be untouched after a failed batch")
	_, err = store.Get(ctx, "deleted_donations", "D7")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreBatchCallbackErrorAppliesNothing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	boom := errors.New("boom")
	err := store.Batch(ctx, func(b Batch) error {
		b.Set("notices", "N1", Document{"title": "Drive"})
		return boom
	})
	require.ErrorIs(t, err, boom)
	records, err := store.Query(ctx, "notices")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMemoryStoreUpdateMergesFields(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, "users", "U9", Document{"idCardAccessRequested": true, "hasIDCardAccess": false, "name": "Rafi"}))

	require.NoError(t, store.Update(ctx, "users", "U9", Document{"idCardAccessRequested": false, "hasIDCardAccess": true}))

	doc, err := store.Get(ctx, "users", "U9")
	require.NoError(t, err)
	assert.Equal(t, Document{"idCardAccessRequested": false, "hasIDCardAccess": true, "name": "Rafi"}, doc)

	err = store.Update(ctx, "users", "nobody", Document{"name": "x"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	original := Document{"permissions": map[string]any{"sidebar": map[string]any{"donors": true}}}
	require.NoError(t, store.Set(ctx, "users", "U1", original))

	original["permissions"].(map[string]any)["sidebar"].(map[string]any)["donors"] = false
	doc, err := store.Get(ctx, "users", "U1")
	require.NoError(t, err)
	sidebar := doc["permissions"].(map[string]any)["sidebar"].(map[string]any)
	assert.Equal(t, true, sidebar["donors"])
}

func TestMemoryStoreQueryFilters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, "donations", "D1", Document{"status": "PENDING", "units": float64(1)}))
	require.NoError(t, store.Set(ctx, "donations", "D2", Document{"status": "APPROVED", "units": float64(2)}))
	require.NoError(t, store.Set(ctx, "donations", "D3", Document{"status": "PENDING", "units": float64(2)}))

	pending, err := store.Query(ctx, "donations", Filter{Field: "status", Value: "PENDING"})
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "D1", pending[0].ID)
	assert.Equal(t, "D3", pending[1].ID)

	twoUnits, err := store.Query(ctx, "donations", Filter{Field: "status", Value: "PENDING"}, Filter{Field: "units", Value: 2})
	require.NoError(t, err)
	require.Len(t, twoUnits, 1)
	assert.Equal(t, "D3", twoUnits[0].ID)
}

func TestMemoryStoreSubscribeDeliversSnapshotAndChanges(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, "notices", "N1", Document{"title": "Camp"}))

	sub, err := store.Subscribe(ctx, "notices")
	require.NoError(t, err)
	require.Len(t, sub.Snapshot, 1)
	assert.Equal(t, 1, store.SubscriberCount("notices"))

	require.NoError(t, store.Delete(ctx, "notices", "N1"))
	select {
	case change := <-sub.Changes():
		assert.Equal(t, Change{Collection: "notices", ID: "N1", Op: OpDelete}, change)
	case <-time.After(time.Second):
		t.Fatal("expected change notification")
	}

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Equal(t, 0, store.SubscriberCount("notices"))
	_, open := <-sub.Changes()
	assert.False(t, open)
}

func TestMemoryStoreSubscriptionReleasedWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := NewMemoryStore()
	sub, err := store.Subscribe(ctx, "users")
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool { return store.SubscriberCount("users") == 0 }, time.Second, 10*time.Millisecond)
	_, open := <-sub.Changes()
	assert.False(t, open)
}

func TestMemoryStoreCreateKeepsExistingDocument(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	created, err := store.Create(ctx, "settings", "permissions", Document{"USER": "first"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.Create(ctx, "settings", "permissions", Document{"USER": "second"})
	require.NoError(t, err)
	assert.False(t, created)

	doc, err := store.Get(ctx, "settings", "permissions")
	require.NoError(t, err)
	assert.Equal(t, "first", doc["USER"])
}
