package api_keys_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/api_keys"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/db"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/logger"
)

func createTestStore(t *testing.T) *api_keys.SQLStore {
	t.Helper()
	ctx := context.Background()
	testLogger := logger.Nop()

	database, err := db.OpenSQLite(ctx, testLogger, db.SQLiteMemory)
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() { _ = database.Close() })

	store, err := api_keys.NewSQLStore(ctx, testLogger, database)
	require.NoError(t, err, "failed to create test store")
	return store
}

func newKey(id, owner, name string) *api_keys.APIKey {
	secret := "sk_" + id
	return &api_keys.APIKey{
		ID:      id,
		Owner:   owner,
		Name:    name,
		Start:   api_keys.SecretStart(secret),
		Hash:    api_keys.HashSecret(secret),
		Enabled: true,
	}
}

func TestStore(t *testing.T) {
	ctx := t.Context()
	store := createTestStore(t)
	expiry := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("AddKey", func(t *testing.T) {
		key := newKey("id1", "user1", "key1")
		key.ExpiresAt = &expiry
		require.NoError(t, store.Add(ctx, key))

		keys, err := store.List(ctx, "user1")
		require.NoError(t, err)
		require.Len(t, keys, 1)
		assert.Equal(t, "key1", keys[0].Name)
		assert.True(t, keys[0].Enabled)
		require.NotNil(t, keys[0].ExpiresAt)
		assert.True(t, expiry.Equal(*keys[0].ExpiresAt))
		assert.Nil(t, keys[0].Credits)
		assert.False(t, keys[0].CreatedAt.IsZero())
	})

	t.Run("AddLimitedKey", func(t *testing.T) {
		key := newKey("id2", "user1", "key2")
		key.Credits = &api_keys.Credits{Remaining: 5, RefillAmount: 50}
		require.NoError(t, store.Add(ctx, key))

		got, err := store.Get(ctx, "user1", "id2")
		require.NoError(t, err)
		require.NotNil(t, got.Credits)
		assert.Equal(t, int64(5), got.Credits.Remaining)
		assert.Equal(t, int64(50), got.Credits.RefillAmount)
		assert.Nil(t, got.ExpiresAt)
	})

	t.Run("RejectInvalidKeys", func(t *testing.T) {
		require.ErrorIs(t, store.Add(ctx, newKey("", "user1", "name")), api_keys.ErrEmptyID)
		require.ErrorIs(t, store.Add(ctx, newKey("id3", "user1", " ")), api_keys.ErrEmptyName)
		require.ErrorIs(t, store.Add(ctx, newKey("id3", "", "name")), api_keys.ErrEmptyOwner)
	})

	t.Run("GetIsScopedToOwner", func(t *testing.T) {
		_, err := store.Get(ctx, "user2", "id1")
		require.ErrorIs(t, err, api_keys.ErrKeyNotFound)

		key, err := store.Lookup(ctx, "id1")
		require.NoError(t, err)
		assert.Equal(t, "user1", key.Owner)
	})

	t.Run("FindByHash", func(t *testing.T) {
		key, err := store.FindByHash(ctx, api_keys.HashSecret("sk_id2"))
		require.NoError(t, err)
		assert.Equal(t, "id2", key.ID)

		_, err = store.FindByHash(ctx, api_keys.HashSecret("sk_unknown"))
		require.ErrorIs(t, err, api_keys.ErrKeyNotFound)
	})

	t.Run("Update", func(t *testing.T) {
		key, err := store.Get(ctx, "user1", "id1")
		require.NoError(t, err)

		key.Name = "renamed"
		key.Enabled = false
		key.ExpiresAt = nil
		key.Credits = &api_keys.Credits{Remaining: 1}
		require.NoError(t, store.Update(ctx, key))

		got, err := store.Get(ctx, "user1", "id1")
		require.NoError(t, err)
		assert.Equal(t, "renamed", got.Name)
		assert.False(t, got.Enabled)
		assert.Nil(t, got.ExpiresAt)
		require.NotNil(t, got.Credits)
		assert.Equal(t, int64(1), got.Credits.Remaining)
	})

	t.Run("UpdateUnknownKey", func(t *testing.T) {
		require.ErrorIs(t, store.Update(ctx, newKey("nope", "user1", "x")), api_keys.ErrKeyNotFound)
	})

	t.Run("ListIsScopedToOwner", func(t *testing.T) {
		keys, err := store.List(ctx, "user2")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Add(ctx, newKey("id9", "user1", "doomed")))
		require.ErrorIs(t, store.Delete(ctx, "user2", "id9"), api_keys.ErrKeyNotFound)
		require.NoError(t, store.Delete(ctx, "user1", "id9"))
		_, err := store.Lookup(ctx, "id9")
		require.ErrorIs(t, err, api_keys.ErrKeyNotFound)
	})
}

func TestStore_ConsumeCredit(t *testing.T) {
	ctx := t.Context()
	store := createTestStore(t)

	limited := newKey("limited", "user1", "limited")
	limited.Credits = &api_keys.Credits{Remaining: 1}
	require.NoError(t, store.Add(ctx, limited))
	require.NoError(t, store.Add(ctx, newKey("unlimited", "user1", "unlimited")))

	require.NoError(t, store.ConsumeCredit(ctx, "limited"))
	require.ErrorIs(t, store.ConsumeCredit(ctx, "limited"), api_keys.ErrNoCredits)

	require.NoError(t, store.ConsumeCredit(ctx, "unlimited"))
	require.ErrorIs(t, store.ConsumeCredit(ctx, "missing"), api_keys.ErrKeyNotFound)

	key, err := store.Lookup(ctx, "limited")
	require.NoError(t, err)
	assert.Equal(t, int64(0), key.Credits.Remaining)
}

func TestStore_RefillCredits(t *testing.T) {
	ctx := t.Context()
	store := createTestStore(t)
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	old := now.Add(-25 * time.Hour)
	recent := now.Add(-time.Hour)

	due := newKey("due", "user1", "due")
	due.Credits = &api_keys.Credits{Remaining: 0, RefillAmount: 100, RefilledAt: &old}
	fresh := newKey("fresh", "user1", "fresh")
	fresh.Credits = &api_keys.Credits{Remaining: 3, RefillAmount: 100, RefilledAt: &recent}
	noRefill := newKey("norefill", "user1", "norefill")
	noRefill.Credits = &api_keys.Credits{Remaining: 2}

	for _, k := range []*api_keys.APIKey{due, fresh, noRefill} {
		require.NoError(t, store.Add(ctx, k))
	}

	refilled, err := store.RefillCredits(ctx, now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), refilled)

	got, err := store.Lookup(ctx, "due")
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Credits.Remaining)
	require.NotNil(t, got.Credits.RefilledAt)
	assert.True(t, now.Equal(*got.Credits.RefilledAt))

	got, err = store.Lookup(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Credits.Remaining)

	got, err = store.Lookup(ctx, "norefill")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Credits.Remaining)
}
