package api_keys

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/db"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/logger"
)

var serviceNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) *Service {
	t.Helper()
	ctx := context.Background()

	database, err := db.OpenSQLite(ctx, logger.Nop(), db.SQLiteMemory)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	store, err := NewSQLStore(ctx, logger.Nop(), database)
	require.NoError(t, err)

	s := NewService(logger.Nop(), store, KeyDefaults{})
	s.now = func() time.Time { return serviceNow }
	return s
}

func TestCreateAPIKey(t *testing.T) {
	s := newTestService(t)
	ctx := t.Context()
	expiry := serviceNow.Add(48 * time.Hour)

	created, err := s.CreateAPIKey(ctx, "alice", CreateParams{
		Name:      "  ci key ",
		ExpiresAt: &expiry,
		Credits:   &Credits{Remaining: 10, RefillAmount: 10},
	})
	require.NoError(t, err)

	assert.Equal(t, "ci key", created.Name)
	assert.Equal(t, "alice", created.Owner)
	assert.True(t, created.Enabled)
	assert.True(t, strings.HasPrefix(created.Key, "sk_"))
	assert.True(t, strings.HasPrefix(created.Key, created.Start))
	assert.Equal(t, HashSecret(created.Key), created.Hash)
	require.NotNil(t, created.Credits.RefilledAt)
	assert.Equal(t, serviceNow, *created.Credits.RefilledAt)

	stored, err := s.GetAPIKey(ctx, "alice", created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Hash, stored.Hash)
}

func TestCreateAPIKey_Validation(t *testing.T) {
	s := newTestService(t)
	past := serviceNow.Add(-time.Minute)

	tests := []struct {
		name   string
		params CreateParams
	}{
		{name: "empty name", params: CreateParams{Name: " "}},
		{name: "expiry in the past", params: CreateParams{Name: "k", ExpiresAt: &past}},
		{name: "negative credits", params: CreateParams{Name: "k", Credits: &Credits{Remaining: -1}}},
		{name: "negative refill", params: CreateParams{Name: "k", Credits: &Credits{RefillAmount: -1}}},
		{name: "prefix with separator", params: CreateParams{Name: "k", Prefix: "a_b"}},
		{name: "too few bytes", params: CreateParams{Name: "k", ByteLength: 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateAPIKey(t.Context(), "alice", tt.params)
			require.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestUpdateAPIKey(t *testing.T) {
	s := newTestService(t)
	ctx := t.Context()
	expiry := serviceNow.Add(time.Hour)

	created, err := s.CreateAPIKey(ctx, "alice", CreateParams{Name: "k", ExpiresAt: &expiry})
	require.NoError(t, err)

	name := "renamed"
	updated, err := s.UpdateAPIKey(ctx, "alice", created.ID, UpdateParams{
		Name:         &name,
		NeverExpires: true,
		Credits:      &Credits{Remaining: 3, RefillAmount: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.Nil(t, updated.ExpiresAt)
	require.NotNil(t, updated.Credits)
	require.NotNil(t, updated.Credits.RefilledAt)

	updated, err = s.UpdateAPIKey(ctx, "alice", created.ID, UpdateParams{Unlimited: true})
	require.NoError(t, err)
	assert.Nil(t, updated.Credits)

	_, err = s.UpdateAPIKey(ctx, "bob", created.ID, UpdateParams{Name: &name})
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestSetEnabled(t *testing.T) {
	s := newTestService(t)
	ctx := t.Context()

	created, err := s.CreateAPIKey(ctx, "alice", CreateParams{Name: "k", Disabled: true})
	require.NoError(t, err)
	assert.False(t, created.Enabled)

	key, err := s.SetEnabled(ctx, "alice", created.ID, true)
	require.NoError(t, err)
	assert.True(t, key.Enabled)

	stored, err := s.GetAPIKey(ctx, "alice", created.ID)
	require.NoError(t, err)
	assert.True(t, stored.Enabled)
}

func TestServiceRefillCredits(t *testing.T) {
	s := newTestService(t)
	ctx := t.Context()

	created, err := s.CreateAPIKey(ctx, "alice", CreateParams{Name: "k", Credits: &Credits{Remaining: 0, RefillAmount: 7}})
	require.NoError(t, err)

	refilled, err := s.RefillCredits(ctx)
	require.NoError(t, err)
	assert.Zero(t, refilled, "refilled at creation")

	s.now = func() time.Time { return serviceNow.Add(25 * time.Hour) }
	refilled, err = s.RefillCredits(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), refilled)

	key, err := s.GetAPIKey(ctx, "alice", created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), key.Credits.Remaining)
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret("sk", 16)
	require.NoError(t, err)
	b, err := GenerateSecret("sk", 16)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "sk_"))
	assert.Len(t, strings.TrimPrefix(a, "sk_"), 22)
	assert.Equal(t, a[:7], SecretStart(a))
	assert.Len(t, HashSecret(a), 64)
}

func TestDeleteAPIKey(t *testing.T) {
	s := newTestService(t)
	ctx := t.Context()

	created, err := s.CreateAPIKey(ctx, "alice", CreateParams{Name: "k"})
	require.NoError(t, err)

	require.ErrorIs(t, s.DeleteAPIKey(ctx, "bob", created.ID), ErrKeyNotFound)
	require.NoError(t, s.DeleteAPIKey(ctx, "alice", created.ID))

	keys, err := s.ListAPIKeys(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
