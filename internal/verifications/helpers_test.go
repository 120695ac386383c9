package verifications

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/api_keys"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/db"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/logger"
)

var testNow = time.Date(2025, 3, 14, 12, 30, 0, 0, time.UTC)

type testEnv struct {
	keys          *api_keys.SQLStore
	verifications *SQLStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	database, err := db.OpenSQLite(ctx, logger.Nop(), db.SQLiteMemory)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	keys, err := api_keys.NewSQLStore(ctx, logger.Nop(), database)
	require.NoError(t, err)
	verifications, err := NewSQLStore(ctx, logger.Nop(), database)
	require.NoError(t, err)

	return &testEnv{keys: keys, verifications: verifications}
}

// addKey stores a key whose secret is "sk_<id>".
func (e *testEnv) addKey(t *testing.T, id string, mutate func(k *api_keys.APIKey)) string {
	t.Helper()
	secret := "sk_" + id
	key := &api_keys.APIKey{
		ID:        id,
		Owner:     "alice",
		Name:      "key " + id,
		Start:     api_keys.SecretStart(secret),
		Hash:      api_keys.HashSecret(secret),
		Enabled:   true,
		CreatedAt: testNow.Add(-48 * time.Hour),
	}
	if mutate != nil {
		mutate(key)
	}
	require.NoError(t, e.keys.Add(context.Background(), key))
	return secret
}
