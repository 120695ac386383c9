package keystatus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/api_keys"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/constant"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/logger"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/metrics"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/status"
)

var testNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

type mockKeys struct {
	mock.Mock
}

func (m *mockKeys) Get(ctx context.Context, owner, id string) (*api_keys.APIKey, error) {
	args := m.Called(ctx, owner, id)
	key, _ := args.Get(0).(*api_keys.APIKey)
	return key, args.Error(1)
}

func (m *mockKeys) List(ctx context.Context, owner string) ([]api_keys.APIKey, error) {
	args := m.Called(ctx, owner)
	keys, _ := args.Get(0).([]api_keys.APIKey)
	return keys, args.Error(1)
}

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Buckets(ctx context.Context, keyID string, since, until time.Time, granularity time.Duration) ([]status.Bucket, error) {
	args := m.Called(ctx, keyID, since, until, granularity)
	buckets, _ := args.Get(0).([]status.Bucket)
	return buckets, args.Error(1)
}

func newTestService(t *testing.T, keys KeyReader, source *mockSource) (*Service, *metrics.Metrics) {
	t.Helper()
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	s := NewService(logger.Nop(), keys, source, time.Hour, m)
	s.now = func() time.Time { return testNow }
	return s, m
}

func window() (time.Time, time.Time) {
	return testNow.Add(-constant.VerificationWindow), testNow
}

func TestStatus(t *testing.T) {
	since, until := window()
	soon := testNow.Add(6 * time.Hour)

	tests := []struct {
		name         string
		key          *api_keys.APIKey
		buckets      []status.Bucket
		bucketsErr   error
		wantPrimary  status.Kind
		wantKinds    []status.Kind
		wantFallback bool
	}{
		{
			name:        "healthy key",
			key:         &api_keys.APIKey{ID: "k1", Enabled: true},
			buckets:     []status.Bucket{{Start: since, Total: 100, Error: 1}},
			wantPrimary: status.KindOperational,
			wantKinds:   []status.Kind{status.KindOperational},
		},
		{
			name: "rate limited and expiring",
			key:  &api_keys.APIKey{ID: "k1", Enabled: true, ExpiresAt: &soon},
			buckets: []status.Bucket{
				{Start: since, Total: 50, RateLimited: 5},
				{Start: since.Add(time.Hour), Total: 50, RateLimited: 10},
			},
			wantPrimary: status.KindRateLimited,
			wantKinds:   []status.Kind{status.KindRateLimited, status.KindExpiresSoon},
		},
		{
			name:         "buckets unavailable for enabled key",
			key:          &api_keys.APIKey{ID: "k1", Enabled: true, Credits: &api_keys.Credits{Remaining: 0}},
			bucketsErr:   errors.New("timeout"),
			wantPrimary:  status.KindOperational,
			wantKinds:    []status.Kind{status.KindOperational},
			wantFallback: true,
		},
		{
			name:         "buckets unavailable for disabled key",
			key:          &api_keys.APIKey{ID: "k1", Enabled: false},
			bucketsErr:   errors.New("timeout"),
			wantPrimary:  status.KindDisabled,
			wantKinds:    []status.Kind{status.KindDisabled},
			wantFallback: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys := &mockKeys{}
			keys.On("Get", mock.Anything, "alice", "k1").Return(tt.key, nil)
			source := &mockSource{}
			source.On("Buckets", mock.Anything, "k1", since, until, time.Hour).Return(tt.buckets, tt.bucketsErr)

			s, _ := newTestService(t, keys, source)
			ks, err := s.Status(t.Context(), "alice", "k1")
			require.NoError(t, err)

			def, ok := status.Lookup(tt.wantPrimary)
			require.True(t, ok)
			assert.Equal(t, def.Badge(), ks.Primary)
			assert.Equal(t, tt.wantFallback, ks.Fallback)
			assert.Equal(t, "k1", ks.KeyID)
			assert.Equal(t, testNow, ks.EvaluatedAt)
			assert.Equal(t, len(tt.wantKinds)-1, ks.OtherCount)

			kinds := make([]status.Kind, len(ks.AllApplicable))
			for i, d := range ks.AllApplicable {
				kinds[i] = d.Kind
			}
			assert.Equal(t, tt.wantKinds, kinds)

			keys.AssertExpectations(t)
			source.AssertExpectations(t)
		})
	}
}

func TestStatus_KeyNotFound(t *testing.T) {
	since, until := window()
	keys := &mockKeys{}
	keys.On("Get", mock.Anything, "alice", "missing").Return(nil, api_keys.ErrKeyNotFound)
	source := &mockSource{}
	source.On("Buckets", mock.Anything, "missing", since, until, time.Hour).Return([]status.Bucket{}, nil).Maybe()

	s, _ := newTestService(t, keys, source)
	_, err := s.Status(t.Context(), "alice", "missing")
	require.ErrorIs(t, err, api_keys.ErrKeyNotFound)
}

func TestStatusAll(t *testing.T) {
	since, until := window()

	keys := &mockKeys{}
	keys.On("List", mock.Anything, "alice").Return([]api_keys.APIKey{
		{ID: "a", Enabled: true},
		{ID: "b", Enabled: false},
		{ID: "c", Enabled: true, Credits: &api_keys.Credits{Remaining: 1, RefillAmount: 100}},
	}, nil)

	source := &mockSource{}
	source.On("Buckets", mock.Anything, "a", since, until, time.Hour).Return([]status.Bucket{{Start: since, Total: 10, Error: 5}}, nil)
	source.On("Buckets", mock.Anything, "b", since, until, time.Hour).Return([]status.Bucket{}, nil)
	source.On("Buckets", mock.Anything, "c", since, until, time.Hour).Return(nil, errors.New("redis down"))

	s, _ := newTestService(t, keys, source)
	statuses, err := s.StatusAll(t.Context(), "alice")
	require.NoError(t, err)
	require.Len(t, statuses, 3)

	assert.Equal(t, "a", statuses[0].KeyID)
	assert.Equal(t, status.KindValidationIssues, statuses[0].AllApplicable[0].Kind)

	assert.Equal(t, "b", statuses[1].KeyID)
	assert.Equal(t, status.KindDisabled, statuses[1].AllApplicable[0].Kind)

	assert.Equal(t, "c", statuses[2].KeyID)
	assert.True(t, statuses[2].Fallback)
	assert.Equal(t, status.KindOperational, statuses[2].AllApplicable[0].Kind)
}

func TestStatusAll_ListError(t *testing.T) {
	keys := &mockKeys{}
	keys.On("List", mock.Anything, "alice").Return(nil, errors.New("db closed"))

	s, _ := newTestService(t, keys, &mockSource{})
	_, err := s.StatusAll(t.Context(), "alice")
	require.Error(t, err)
}
