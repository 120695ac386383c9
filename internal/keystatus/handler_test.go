package keystatus

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/api_keys"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/auth"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/constant"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/logger"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/status"
)

func setupRouter(t *testing.T, keys *mockKeys, source *mockSource) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s, _ := newTestService(t, keys, source)
	h := NewHandler(logger.Nop(), s)

	router := gin.New()
	group := router.Group("/v1/api-keys", func(c *gin.Context) {
		c.Set(constant.ContextUserKey, &auth.UserContext{Username: "alice"})
		c.Next()
	})
	group.GET("/statuses", h.ListStatuses)
	group.GET("/:id/status", h.GetStatus)
	return router
}

func get(t *testing.T, router *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, path, nil)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGetStatus(t *testing.T) {
	since, until := window()

	keys := &mockKeys{}
	keys.On("Get", mock.Anything, "alice", "k1").Return(&api_keys.APIKey{ID: "k1", Enabled: false}, nil)
	keys.On("Get", mock.Anything, "alice", "gone").Return(nil, api_keys.ErrKeyNotFound)
	keys.On("Get", mock.Anything, "alice", "broken").Return(nil, errors.New("connection reset"))

	source := &mockSource{}
	source.On("Buckets", mock.Anything, mock.Anything, since, until, time.Hour).Return([]status.Bucket{}, nil)

	router := setupRouter(t, keys, source)

	t.Run("disabled key", func(t *testing.T) {
		w := get(t, router, "/v1/api-keys/k1/status")
		require.Equal(t, http.StatusOK, w.Code)

		var response map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "k1", response["keyId"])
		assert.Equal(t, false, response["fallback"])
		assert.Equal(t, float64(0), response["otherCount"])

		primary, ok := response["primary"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "Disabled", primary["label"])

		all, ok := response["allApplicable"].([]any)
		require.True(t, ok)
		require.Len(t, all, 1)
		assert.Equal(t, "disabled", all[0].(map[string]any)["kind"])
	})

	t.Run("unknown key", func(t *testing.T) {
		w := get(t, router, "/v1/api-keys/gone/status")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		w := get(t, router, "/v1/api-keys/broken/status")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestListStatuses(t *testing.T) {
	since, until := window()

	keys := &mockKeys{}
	keys.On("List", mock.Anything, "alice").Return([]api_keys.APIKey{{ID: "a", Enabled: true}}, nil)
	source := &mockSource{}
	source.On("Buckets", mock.Anything, "a", since, until, time.Hour).Return([]status.Bucket{{Start: since, Total: 1}}, nil)

	router := setupRouter(t, keys, source)
	w := get(t, router, "/v1/api-keys/statuses")
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Statuses []struct {
			KeyID   string       `json:"keyId"`
			Primary status.Badge `json:"primary"`
		} `json:"statuses"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response.Statuses, 1)
	assert.Equal(t, "a", response.Statuses[0].KeyID)
	assert.Equal(t, "Operational", response.Statuses[0].Primary.Label)
}
