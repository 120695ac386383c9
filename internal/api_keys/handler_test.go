package api_keys

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/auth"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/constant"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/logger"
)

func setupHandlerRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := NewHandler(logger.Nop(), newTestService(t))
	router := gin.New()

	keys := router.Group("/v1/api-keys", func(c *gin.Context) {
		c.Set(constant.ContextUserKey, &auth.UserContext{Username: c.GetHeader(constant.HeaderUsername)})
		c.Next()
	})
	keys.POST("", h.CreateAPIKey)
	keys.GET("", h.ListAPIKeys)
	keys.GET("/:id", h.GetAPIKey)
	keys.PATCH("/:id", h.UpdateAPIKey)
	keys.DELETE("/:id", h.DeleteAPIKey)
	keys.POST("/:id/enable", h.EnableAPIKey)
	keys.POST("/:id/disable", h.DisableAPIKey)
	return router
}

func request(t *testing.T, router *gin.Engine, method, path, username string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, path, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(constant.HeaderUsername, username)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandler_Lifecycle(t *testing.T) {
	router := setupHandlerRouter(t)

	w := request(t, router, http.MethodPost, "/v1/api-keys", "alice", CreateRequest{
		Name:    "deploy",
		Credits: &CreditsRequest{Remaining: 10},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	id, ok := created["id"].(string)
	require.True(t, ok)
	assert.NotEmpty(t, created["key"])
	assert.NotContains(t, created, "hash")

	t.Run("list", func(t *testing.T) {
		w := request(t, router, http.MethodGet, "/v1/api-keys", "alice", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var response ListResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		require.Len(t, response.Keys, 1)
		assert.Equal(t, id, response.Keys[0].ID)
	})

	t.Run("get never returns the secret", func(t *testing.T) {
		w := request(t, router, http.MethodGet, "/v1/api-keys/"+id, "alice", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, w.Body.String(), `"key"`)
	})

	t.Run("other users cannot see it", func(t *testing.T) {
		w := request(t, router, http.MethodGet, "/v1/api-keys/"+id, "bob", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("disable and re-enable", func(t *testing.T) {
		w := request(t, router, http.MethodPost, "/v1/api-keys/"+id+"/disable", "alice", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var key APIKey
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &key))
		assert.False(t, key.Enabled)

		w = request(t, router, http.MethodPost, "/v1/api-keys/"+id+"/enable", "alice", nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &key))
		assert.True(t, key.Enabled)
	})

	t.Run("patch", func(t *testing.T) {
		w := request(t, router, http.MethodPatch, "/v1/api-keys/"+id, "alice", UpdateRequest{Unlimited: true})
		require.Equal(t, http.StatusOK, w.Code)
		var key APIKey
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &key))
		assert.Nil(t, key.Credits)

		empty := ""
		w = request(t, router, http.MethodPatch, "/v1/api-keys/"+id, "alice", UpdateRequest{Name: &empty})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("delete", func(t *testing.T) {
		w := request(t, router, http.MethodDelete, "/v1/api-keys/"+id, "alice", nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = request(t, router, http.MethodDelete, "/v1/api-keys/"+id, "alice", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandler_CreateValidation(t *testing.T) {
	router := setupHandlerRouter(t)

	tests := []struct {
		name string
		body any
	}{
		{name: "missing name", body: CreateRequest{}},
		{name: "negative credits", body: CreateRequest{Name: "k", Credits: &CreditsRequest{Remaining: -5}}},
		{name: "malformed json", body: "not an object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := request(t, router, http.MethodPost, "/v1/api-keys", "alice", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var response map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.NotEmpty(t, response["error"])
		})
	}
}
