package keystatus

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/api_keys"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/auth"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/logger"
)

type Handler struct {
	service *Service
	logger  *logger.Logger
}

func NewHandler(log *logger.Logger, service *Service) *Handler {
	if log == nil {
		log = logger.Production()
	}
	return &Handler{service: service, logger: log}
}

type ListResponse struct {
	Statuses []KeyStatus `json:"statuses"`
}

// GetStatus handles GET /v1/api-keys/:id/status.
func (h *Handler) GetStatus(c *gin.Context) {
	keyID := c.Param("id")
	if keyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "API key ID required"})
		return
	}

	user, err := auth.UserFrom(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "User context not found"})
		return
	}

	ks, err := h.service.Status(c.Request.Context(), user.Username, keyID)
	if err != nil {
		if errors.Is(err, api_keys.ErrKeyNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
			return
		}
		h.logger.Error("Failed to evaluate api key status", "keyId", keyID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to evaluate API key status"})
		return
	}

	c.JSON(http.StatusOK, ks)
}

// ListStatuses handles GET /v1/api-keys/statuses.
func (h *Handler) ListStatuses(c *gin.Context) {
	user, err := auth.UserFrom(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "User context not found"})
		return
	}

	statuses, err := h.service.StatusAll(c.Request.Context(), user.Username)
	if err != nil {
		h.logger.Error("Failed to evaluate api key statuses", "user", user.Username, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to evaluate API key statuses"})
		return
	}

	c.JSON(http.StatusOK, ListResponse{Statuses: statuses})
}
