package api_keys

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

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

type CreditsRequest struct {
	Remaining    int64 `json:"remaining"`
	RefillAmount int64 `json:"refillAmount,omitempty"`
}

func (r *CreditsRequest) credits() *Credits {
	if r == nil {
		return nil
	}
	return &Credits{Remaining: r.Remaining, RefillAmount: r.RefillAmount}
}

type CreateRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Prefix      string          `json:"prefix,omitempty"`
	ByteLength  int             `json:"byteLength,omitempty"`
	ExpiresAt   *time.Time      `json:"expiresAt,omitempty"`
	// ExpiresIn is relative to the request and wins over ExpiresAt.
	ExpiresIn *Duration       `json:"expiresIn,omitempty"`
	Credits   *CreditsRequest `json:"credits,omitempty"`
	Enabled   *bool           `json:"enabled,omitempty"`
}

type UpdateRequest struct {
	Name        *string    `json:"name,omitempty"`
	Description *string    `json:"description,omitempty"`
	Enabled     *bool      `json:"enabled,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	ExpiresIn   *Duration  `json:"expiresIn,omitempty"`
	// NeverExpires clears the expiration.
	NeverExpires bool            `json:"neverExpires,omitempty"`
	Credits      *CreditsRequest `json:"credits,omitempty"`
	// Unlimited removes the credit allowance.
	Unlimited bool `json:"unlimited,omitempty"`
}

type ListResponse struct {
	Keys []APIKey `json:"keys"`
}

// CreateAPIKey handles POST /v1/api-keys. The secret is only part of this response.
func (h *Handler) CreateAPIKey(c *gin.Context) {
	user, err := auth.UserFrom(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "User context not found"})
		return
	}

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.service.CreateAPIKey(c.Request.Context(), user.Username, CreateParams{
		Name:        req.Name,
		Description: req.Description,
		Prefix:      req.Prefix,
		ByteLength:  req.ByteLength,
		ExpiresAt:   expiresAt(req.ExpiresAt, req.ExpiresIn),
		Credits:     req.Credits.credits(),
		Disabled:    req.Enabled != nil && !*req.Enabled,
	})
	if err != nil {
		h.writeError(c, err, "Failed to create api key")
		return
	}

	c.JSON(http.StatusCreated, created)
}

// ListAPIKeys handles GET /v1/api-keys.
func (h *Handler) ListAPIKeys(c *gin.Context) {
	user, err := auth.UserFrom(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "User context not found"})
		return
	}

	keys, err := h.service.ListAPIKeys(c.Request.Context(), user.Username)
	if err != nil {
		h.writeError(c, err, "Failed to list api keys")
		return
	}

	c.JSON(http.StatusOK, ListResponse{Keys: keys})
}

// GetAPIKey handles GET /v1/api-keys/:id.
func (h *Handler) GetAPIKey(c *gin.Context) {
	user, keyID, ok := h.target(c)
	if !ok {
		return
	}

	key, err := h.service.GetAPIKey(c.Request.Context(), user, keyID)
	if err != nil {
		h.writeError(c, err, "Failed to retrieve API key")
		return
	}

	c.JSON(http.StatusOK, key)
}

// UpdateAPIKey handles PATCH /v1/api-keys/:id.
func (h *Handler) UpdateAPIKey(c *gin.Context) {
	user, keyID, ok := h.target(c)
	if !ok {
		return
	}

	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key, err := h.service.UpdateAPIKey(c.Request.Context(), user, keyID, UpdateParams{
		Name:         req.Name,
		Description:  req.Description,
		Enabled:      req.Enabled,
		ExpiresAt:    expiresAt(req.ExpiresAt, req.ExpiresIn),
		NeverExpires: req.NeverExpires,
		Credits:      req.Credits.credits(),
		Unlimited:    req.Unlimited,
	})
	if err != nil {
		h.writeError(c, err, "Failed to update API key")
		return
	}

	c.JSON(http.StatusOK, key)
}

// EnableAPIKey handles POST /v1/api-keys/:id/enable.
func (h *Handler) EnableAPIKey(c *gin.Context) {
	h.setEnabled(c, true)
}

// DisableAPIKey handles POST /v1/api-keys/:id/disable.
func (h *Handler) DisableAPIKey(c *gin.Context) {
	h.setEnabled(c, false)
}

func (h *Handler) setEnabled(c *gin.Context, enabled bool) {
	user, keyID, ok := h.target(c)
	if !ok {
		return
	}

	key, err := h.service.SetEnabled(c.Request.Context(), user, keyID, enabled)
	if err != nil {
		h.writeError(c, err, "Failed to update API key")
		return
	}

	c.JSON(http.StatusOK, key)
}

// DeleteAPIKey handles DELETE /v1/api-keys/:id.
func (h *Handler) DeleteAPIKey(c *gin.Context) {
	user, keyID, ok := h.target(c)
	if !ok {
		return
	}

	if err := h.service.DeleteAPIKey(c.Request.Context(), user, keyID); err != nil {
		h.writeError(c, err, "Failed to delete API key")
		return
	}

	c.Status(http.StatusNoContent)
}

// target returns the caller and the :id path parameter, writing the error response when absent.
func (h *Handler) target(c *gin.Context) (string, string, bool) {
	keyID := c.Param("id")
	if keyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "API key ID required"})
		return "", "", false
	}

	user, err := auth.UserFrom(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "User context not found"})
		return "", "", false
	}
	return user.Username, keyID, true
}

func expiresAt(at *time.Time, in *Duration) *time.Time {
	if in == nil {
		return at
	}
	t := time.Now().UTC().Add(in.Duration)
	return &t
}

func (h *Handler) writeError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrKeyNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
	default:
		h.logger.Error(message, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	}
}
