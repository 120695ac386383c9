package verifications

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/api_keys"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/auth"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/constant"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/logger"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/status"
)

// maxClockSkew bounds how far in the future a reported occurredAt may be.
const maxClockSkew = time.Minute

type Handler struct {
	logger      *logger.Logger
	keys        KeyStore
	source      Source
	verifier    *Verifier
	granularity time.Duration
	now         func() time.Time
}

func NewHandler(log *logger.Logger, keys KeyStore, source Source, verifier *Verifier, granularity time.Duration) *Handler {
	if log == nil {
		log = logger.Production()
	}
	if granularity == 0 {
		granularity = constant.DefaultBucketSize
	}
	return &Handler{
		logger:      log,
		keys:        keys,
		source:      source,
		verifier:    verifier,
		granularity: granularity,
		now:         time.Now,
	}
}

type RecordRequest struct {
	KeyID      string     `json:"keyId" binding:"required"`
	Outcome    string     `json:"outcome" binding:"required"`
	OccurredAt *time.Time `json:"occurredAt,omitempty"`
}

type RecordResponse struct {
	KeyID      string    `json:"keyId"`
	Outcome    Outcome   `json:"outcome"`
	OccurredAt time.Time `json:"occurredAt"`
}

type VerifyRequest struct {
	Key string `json:"key" binding:"required"`
}

type BucketsResponse struct {
	KeyID       string          `json:"keyId"`
	Since       time.Time       `json:"since"`
	Until       time.Time       `json:"until"`
	Granularity string          `json:"granularity"`
	Totals      status.Counts   `json:"totals"`
	Buckets     []status.Bucket `json:"buckets"`
}

// RecordVerification handles POST /v1/verifications. The gateway reports the
// outcome of a verification it performed itself.
func (h *Handler) RecordVerification(c *gin.Context) {
	var req RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := ParseOutcome(req.Outcome)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := h.now().UTC()
	occurredAt := now
	if req.OccurredAt != nil {
		occurredAt = req.OccurredAt.UTC()
		if occurredAt.After(now.Add(maxClockSkew)) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "occurredAt must not be in the future"})
			return
		}
	}

	if _, err := h.keys.Lookup(c.Request.Context(), req.KeyID); err != nil {
		if errors.Is(err, api_keys.ErrKeyNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
			return
		}
		h.logger.Error("Failed to look up api key", "keyId", req.KeyID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record verification"})
		return
	}

	if err := h.verifier.Record(c.Request.Context(), req.KeyID, outcome, occurredAt); err != nil {
		h.logger.Error("Failed to record verification", "keyId", req.KeyID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record verification"})
		return
	}

	c.JSON(http.StatusCreated, RecordResponse{KeyID: req.KeyID, Outcome: outcome, OccurredAt: occurredAt})
}

// VerifyKey handles POST /v1/keys/verify.
func (h *Handler) VerifyKey(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.verifier.Verify(c.Request.Context(), req.Key)
	if err != nil {
		h.logger.Error("Failed to verify api key", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify api key"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetBuckets handles GET /v1/api-keys/:id/verifications.
func (h *Handler) GetBuckets(c *gin.Context) {
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

	if _, err := h.keys.Get(c.Request.Context(), user.Username, keyID); err != nil {
		if errors.Is(err, api_keys.ErrKeyNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
			return
		}
		h.logger.Error("Failed to get api key", "keyId", keyID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve verifications"})
		return
	}

	until := h.now().UTC()
	since := until.Add(-constant.VerificationWindow)

	buckets, err := h.source.Buckets(c.Request.Context(), keyID, since, until, h.granularity)
	if err != nil {
		h.logger.Error("Failed to load verification buckets", "keyId", keyID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve verifications"})
		return
	}

	c.JSON(http.StatusOK, BucketsResponse{
		KeyID:       keyID,
		Since:       since,
		Until:       until,
		Granularity: h.granularity.String(),
		Totals:      status.Aggregate(buckets),
		Buckets:     buckets,
	})
}
