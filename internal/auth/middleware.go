package auth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/constant"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/logger"
)

const exceptionCodeAuth = "AUTH_FAILURE"

// Claims are the bearer token claims understood by ExtractUserInfo.
type Claims struct {
	Groups []string `json:"groups,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator resolves the caller from gateway headers or a signed bearer token.
type Authenticator struct {
	logger     *logger.Logger
	signingKey []byte
}

// NewAuthenticator creates an authenticator. With an empty signingKey only the
// gateway headers are accepted.
func NewAuthenticator(log *logger.Logger, signingKey string) *Authenticator {
	if log == nil {
		log = logger.Production()
	}
	return &Authenticator{logger: log, signingKey: []byte(signingKey)}
}

// ExtractUserInfo stores the caller in the gin context or aborts with 401.
//
// Bearer tokens are checked first when a signing key is configured; otherwise
// the identity comes from the X-MaaS-Username and X-MaaS-Group headers set by
// the gateway after it authenticated the request.
func (a *Authenticator) ExtractUserInfo() gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			user  *UserContext
			refID string
			err   error
		)

		if authHeader := c.GetHeader("Authorization"); len(a.signingKey) > 0 && strings.HasPrefix(authHeader, "Bearer ") {
			user, err = a.parseBearer(strings.TrimPrefix(authHeader, "Bearer "))
			refID = "004"
		} else {
			user, refID, err = userFromHeaders(c)
		}

		if err != nil {
			a.logger.Debug("Rejected request without a valid identity", "path", c.FullPath(), "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":         "Authentication failed",
				"exceptionCode": exceptionCodeAuth,
				"refId":         refID,
			})
			return
		}

		c.Set(constant.ContextUserKey, user)
		c.Next()
	}
}

func userFromHeaders(c *gin.Context) (*UserContext, string, error) {
	username := strings.TrimSpace(c.GetHeader(constant.HeaderUsername))
	if username == "" {
		return nil, "001", fmt.Errorf("missing %s header", constant.HeaderUsername)
	}

	groupHeader := strings.TrimSpace(c.GetHeader(constant.HeaderGroup))
	if groupHeader == "" {
		return nil, "002", fmt.Errorf("missing %s header", constant.HeaderGroup)
	}

	var groups []string
	if err := json.Unmarshal([]byte(groupHeader), &groups); err != nil {
		return nil, "003", fmt.Errorf("invalid %s header, expected a JSON array: %w", constant.HeaderGroup, err)
	}

	return &UserContext{Username: username, Groups: groups}, "", nil
}

func (a *Authenticator) parseBearer(raw string) (*UserContext, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("invalid bearer token: %w", err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("bearer token has no subject")
	}
	return &UserContext{Username: claims.Subject, Groups: claims.Groups}, nil
}

// AdminAuthMiddleware guards endpoints called by the gateway rather than by users.
// An empty adminKey leaves the endpoints open.
func AdminAuthMiddleware(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		// Support both "Bearer" and "ADMIN" prefixes
		var providedKey string
		switch {
		case strings.HasPrefix(authHeader, "Bearer "):
			providedKey = strings.TrimPrefix(authHeader, "Bearer ")
		case strings.HasPrefix(authHeader, "ADMIN "):
			providedKey = strings.TrimPrefix(authHeader, "ADMIN ")
		default:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format. Use: Authorization: ADMIN <key>"})
			return
		}

		if subtle.ConstantTimeCompare([]byte(providedKey), []byte(adminKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid admin key"})
			return
		}

		c.Next()
	}
}
