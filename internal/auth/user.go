// Package auth identifies the caller of user-scoped and admin endpoints.
package auth

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/constant"
)

var ErrNoUser = errors.New("user context not found")

// UserContext contains the identity of the caller.
type UserContext struct {
	Username string   `json:"username"`
	Groups   []string `json:"groups"`
}

// UserFrom returns the user stored by ExtractUserInfo.
func UserFrom(c *gin.Context) (*UserContext, error) {
	v, exists := c.Get(constant.ContextUserKey)
	if !exists {
		return nil, ErrNoUser
	}
	user, ok := v.(*UserContext)
	if !ok || user == nil {
		return nil, ErrNoUser
	}
	return user, nil
}
