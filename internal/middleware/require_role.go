package middleware

import (
	"github.com/gin-gonic/gin"

	apperrors "github.com/classable/classable/pkg/errors"
	"github.com/classable/classable/pkg/response"
)

// RequireRole rejects requests whose token role is not in the allowed set.
// Must run after AuthRequired. Role checks here gate the route surface;
// object-level ownership is still enforced in the services.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(c *gin.Context) {
		role := c.GetString(CtxRoleKey)
		if _, ok := allowed[role]; !ok {
			response.Error(c, apperrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
