package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/classable/classable/internal/auth"
	apperrors "github.com/classable/classable/pkg/errors"
	"github.com/classable/classable/pkg/response"
)

// Context keys populated by AuthRequired.
const (
	CtxUserIDKey = "auth.user_id"
	CtxEmailKey  = "auth.email"
	CtxRoleKey   = "auth.role"
)

// AuthRequired validates the bearer token and stores the caller identity on
// the request context.
func AuthRequired(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c.GetHeader("Authorization"))
		if token == "" {
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := jwtService.ValidateAccessToken(token)
		if err != nil {
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxUserIDKey, claims.UserID)
		c.Set(CtxEmailKey, claims.Email)
		c.Set(CtxRoleKey, claims.Role)
		c.Next()
	}
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
