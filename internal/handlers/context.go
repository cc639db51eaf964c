package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/classable/classable/internal/middleware"
	"github.com/classable/classable/internal/services"
)

// currentIdentity reads the caller identity stored by the auth middleware.
func currentIdentity(c *gin.Context) services.Identity {
	return services.Identity{
		ID:    c.GetString(middleware.CtxUserIDKey),
		Email: c.GetString(middleware.CtxEmailKey),
	}
}
