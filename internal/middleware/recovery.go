package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/classable/classable/pkg/errors"
	"github.com/classable/classable/pkg/response"
)

// Recovery converts panics into 500 responses with a structured log entry.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path),
					zap.Stack("stack"),
				)
				if !c.Writer.Written() {
					response.Error(c, apperrors.ErrInternalServer)
				} else {
					c.Status(http.StatusInternalServerError)
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}
