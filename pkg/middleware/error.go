package middleware

import (
	"errors"
	"net/http"

	"miniapp-rewards/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error renders the last error attached to the context. BaseErrors keep
// their status and details; anything else becomes a 500.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		var be errutil.BaseError
		if errors.As(last.Err, &be) {
			if be.Code.HTTPStatus() >= http.StatusInternalServerError {
				zap.L().Error("request failed", zap.String("path", c.FullPath()), zap.Error(last.Err))
			}
			c.JSON(be.Code.HTTPStatus(), be.JSON())
			return
		}

		zap.L().Error("request failed", zap.String("path", c.FullPath()), zap.Error(last.Err))
		internal := errutil.BaseError{Code: errutil.StatusInternal, Message: "internal error"}
		c.JSON(http.StatusInternalServerError, internal.JSON())
	}
}
