// util/http_util.go
package util

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	gk_errors "github.com/atlas-iam/gatekeeper/errors"
	logger "github.com/atlas-iam/gatekeeper/logging"
)

func RespondWithError(c *gin.Context, code int, message string, err error) {
	logger.Error(message,
		zap.Error(err),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method))
	c.JSON(code, gin.H{"error": message})
}

// AbortWithAuthError translates a pipeline failure into the wire contract:
// a JSON body {status, reason, error} plus X-AUTH and X-ERROR headers.
func AbortWithAuthError(c *gin.Context, err error) {
	status := gk_errors.StatusOf(err)
	reason := gk_errors.ReasonOf(err)

	logger.Error("Auth failure",
		zap.Int("status", status),
		zap.String("reason", reason),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method))

	c.Header("X-AUTH", reason)
	c.Header("X-ERROR", err.Error())
	c.AbortWithStatusJSON(status, gin.H{
		"status": status,
		"reason": reason,
		"error":  err.Error(),
	})
}
