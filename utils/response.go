package utils

import (
	"github.com/gin-gonic/gin"
)

// JSONResponse sends the standard success envelope.
func JSONResponse(c *gin.Context, status int, data any, message string) {
	c.JSON(status, gin.H{
		"status":  status,
		"message": message,
		"data":    data,
	})
}

// JSONError sends the standard error envelope for infrastructure and input failures.
func JSONError(c *gin.Context, status int, err error, message string) {
	c.JSON(status, gin.H{
		"status":  status,
		"message": message,
		"error":   err.Error(),
	})
}

// JSONRejection sends a typed bid rejection. The reason is machine-readable so
// clients can render it or re-quote from the returned data.
func JSONRejection(c *gin.Context, status int, reason string, data any) {
	c.JSON(status, gin.H{
		"status":  status,
		"message": "bid rejected",
		"reason":  reason,
		"data":    data,
	})
}
