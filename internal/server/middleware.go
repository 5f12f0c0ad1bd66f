package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const unauthorizedMessage = "Unauthorized: Invalid or missing CRON_SECRET token"

// CronAuth requires "Authorization: Bearer <secret>". An empty secret
// disables the check.
func CronAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, unauthorizedMessage)
			return
		}
		c.Next()
	}
}
