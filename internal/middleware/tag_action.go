package middleware

import "github.com/gin-gonic/gin"

// TagAction marks the route's audit action so AdminActionRateLimit knows
// which counter to consult
func TagAction(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("audit_action", action)
		c.Next()
	}
}
