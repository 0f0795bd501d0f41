package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/beatvault/backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// AdminActionRateLimit blocks mass destructive admin actions. Routes tag the
// action they protect via audit_action on the context; the audit log is the
// counter source so the window survives restarts.
func AdminActionRateLimit(auditService *services.AuditService, redisClient *redis.Client, maxActions, windowMinutes int) gin.HandlerFunc {
	return func(c *gin.Context) {
		action := c.GetString("audit_action")
		if action == "" {
			c.Next()
			return
		}

		userIDInterface, exists := c.Get("userID")
		if !exists {
			c.Next()
			return
		}

		adminID, ok := userIDInterface.(uuid.UUID)
		if !ok {
			c.Next()
			return
		}

		ctx := context.Background()
		blockKey := fmt.Sprintf("admin_blocked:%s:%s", adminID.String(), action)

		// Check if admin is currently blocked (1 hour block)
		if redisClient != nil {
			blocked, err := redisClient.Get(ctx, blockKey).Result()
			if err == nil && blocked == "1" {
				ttl, _ := redisClient.TTL(ctx, blockKey).Result()
				c.JSON(http.StatusForbidden, gin.H{
					"success": false,
					"message": fmt.Sprintf("Account temporarily blocked for %d more minutes due to suspicious activity.", int(ttl.Minutes())),
				})
				c.Abort()
				return
			}
		}

		since := time.Now().Add(-time.Duration(windowMinutes) * time.Minute)

		count, err := auditService.GetActionCount(adminID, action, since)
		if err != nil {
			// Counter unavailable, let the request through
			c.Next()
			return
		}

		// Runaway pattern: block for an hour
		if count >= int64(maxActions)*2 && redisClient != nil {
			_ = redisClient.Set(ctx, blockKey, "1", 1*time.Hour).Err()

			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"message": "Too many actions detected. Your account has been temporarily blocked for 1 hour.",
			})
			c.Abort()
			return
		}

		if count >= int64(maxActions) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": "Too many actions in a short time. Please wait a few minutes.",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
