package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/beatvault/backend/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// UploadRateLimit bounds how many beats a user may upload within the
// configured window. Runs after Auth so userID is on the context.
func UploadRateLimit(redisClient *redis.Client, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != "POST" {
			c.Next()
			return
		}

		userIDInterface, exists := c.Get("userID")
		if !exists {
			c.Next()
			return
		}

		userID, ok := userIDInterface.(uuid.UUID)
		if !ok {
			c.Next()
			return
		}

		ctx := context.Background()
		key := fmt.Sprintf("upload_limit:%s", userID.String())

		count, err := redisClient.Get(ctx, key).Int()
		if err == redis.Nil {
			// First upload in this window
			if err := redisClient.Set(ctx, key, 1, cfg.UploadRateWindow).Err(); err != nil {
				// Redis error - don't block the upload
				c.Next()
				return
			}
		} else if err != nil {
			// Redis error - don't block the upload
			c.Next()
			return
		} else if count >= cfg.UploadRateLimit {
			ttl, _ := redisClient.TTL(ctx, key).Result()
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": fmt.Sprintf("Upload limit reached. Try again in %d minutes.", int(ttl.Minutes())+1),
			})
			c.Abort()
			return
		} else {
			redisClient.Incr(ctx, key)
		}

		c.Next()
	}
}
