package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/fadmann/chat/internal/database"
	"github.com/fadmann/chat/internal/realtime"
)

const healthTimeout = 2 * time.Second

// Health reports process readiness: the database must answer a ping.
func Health(db *gorm.DB, registry *realtime.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(requestContext(c), healthTimeout)
		defer cancel()

		payload := gin.H{
			"status":     "ok",
			"checked_at": time.Now().UTC(),
		}
		if registry != nil {
			payload["rooms"] = registry.RoomCount()
		}

		if err := database.Ping(ctx, db); err != nil {
			payload["status"] = "degraded"
			payload["database"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "data": payload})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": payload})
	}
}
