package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/fadmann/chat/internal/app"
	"github.com/fadmann/chat/internal/handlers"
	"github.com/fadmann/chat/internal/realtime"
)

const healthPath = "/health"

func registerHealthRoutes(r *gin.Engine, db *gorm.DB, registry *realtime.Registry, cfg *app.Config) {
	if !cfg.Monitoring.Health.Enabled {
		r.GET(healthPath, disabledHealthHandler)
		r.Group("/api").GET(healthPath, disabledHealthHandler)
		return
	}

	health := handlers.Health(db, registry)
	r.GET(healthPath, health)
	r.Group("/api").GET(healthPath, health)
}

func disabledHealthHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"status":  "disabled",
	})
}
