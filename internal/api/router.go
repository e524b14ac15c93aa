package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/fadmann/chat/internal/app"
	iauth "github.com/fadmann/chat/internal/auth"
	"github.com/fadmann/chat/internal/chat"
	"github.com/fadmann/chat/internal/handlers"
	"github.com/fadmann/chat/internal/middleware"
	"github.com/fadmann/chat/internal/realtime"
	"github.com/fadmann/chat/internal/services"
)

// Realtime bundles the live chat components shared by the socket endpoint
// and the presence routes.
type Realtime struct {
	Registry   *realtime.Registry
	Controller *chat.Controller
}

// NewRouter builds the Gin engine, wires middleware and registers the chat routes.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, rt Realtime) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if rt.Registry == nil || rt.Controller == nil {
		return nil, fmt.Errorf("realtime registry and controller must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger(healthPath, cfg.Monitoring.Prometheus.Endpoint))
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	registerHealthRoutes(r, db, rt.Registry, cfg)
	registerMetricsRoutes(r, cfg)

	rooms, err := services.NewRoomService(db)
	if err != nil {
		return nil, err
	}
	messages, err := services.NewMessageStore(db)
	if err != nil {
		return nil, err
	}

	// WebSocket endpoint authenticates on the open socket.
	socket, err := handlers.NewChatSocketHandler(messages, rt.Controller, cfg.Server.AllowedOrigins)
	if err != nil {
		return nil, err
	}
	r.GET("/ws/rooms/:roomID", socket.Stream)

	// Protected routes
	api := r.Group("/api")
	api.Use(middleware.Auth(jwt))

	roomHandler, err := handlers.NewRoomHandler(rooms, messages, rt.Registry)
	if err != nil {
		return nil, err
	}
	registerRoomRoutes(api, roomHandler)

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
