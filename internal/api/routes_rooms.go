package api

import (
	"github.com/gin-gonic/gin"

	"github.com/fadmann/chat/internal/handlers"
)

func registerRoomRoutes(api *gin.RouterGroup, handler *handlers.RoomHandler) {
	rooms := api.Group("/rooms")
	{
		rooms.GET("", handler.List)
		rooms.POST("", handler.Create)
		rooms.GET("/:roomID/messages", handler.History)
		rooms.GET("/:roomID/presence", handler.Presence)
	}
}
