package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fadmann/chat/internal/chat"
	"github.com/fadmann/chat/internal/realtime"
	"github.com/fadmann/chat/internal/services"
	apperrors "github.com/fadmann/chat/pkg/errors"
	"github.com/fadmann/chat/pkg/logger"
	"github.com/fadmann/chat/pkg/response"
)

// RoomChecker reports whether a room exists.
type RoomChecker interface {
	RoomExists(ctx context.Context, roomID string) (bool, error)
}

// ChatSocketHandler upgrades requests on /ws/rooms/:roomID and hands the
// socket to the lifecycle controller.
type ChatSocketHandler struct {
	rooms      RoomChecker
	controller *chat.Controller
	upgrader   *websocket.Upgrader
	log        *zap.Logger
}

// NewChatSocketHandler constructs the WebSocket entry point.
func NewChatSocketHandler(rooms RoomChecker, controller *chat.Controller, allowedOrigins []string) (*ChatSocketHandler, error) {
	if rooms == nil || controller == nil {
		return nil, errors.New("chat socket handler: rooms and controller are required")
	}
	return &ChatSocketHandler{
		rooms:      rooms,
		controller: controller,
		upgrader:   realtime.NewUpgrader(allowedOrigins),
		log:        logger.WithModule("ws"),
	}, nil
}

// Stream checks the room before upgrading; authentication happens on the
// open socket so a bad credential is reported with close code 4001.
func (h *ChatSocketHandler) Stream(c *gin.Context) {
	roomID := strings.TrimSpace(c.Param("roomID"))
	exists, err := h.rooms.RoomExists(requestContext(c), roomID)
	if err != nil {
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}
	if !exists {
		response.Error(c, services.ErrRoomNotFound)
		return
	}

	credential := credentialFromRequest(c)

	socket, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		h.log.Debug("websocket upgrade failed", zap.String("room_id", roomID), zap.Error(err))
		return
	}

	if err := h.controller.Serve(requestContext(c), realtime.NewWebSocketPeer(socket), roomID, credential); err != nil {
		h.log.Debug("chat session rejected", zap.String("room_id", roomID), zap.Error(err))
	}
}
