package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fadmann/chat/internal/chat"
	"github.com/fadmann/chat/internal/models"
	"github.com/fadmann/chat/internal/realtime"
	"github.com/fadmann/chat/internal/services"
	apperrors "github.com/fadmann/chat/pkg/errors"
	"github.com/fadmann/chat/pkg/response"
)

// RoomHandler serves the REST side of rooms: listing, creation, history
// for reconnecting clients and live presence.
type RoomHandler struct {
	rooms    *services.RoomService
	messages *services.MessageStore
	registry *realtime.Registry
}

// NewRoomHandler constructs a RoomHandler.
func NewRoomHandler(rooms *services.RoomService, messages *services.MessageStore, registry *realtime.Registry) (*RoomHandler, error) {
	if rooms == nil || messages == nil || registry == nil {
		return nil, errors.New("room handler: rooms, messages and registry are required")
	}
	return &RoomHandler{rooms: rooms, messages: messages, registry: registry}, nil
}

type roomPayload struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsPublic    bool      `json:"is_public"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	OnlineCount int       `json:"online_count"`
}

type createRoomRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=50,roomname"`
	Description string `json:"description" validate:"max=200"`
	IsPublic    *bool  `json:"is_public"`
}

// List returns all public rooms with their live connection counts.
func (h *RoomHandler) List(c *gin.Context) {
	rooms, err := h.rooms.ListPublic(requestContext(c))
	if err != nil {
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}

	out := make([]roomPayload, 0, len(rooms))
	for i := range rooms {
		out = append(out, h.toPayload(&rooms[i]))
	}
	response.Success(c, http.StatusOK, out)
}

// Create registers a new room owned by the caller.
func (h *RoomHandler) Create(c *gin.Context) {
	var req createRoomRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if len([]rune(strings.TrimSpace(req.Name))) < 2 {
		response.Error(c, apperrors.NewBadRequest("name must be at least 2 characters"))
		return
	}

	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}

	room, err := h.rooms.Create(requestContext(c), services.CreateRoomInput{
		Name:        req.Name,
		Description: req.Description,
		IsPublic:    isPublic,
		CreatedBy:   currentUserID(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, h.toPayload(room))
}

// History returns a page of room messages, oldest first. `before` is an
// exclusive RFC 3339 cursor; meta.next_before continues paging backwards.
func (h *RoomHandler) History(c *gin.Context) {
	roomID := strings.TrimSpace(c.Param("roomID"))
	if _, err := h.rooms.Get(requestContext(c), roomID); err != nil {
		response.Error(c, err)
		return
	}

	limit, err := parseIntQuery(c, "limit", services.DefaultHistoryLimit)
	if err != nil {
		response.Error(c, err)
		return
	}
	if limit <= 0 || limit > services.MaxHistoryLimit {
		response.Error(c, apperrors.NewBadRequest("limit must be between 1 and 200"))
		return
	}

	var before time.Time
	if raw := strings.TrimSpace(c.Query("before")); raw != "" {
		before, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			response.Error(c, apperrors.NewBadRequest("before must be an RFC 3339 timestamp"))
			return
		}
		before = before.UTC()
	}

	rows, err := h.messages.History(requestContext(c), services.HistoryQuery{RoomID: roomID, Limit: limit, Before: before})
	if err != nil {
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}

	out := make([]realtime.ChatMessage, 0, len(rows))
	for i := range rows {
		out = append(out, chat.WireMessage(&rows[i]))
	}

	meta := &response.Meta{Limit: limit, Count: len(out)}
	if len(out) == limit {
		meta.NextBefore = out[0].CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	response.SuccessWithMeta(c, http.StatusOK, out, meta)
}

// Presence returns who is connected to a room and who is typing.
func (h *RoomHandler) Presence(c *gin.Context) {
	roomID := strings.TrimSpace(c.Param("roomID"))
	if _, err := h.rooms.Get(requestContext(c), roomID); err != nil {
		response.Error(c, err)
		return
	}

	members := h.registry.Members(roomID)
	typing := h.registry.Typing(roomID)
	if members == nil {
		members = []realtime.Identity{}
	}
	if typing == nil {
		typing = []realtime.Identity{}
	}

	response.Success(c, http.StatusOK, gin.H{
		"room_id":      roomID,
		"online_count": len(members),
		"members":      members,
		"typing":       typing,
	})
}

func (h *RoomHandler) toPayload(room *models.Room) roomPayload {
	return roomPayload{
		ID:          room.ID,
		Name:        room.Name,
		Description: room.Description,
		IsPublic:    room.IsPublic,
		CreatedBy:   room.CreatedBy,
		CreatedAt:   room.CreatedAt,
		OnlineCount: h.registry.OnlineCount(room.ID),
	}
}
