package chat

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fadmann/chat/internal/models"
	"github.com/fadmann/chat/internal/ratelimit"
	"github.com/fadmann/chat/internal/realtime"
	"github.com/fadmann/chat/internal/services"
	apperrors "github.com/fadmann/chat/pkg/errors"
	"github.com/fadmann/chat/pkg/logger"
	"github.com/fadmann/chat/pkg/metrics"
)

const previewLength = 50

// Store is the durable message store the protocol depends on.
type Store interface {
	AppendMessage(ctx context.Context, input services.AppendMessageInput) (*models.Message, error)
	GetMessage(ctx context.Context, roomID, messageID string) (*models.Message, error)
	History(ctx context.Context, query services.HistoryQuery) ([]models.Message, error)
	ToggleReaction(ctx context.Context, roomID, messageID, userID, emoji string) (map[string][]string, error)
}

// Handler applies inbound frames from registered connections.
type Handler struct {
	registry *realtime.Registry
	limiter  *ratelimit.Limiter
	store    Store
	log      *zap.Logger
}

// NewHandler wires a protocol handler.
func NewHandler(registry *realtime.Registry, limiter *ratelimit.Limiter, store Store) (*Handler, error) {
	if registry == nil || limiter == nil || store == nil {
		return nil, errors.New("chat handler: registry, limiter and store are required")
	}
	return &Handler{
		registry: registry,
		limiter:  limiter,
		store:    store,
		log:      logger.WithModule("chat"),
	}, nil
}

// Handle processes one raw frame from conn. Every rejection is reported to
// conn alone as an error event; nothing here terminates the connection.
func (h *Handler) Handle(ctx context.Context, conn *realtime.Conn, raw []byte) {
	frame, err := ParseInbound(raw)
	if err != nil {
		appErr := apperrors.FromError(err)
		if appErr.Code == apperrors.ErrUnknownEvent.Code {
			h.log.Warn("unknown event type",
				zap.String("conn_id", conn.ID()),
				zap.String("user_id", conn.Identity().ID),
				zap.String("detail", appErr.Message),
			)
		}
		metrics.InboundEvents.WithLabelValues("invalid").Inc()
		h.reject(ctx, conn, appErr)
		return
	}

	metrics.InboundEvents.WithLabelValues(string(frame.Type())).Inc()

	if room := frame.Room(); room != "" && room != conn.RoomID() {
		h.reject(ctx, conn, apperrors.ErrRoomMismatch)
		return
	}

	switch f := frame.(type) {
	case MessageFrame:
		h.handleMessage(ctx, conn, f)
	case TypingFrame:
		h.handleTyping(ctx, conn, f)
	case ReactionFrame:
		h.handleReaction(ctx, conn, f)
	default:
		h.reject(ctx, conn, apperrors.ErrUnknownEvent)
	}
}

func (h *Handler) handleMessage(ctx context.Context, conn *realtime.Conn, frame MessageFrame) {
	if appErr := validateMessage(frame); appErr != nil {
		h.reject(ctx, conn, appErr)
		return
	}

	identity := conn.Identity()
	if !h.limiter.Allow(identity.ID) {
		limit, window := h.limiter.Limit()
		h.reject(ctx, conn, apperrors.ErrRateLimit.WithMessage(fmt.Sprintf(
			"Rate limit exceeded. Maximum %d messages per %d seconds.", limit, int(window/time.Second),
		)))
		return
	}

	message, err := h.store.AppendMessage(ctx, services.AppendMessageInput{
		RoomID: conn.RoomID(),
		Author: models.AuthorSnapshot{
			ID:          identity.ID,
			Username:    identity.Username,
			DisplayName: identity.DisplayName,
		},
		Content: frame.Content,
		ReplyTo: frame.ReplyTo,
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidReply) {
			h.reject(ctx, conn, apperrors.ErrInvalidReply)
			return
		}
		h.log.Error("persist message",
			zap.String("room_id", conn.RoomID()),
			zap.String("user_id", identity.ID),
			zap.Error(err),
		)
		h.reject(ctx, conn, apperrors.ErrPersistence.WithInternal(err))
		return
	}

	h.broadcast(ctx, conn.RoomID(), realtime.MessageEvent{Message: WireMessage(message)}, nil)

	// A sent message ends the sender's typing state.
	if h.registry.SetTyping(conn, false) {
		h.broadcastTyping(ctx, conn, false)
	}
}

func (h *Handler) handleTyping(ctx context.Context, conn *realtime.Conn, frame TypingFrame) {
	h.registry.SetTyping(conn, frame.IsTyping)
	h.broadcastTyping(ctx, conn, frame.IsTyping)
}

func (h *Handler) broadcastTyping(ctx context.Context, conn *realtime.Conn, isTyping bool) {
	identity := conn.Identity()
	h.broadcast(ctx, conn.RoomID(), realtime.TypingEvent{
		RoomID:      conn.RoomID(),
		UserID:      identity.ID,
		Username:    identity.Username,
		DisplayName: identity.DisplayName,
		IsTyping:    isTyping,
	}, conn)
}

func (h *Handler) handleReaction(ctx context.Context, conn *realtime.Conn, frame ReactionFrame) {
	if appErr := validateReaction(frame); appErr != nil {
		h.reject(ctx, conn, appErr)
		return
	}

	reactions, err := h.store.ToggleReaction(ctx, conn.RoomID(), frame.MessageID, conn.Identity().ID, frame.Emoji)
	if err != nil {
		if errors.Is(err, apperrors.ErrMessageNotFound) {
			h.reject(ctx, conn, apperrors.ErrMessageNotFound)
			return
		}
		h.log.Error("toggle reaction",
			zap.String("room_id", conn.RoomID()),
			zap.String("message_id", frame.MessageID),
			zap.Error(err),
		)
		h.reject(ctx, conn, apperrors.ErrPersistence.WithInternal(err))
		return
	}

	h.broadcast(ctx, conn.RoomID(), realtime.ReactionUpdateEvent{
		MessageID: frame.MessageID,
		Reactions: reactions,
	}, nil)
}

// broadcast fans ev out to roomID. Fan-out is detached from ctx so a
// sender going away mid-frame cannot fail delivery to healthy peers.
func (h *Handler) broadcast(ctx context.Context, roomID string, ev realtime.Event, exclude *realtime.Conn) {
	h.registry.Broadcast(context.WithoutCancel(ctx), roomID, ev, exclude)
}

func (h *Handler) reject(ctx context.Context, conn *realtime.Conn, appErr *apperrors.AppError) {
	metrics.RejectedEvents.WithLabelValues(appErr.Code).Inc()
	if appErr.Internal != nil {
		h.log.Debug("frame rejected",
			zap.String("conn_id", conn.ID()),
			zap.String("code", appErr.Code),
			zap.Error(appErr.Internal),
		)
	}
	if err := h.registry.SendTo(ctx, conn, realtime.ErrorEvent{Code: appErr.Code, Message: appErr.Message}); err != nil {
		h.log.Debug("send error event", zap.String("conn_id", conn.ID()), zap.Error(err))
	}
}

// WireMessage converts a stored message to its wire form. The reply preview
// is filled when the message's Parent is loaded.
func WireMessage(m *models.Message) realtime.ChatMessage {
	author := m.Author.Data()
	reactions := models.ReactionMap(m.Reactions)

	out := realtime.ChatMessage{
		ID:          m.ID,
		RoomID:      m.RoomID,
		UserID:      m.UserID,
		Username:    author.Username,
		DisplayName: author.DisplayName,
		Content:     m.Content,
		CreatedAt:   m.CreatedAt,
		Reactions:   reactions,
		ReplyTo:     m.ReplyTo,
	}
	if m.Parent != nil {
		parentAuthor := m.Parent.Author.Data()
		out.ReplyToMessage = &realtime.ReplyPreview{
			ID:      m.Parent.ID,
			Content: truncate(m.Parent.Content, previewLength),
			DisplayName: realtime.Identity{
				Username:    parentAuthor.Username,
				DisplayName: parentAuthor.DisplayName,
			}.Name(),
		}
	}
	return out
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
