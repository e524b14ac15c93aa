package chat

import (
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/fadmann/chat/internal/realtime"
	apperrors "github.com/fadmann/chat/pkg/errors"
	pkgvalidator "github.com/fadmann/chat/pkg/validator"
)

// MaxContentLength is the longest accepted message, in characters, after trimming.
const MaxContentLength = 2000

// AllowedReactions is the fixed set of reaction emoji.
var AllowedReactions = []string{"👍", "❤️", "😂", "😮", "😢", "🎉", "🔥", "👀"}

// Inbound is a decoded client frame: one of MessageFrame, TypingFrame or ReactionFrame.
type Inbound interface {
	Type() realtime.Type
	Room() string
	isInbound()
}

// MessageFrame posts a chat message, optionally as a reply.
type MessageFrame struct {
	RoomID  string  `json:"room_id,omitempty"`
	Content string  `json:"content" validate:"required,max=2000"`
	ReplyTo *string `json:"reply_to,omitempty"`
}

// TypingFrame reports whether the sender is typing.
type TypingFrame struct {
	RoomID   string `json:"room_id,omitempty"`
	IsTyping bool   `json:"is_typing"`
}

// ReactionFrame toggles one reaction on one message.
type ReactionFrame struct {
	RoomID    string `json:"room_id,omitempty"`
	MessageID string `json:"message_id" validate:"required"`
	Emoji     string `json:"emoji" validate:"required,reaction"`
}

func (MessageFrame) Type() realtime.Type  { return realtime.TypeMessage }
func (TypingFrame) Type() realtime.Type   { return realtime.TypeTyping }
func (ReactionFrame) Type() realtime.Type { return realtime.TypeReaction }

func (f MessageFrame) Room() string  { return f.RoomID }
func (f TypingFrame) Room() string   { return f.RoomID }
func (f ReactionFrame) Room() string { return f.RoomID }

func (MessageFrame) isInbound()  {}
func (TypingFrame) isInbound()   {}
func (ReactionFrame) isInbound() {}

func init() {
	allowed := make(map[string]struct{}, len(AllowedReactions))
	for _, emoji := range AllowedReactions {
		allowed[emoji] = struct{}{}
	}
	if err := pkgvalidator.RegisterValidation("reaction", func(fl validator.FieldLevel) bool {
		_, ok := allowed[fl.Field().String()]
		return ok
	}); err != nil {
		panic(err)
	}
}

// ParseInbound decodes a raw client frame. Malformed JSON and missing type
// tags yield ErrInvalidFrame; unrecognised tags yield ErrUnknownEvent.
func ParseInbound(raw []byte) (Inbound, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, apperrors.ErrInvalidFrame.WithInternal(err)
	}

	switch realtime.Type(strings.TrimSpace(envelope.Type)) {
	case realtime.TypeMessage:
		var frame MessageFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			return nil, apperrors.ErrInvalidFrame.WithInternal(err)
		}
		frame.Content = strings.TrimSpace(frame.Content)
		if frame.ReplyTo != nil && strings.TrimSpace(*frame.ReplyTo) == "" {
			frame.ReplyTo = nil
		}
		return frame, nil
	case realtime.TypeTyping:
		var frame TypingFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			return nil, apperrors.ErrInvalidFrame.WithInternal(err)
		}
		return frame, nil
	case realtime.TypeReaction:
		var frame ReactionFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			return nil, apperrors.ErrInvalidFrame.WithInternal(err)
		}
		frame.MessageID = strings.TrimSpace(frame.MessageID)
		return frame, nil
	case "":
		return nil, apperrors.ErrInvalidFrame.WithMessage("Frame is missing a type")
	default:
		return nil, apperrors.ErrUnknownEvent.WithMessage("Unsupported event type: " + envelope.Type)
	}
}

// validateMessage maps struct validation failures to protocol errors.
func validateMessage(frame MessageFrame) *apperrors.AppError {
	err := pkgvalidator.ValidateStruct(frame)
	switch {
	case err == nil:
		return nil
	case pkgvalidator.FailedOn(err, "content", "required"):
		return apperrors.ErrEmptyMessage
	case pkgvalidator.FailedOn(err, "content", "max"):
		return apperrors.ErrMessageTooLong
	default:
		return apperrors.ErrInvalidFrame.WithInternal(err)
	}
}

func validateReaction(frame ReactionFrame) *apperrors.AppError {
	err := pkgvalidator.ValidateStruct(frame)
	switch {
	case err == nil:
		return nil
	case pkgvalidator.FailedOn(err, "message_id", ""), pkgvalidator.FailedOn(err, "emoji", "required"):
		return apperrors.ErrInvalidFrame.WithMessage("message_id and emoji required")
	case pkgvalidator.FailedOn(err, "emoji", "reaction"):
		return apperrors.ErrInvalidReaction
	default:
		return apperrors.ErrInvalidFrame.WithInternal(err)
	}
}
