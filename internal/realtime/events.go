package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type tags every event on the wire.
type Type string

const (
	TypeMessage        Type = "message"
	TypeTyping         Type = "typing"
	TypeReaction       Type = "reaction"
	TypeReactionUpdate Type = "reaction_update"
	TypeUserJoined     Type = "user_joined"
	TypeUserLeft       Type = "user_left"
	TypeError          Type = "error"
)

// Event is an outbound server event. The set of implementations is closed;
// Encode switches over all of them.
type Event interface {
	EventType() Type
	isEvent()
}

// ReplyPreview is a denormalized view of the message a reply points at.
type ReplyPreview struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	DisplayName string `json:"display_name"`
}

// ChatMessage is the wire form of a persisted message.
type ChatMessage struct {
	ID             string              `json:"id"`
	RoomID         string              `json:"room_id"`
	UserID         string              `json:"user_id"`
	Username       string              `json:"username"`
	DisplayName    string              `json:"display_name"`
	Content        string              `json:"content"`
	CreatedAt      time.Time           `json:"created_at"`
	Reactions      map[string][]string `json:"reactions"`
	ReplyTo        *string             `json:"reply_to"`
	ReplyToMessage *ReplyPreview       `json:"reply_to_message"`
}

// MessageEvent carries a newly accepted message to the whole room.
type MessageEvent struct {
	Message ChatMessage `json:"message"`
}

// TypingEvent reports a change in an identity's typing state.
type TypingEvent struct {
	RoomID      string `json:"room_id"`
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	IsTyping    bool   `json:"is_typing"`
}

// ReactionUpdateEvent carries the full reaction map of one message after a toggle.
type ReactionUpdateEvent struct {
	MessageID string              `json:"message_id"`
	Reactions map[string][]string `json:"reactions"`
}

// UserJoinedEvent announces a new identity in the room.
type UserJoinedEvent struct {
	RoomID      string    `json:"room_id"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	OnlineCount int       `json:"online_count"`
	Timestamp   time.Time `json:"timestamp"`
}

// UserLeftEvent announces that an identity no longer has a connection in the room.
type UserLeftEvent struct {
	RoomID      string    `json:"room_id"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	OnlineCount int       `json:"online_count"`
	Timestamp   time.Time `json:"timestamp"`
}

// ErrorEvent is sent only to the connection whose frame was rejected.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (MessageEvent) EventType() Type        { return TypeMessage }
func (TypingEvent) EventType() Type         { return TypeTyping }
func (ReactionUpdateEvent) EventType() Type { return TypeReactionUpdate }
func (UserJoinedEvent) EventType() Type     { return TypeUserJoined }
func (UserLeftEvent) EventType() Type       { return TypeUserLeft }
func (ErrorEvent) EventType() Type          { return TypeError }

func (MessageEvent) isEvent()        {}
func (TypingEvent) isEvent()         {}
func (ReactionUpdateEvent) isEvent() {}
func (UserJoinedEvent) isEvent()     {}
func (UserLeftEvent) isEvent()       {}
func (ErrorEvent) isEvent()          {}

// Encode renders ev as a tagged JSON object `{"type": ..., ...fields}`.
func Encode(ev Event) ([]byte, error) {
	switch e := ev.(type) {
	case MessageEvent:
		return json.Marshal(struct {
			Type Type `json:"type"`
			MessageEvent
		}{TypeMessage, e})
	case TypingEvent:
		return json.Marshal(struct {
			Type Type `json:"type"`
			TypingEvent
		}{TypeTyping, e})
	case ReactionUpdateEvent:
		if e.Reactions == nil {
			e.Reactions = map[string][]string{}
		}
		return json.Marshal(struct {
			Type Type `json:"type"`
			ReactionUpdateEvent
		}{TypeReactionUpdate, e})
	case UserJoinedEvent:
		return json.Marshal(struct {
			Type Type `json:"type"`
			UserJoinedEvent
		}{TypeUserJoined, e})
	case UserLeftEvent:
		return json.Marshal(struct {
			Type Type `json:"type"`
			UserLeftEvent
		}{TypeUserLeft, e})
	case ErrorEvent:
		return json.Marshal(struct {
			Type Type `json:"type"`
			ErrorEvent
		}{TypeError, e})
	default:
		return nil, fmt.Errorf("realtime: unsupported event %T", ev)
	}
}
