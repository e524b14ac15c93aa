package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuthorSnapshot freezes the sender identity at the time a message was accepted.
type AuthorSnapshot struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// Message stores one accepted chat message. Only its reactions change after creation.
type Message struct {
	BaseModel

	RoomID  string                             `gorm:"type:varchar(36);not null;index" json:"room_id"`
	UserID  string                             `gorm:"type:varchar(36);not null;index" json:"user_id"`
	Author  datatypes.JSONType[AuthorSnapshot] `json:"author"`
	Content string                             `gorm:"type:text;not null" json:"content"`
	ReplyTo *string                            `gorm:"type:varchar(36);index" json:"reply_to,omitempty"`

	Room      *Room             `gorm:"foreignKey:RoomID" json:"-"`
	Parent    *Message          `gorm:"foreignKey:ReplyTo" json:"-"`
	Reactions []MessageReaction `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"-"`
}

// MessageReaction records one identity applying one emoji to one message.
// The composite key makes a reactor appear at most once per emoji.
type MessageReaction struct {
	MessageID string    `gorm:"type:varchar(36);primaryKey" json:"message_id"`
	Emoji     string    `gorm:"size:32;primaryKey" json:"emoji"`
	UserID    string    `gorm:"type:varchar(36);primaryKey" json:"user_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// ReactionMap groups reactor identity ids by emoji, ordered by reaction time.
func ReactionMap(rows []MessageReaction) map[string][]string {
	out := make(map[string][]string)
	for _, row := range rows {
		out[row.Emoji] = append(out[row.Emoji], row.UserID)
	}
	return out
}
