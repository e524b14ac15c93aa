package models

// User is the principal behind a chat connection. Credentials are issued and
// verified elsewhere; the chat core only reads the identity columns.
type User struct {
	BaseModel

	Username    string `gorm:"uniqueIndex;not null;size:50" json:"username"`
	Email       string `gorm:"index;size:100" json:"email,omitempty"`
	DisplayName string `gorm:"not null;size:100" json:"display_name"`
	AvatarURL   string `gorm:"size:255" json:"avatar_url,omitempty"`
	Bio         string `gorm:"type:text" json:"bio,omitempty"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`
}
