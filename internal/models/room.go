package models

// Room is a named channel scoping a set of connections and a message history.
type Room struct {
	BaseModel

	Name        string `gorm:"not null;uniqueIndex;size:100" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	IsPublic    bool   `gorm:"default:true" json:"is_public"`
	CreatedBy   string `gorm:"type:varchar(36);not null" json:"created_by"`

	Creator *User `gorm:"foreignKey:CreatedBy" json:"-"`
}
