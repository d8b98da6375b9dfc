package model

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatTurn is one entry of a session's append-only chat log.
type ChatTurn struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	SessionID string     `gorm:"size:64;not null;index" json:"session_id"`
	Role      string     `gorm:"size:16;not null" json:"role"`
	Content   string     `gorm:"type:text;not null" json:"content"`
	Citations []Citation `gorm:"serializer:json;type:text" json:"citations,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
