package model

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"size:64;not null;index:idx_messages_session_id" json:"sessionId"`
	Role      string    `gorm:"size:16;not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Timestamp time.Time `gorm:"column:timestamp;not null" json:"timestamp"`
}

func (Message) TableName() string { return "messages" }

// IsKnownRole reports whether role is one of the sender types a message may carry.
func IsKnownRole(role string) bool {
	return role == RoleUser || role == RoleAssistant
}
