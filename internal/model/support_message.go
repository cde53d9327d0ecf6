package model

import "time"

// SupportMessage is one entry of the support-ticket inbox. Threads group
// entries independently of chat sessions.
type SupportMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index:idx_support_messages_user_id" json:"userId"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Timestamp time.Time `gorm:"column:timestamp;not null" json:"timestamp"`
	IsRead    bool      `gorm:"not null;default:false" json:"isRead"`
	ThreadID  string    `gorm:"size:64;not null;index:idx_support_messages_thread_id" json:"threadId"`
}

func (SupportMessage) TableName() string { return "support_messages" }
