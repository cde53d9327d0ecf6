package model

import (
	"time"

	"gorm.io/datatypes"
)

type ChatSession struct {
	ID          string            `gorm:"primaryKey;size:64" json:"id"`
	CreatedAt   time.Time         `gorm:"not null" json:"createdAt"`
	ContactInfo datatypes.JSONMap `gorm:"column:contact_info" json:"contactInfo,omitempty"`

	Messages []Message `gorm:"foreignKey:SessionID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

func (ChatSession) TableName() string { return "chat_sessions" }
