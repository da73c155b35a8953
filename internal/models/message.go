package models

import "time"

// Message is a private chat message between two users.
type Message struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	SenderID   uint      `gorm:"not null;index:idx_chat_pair,priority:1"`
	ReceiverID uint      `gorm:"not null;index;index:idx_chat_pair,priority:2"`
	Content    string    `gorm:"type:text;not null"`
	CreatedAt  time.Time `gorm:"index"`
	Read       bool      `gorm:"default:false;index"`
}

// TableName keeps the ticket app's table name.
func (Message) TableName() string { return "chat_messages" }
