package models

import (
	"time"
)

// 用户事件类型
const (
	UserEventJoined = "joined"
	UserEventLeft   = "left"
)

// UserEvent 成员变动事件表（只追加）
type UserEvent struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	MessageID int64     `gorm:"index;not null" json:"message_id"`
	UserID    int64     `gorm:"index;not null" json:"user_id"`
	Date      time.Time `gorm:"index;not null" json:"date"`
	Event     string    `gorm:"type:varchar(32);not null" json:"event"`
	InvitedBy *int64    `json:"invited_by,omitempty"`
}

// TableName 指定表名
func (UserEvent) TableName() string {
	return "user_events"
}
