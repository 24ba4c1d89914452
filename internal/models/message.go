package models

import (
	"time"
)

// 记录集合名称
const (
	CollectionMessages       = "messages"
	CollectionEditedMessages = "edited-messages"
	CollectionUserEvents     = "user_events"
)

// 消息类型
const (
	MessageTypeText         = "text"
	MessageTypeSticker      = "sticker"
	MessageTypePhoto        = "photo"
	MessageTypeAnimation    = "animation"
	MessageTypeVideo        = "video"
	MessageTypeVoice        = "voice"
	MessageTypeVideoNote    = "video_note"
	MessageTypeAudio        = "audio"
	MessageTypeDocument     = "document"
	MessageTypePoll         = "poll"
	MessageTypeLocation     = "location"
	MessageTypeContact      = "contact"
	MessageTypeNewChatTitle = "new_chat_title"
	MessageTypeNewChatPhoto = "new_chat_photo"
	MessageTypePinned       = "pinned_message"
	MessageTypeOther        = "other"
)

// Message 群组消息表
type Message struct {
	MessageID            int64     `gorm:"column:message_id;primaryKey;autoIncrement:false" json:"message_id"`
	Date                 time.Time `gorm:"index;not null" json:"date"`
	FromUser             *int64    `gorm:"index" json:"from_user"`
	ForwardFromMessageID *int64    `json:"forward_from_message_id,omitempty"`
	ForwardFrom          *int64    `json:"forward_from,omitempty"`
	ForwardFromChat      *int64    `json:"forward_from_chat,omitempty"`
	Caption              *string   `gorm:"type:text" json:"caption,omitempty"`
	Text                 *string   `gorm:"type:text" json:"text,omitempty"`
	StickerSetName       *string   `gorm:"type:varchar(255)" json:"sticker_set_name,omitempty"`
	NewChatTitle         *string   `gorm:"type:varchar(255)" json:"new_chat_title,omitempty"`
	ReplyToMessage       *int64    `json:"reply_to_message,omitempty"`
	FileID               *string   `gorm:"type:varchar(255)" json:"file_id,omitempty"`
	Type                 string    `gorm:"type:varchar(32);index;not null" json:"type"`
}

// TableName 指定表名
func (Message) TableName() string {
	return "messages"
}

// ContentColumns 编辑消息时覆盖的字段
func (Message) ContentColumns() []string {
	return []string{"caption", "text", "sticker_set_name", "new_chat_title", "file_id", "type"}
}

// Author 返回发送者ID，没有时返回 0
func (m *Message) Author() int64 {
	if m.FromUser == nil {
		return 0
	}
	return *m.FromUser
}

// HasText 是否包含文字内容
func (m *Message) HasText() bool {
	return m.Text != nil && *m.Text != ""
}
