package bot

import (
	"stats-bot/internal/config"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Middleware 消息过滤接口
type Middleware interface {
	Check(message *tgbotapi.Message) bool
}

// ChatFilter 只放行配置的群组
type ChatFilter struct {
	telegram config.TelegramConfig
}

// NewChatFilter 创建群组过滤器
func NewChatFilter(telegram config.TelegramConfig) *ChatFilter {
	return &ChatFilter{telegram: telegram}
}

// Check 消息是否来自需要记录的群组
func (f *ChatFilter) Check(message *tgbotapi.Message) bool {
	if message == nil || message.Chat == nil {
		return false
	}
	return f.telegram.IsLoggedChat(message.Chat.ID)
}

// KnownUsers 已知用户集合（身份缓存）
type KnownUsers interface {
	Contains(userID int64) bool
}

// CallerGate 只允许身份缓存中的用户使用统计命令
type CallerGate struct {
	users KnownUsers
}

// NewCallerGate 创建调用者检查
func NewCallerGate(users KnownUsers) *CallerGate {
	return &CallerGate{users: users}
}

// Check 调用者是否为已知用户
func (g *CallerGate) Check(message *tgbotapi.Message) bool {
	if message == nil || message.From == nil {
		return false
	}
	if message.From.IsBot {
		return false
	}
	if !g.users.Contains(message.From.ID) {
		logrus.WithField("用户ID", message.From.ID).Debug("忽略未知用户的统计命令")
		return false
	}
	return true
}
