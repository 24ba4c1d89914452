package bot

import (
	"strings"

	"stats-bot/internal/command"
	"stats-bot/internal/models"
	"stats-bot/internal/utils"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// 机器人支持的命令
const (
	commandStats  = "stats"
	commandChatID = "chatid"
)

// GetUserInfo 获取用户信息：短名称（@用户名或全名）与全名
func GetUserInfo(user *tgbotapi.User) (shortName, fullName string) {
	fullName = utils.FullName(user.FirstName, user.LastName)
	shortName = utils.ShortName(user.UserName, user.FirstName, user.LastName)
	return
}

// IdentityFromUser 将 Telegram 用户转换为身份
func IdentityFromUser(user *tgbotapi.User) models.Identity {
	shortName, fullName := GetUserInfo(user)
	return models.NewIdentity(shortName, fullName)
}

// CallerFromUser 命令调用者
func CallerFromUser(user *tgbotapi.User) command.Caller {
	shortName, _ := GetUserInfo(user)
	return command.Caller{ID: user.ID, Name: shortName}
}

// GetChatTitle 获取聊天标题
func GetChatTitle(chat *tgbotapi.Chat) string {
	if chat == nil {
		return "未知群组"
	}
	if chat.Title != "" {
		return chat.Title
	}
	if chat.FirstName != "" {
		return chat.FirstName
	}
	return "未知群组"
}

// ParseCommand 提取发给本机器人的命令名和参数，不是命令或发给其他机器人时返回空
func ParseCommand(message *tgbotapi.Message, botUsername string) (name, args string) {
	if message == nil || !message.IsCommand() {
		return "", ""
	}

	// /stats@otherbot 是发给其他机器人的
	withAt := message.CommandWithAt()
	if i := strings.Index(withAt, "@"); i >= 0 {
		if !strings.EqualFold(withAt[i+1:], botUsername) {
			return "", ""
		}
	}

	return strings.ToLower(message.Command()), message.CommandArguments()
}
