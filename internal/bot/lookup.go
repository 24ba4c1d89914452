package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"stats-bot/internal/models"
	"stats-bot/internal/scheduler"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// MemberLookup 通过 getChatMember 查询用户的当前名称
type MemberLookup struct {
	api    API
	chatID int64
}

// NewMemberLookup 创建成员查询
func NewMemberLookup(api API, chatID int64) *MemberLookup {
	return &MemberLookup{api: api, chatID: chatID}
}

// LookupMember 查询单个用户，用户不在群中时返回 scheduler.ErrNotMember
func (l *MemberLookup) LookupMember(ctx context.Context, userID int64) (models.Identity, error) {
	if err := ctx.Err(); err != nil {
		return models.Identity{}, err
	}

	member, err := l.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: l.chatID,
			UserID: userID,
		},
	})
	if err != nil {
		if isTelegramError(err, http.StatusBadRequest) {
			return models.Identity{}, fmt.Errorf("%w: %v", scheduler.ErrNotMember, err)
		}
		return models.Identity{}, fmt.Errorf("get chat member %d: %w", userID, err)
	}
	if member.User == nil {
		return models.Identity{}, scheduler.ErrNotMember
	}

	return IdentityFromUser(member.User), nil
}

// isTelegramError Telegram 是否返回了指定的错误码
func isTelegramError(err error, code int) bool {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		return tgErr.Code == code
	}
	return false
}
