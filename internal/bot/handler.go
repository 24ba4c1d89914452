package bot

import (
	"context"
	"fmt"
	"net/http"

	"stats-bot/internal/command"
	"stats-bot/internal/ingest"
	"stats-bot/internal/utils"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// API 机器人用到的 Telegram 接口
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// EventLogger 事件写入（双写器）
type EventLogger interface {
	Log(ctx context.Context, n ingest.Normalized)
}

// CommandRunner 统计命令处理流程
type CommandRunner interface {
	Run(ctx context.Context, caller command.Caller, text string) command.Outcome
}

// Handler 更新处理器
type Handler struct {
	api         API
	botUsername string
	logger      EventLogger
	commands    CommandRunner
	chatFilter  Middleware
	callerGate  Middleware
	rateLimiter *utils.RateLimiter
}

// NewHandler 创建处理器
func NewHandler(api API, botUsername string,
	logger EventLogger,
	commands CommandRunner,
	chatFilter Middleware,
	callerGate Middleware,
	rateLimiter *utils.RateLimiter) *Handler {

	return &Handler{
		api:         api,
		botUsername: botUsername,
		logger:      logger,
		commands:    commands,
		chatFilter:  chatFilter,
		callerGate:  callerGate,
		rateLimiter: rateLimiter,
	}
}

// HandleUpdate 处理一条更新
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		h.handleMessage(ctx, update.Message, false)
	case update.EditedMessage != nil:
		h.handleMessage(ctx, update.EditedMessage, true)
	}
}

// handleMessage 命令优先，其余消息按群组过滤后记录
func (h *Handler) handleMessage(ctx context.Context, message *tgbotapi.Message, edited bool) {
	// 编辑过的命令不再执行
	if !edited {
		name, args := ParseCommand(message, h.botUsername)
		switch name {
		case commandStats:
			h.handleStats(ctx, message, args)
			return
		case commandChatID:
			h.handleChatID(ctx, message)
			return
		}
	}

	if !h.chatFilter.Check(message) {
		return
	}

	logrus.WithFields(logrus.Fields{
		"消息ID": message.MessageID,
		"聊天ID": message.Chat.ID,
		"编辑":   edited,
	}).Debug("🔍 收到群消息")

	h.logger.Log(ctx, ingest.Normalize(message, edited))
}

// handleStats 处理 /stats 命令
func (h *Handler) handleStats(ctx context.Context, message *tgbotapi.Message, args string) {
	if !h.callerGate.Check(message) {
		return
	}

	logrus.WithFields(logrus.Fields{
		"用户ID": message.From.ID,
		"群组":   GetChatTitle(message.Chat),
		"参数":   args,
	}).Info("📨 收到统计命令")

	outcome := h.commands.Run(ctx, CallerFromUser(message.From), args)
	switch o := outcome.(type) {
	case command.Success:
		if o.Text != "" {
			msg := tgbotapi.NewMessage(message.Chat.ID, o.Text)
			msg.ParseMode = tgbotapi.ModeMarkdownV2
			msg.DisableWebPagePreview = true
			h.send(ctx, message.Chat.ID, msg)
		}
		if len(o.Image) > 0 {
			photo := tgbotapi.NewPhoto(message.Chat.ID, tgbotapi.FileBytes{Name: "stats.png", Bytes: o.Image})
			h.send(ctx, message.Chat.ID, photo)
		}
	case command.Help:
		h.sendHelp(ctx, message, o.Message)
	case command.Error:
		h.sendHelp(ctx, message, o.Message)
	}
}

// handleChatID 处理 /chatid 命令
func (h *Handler) handleChatID(ctx context.Context, message *tgbotapi.Message) {
	if message.Chat == nil {
		return
	}
	msg := tgbotapi.NewMessage(message.Chat.ID, fmt.Sprintf("Chat id: %d", message.Chat.ID))
	h.send(ctx, message.Chat.ID, msg)
}

// sendHelp 优先私聊发送帮助，用户没有和机器人对话过时退回原群组
func (h *Handler) sendHelp(ctx context.Context, message *tgbotapi.Message, text string) {
	body := utils.CodeBlock(text)

	private := tgbotapi.NewMessage(message.From.ID, body)
	private.ParseMode = tgbotapi.ModeMarkdownV2
	err := h.send(ctx, message.From.ID, private)
	if err == nil || !isTelegramError(err, http.StatusForbidden) {
		return
	}

	logrus.WithField("用户ID", message.From.ID).Debug("无法私聊用户，改为在群组中回复")
	fallback := tgbotapi.NewMessage(message.Chat.ID, body)
	fallback.ParseMode = tgbotapi.ModeMarkdownV2
	h.send(ctx, message.Chat.ID, fallback)
}

// send 限流后发送，失败只记录日志
func (h *Handler) send(ctx context.Context, chatID int64, c tgbotapi.Chattable) error {
	if h.rateLimiter != nil {
		if err := h.rateLimiter.Wait(ctx, chatID); err != nil {
			return err
		}
	}

	_, err := h.api.Send(c)
	if err != nil && !isTelegramError(err, http.StatusForbidden) {
		logrus.Errorf("Failed to send message to %d: %v", chatID, err)
	}
	return err
}
