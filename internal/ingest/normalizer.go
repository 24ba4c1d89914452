package ingest

import (
	"time"

	"stats-bot/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Normalized 一个入站事件规整后的记录
type Normalized struct {
	Message    *models.Message     // 消息记录，可能为空
	UserEvents []*models.UserEvent // 成员变动记录
	Edited     bool                // 是否为已有消息的编辑
}

// Empty 没有任何可记录的内容
func (n Normalized) Empty() bool {
	return n.Message == nil && len(n.UserEvents) == 0
}

func defaultEventID() string {
	return uuid.NewString()
}

// newEventID 生成成员事件ID，测试中可替换
var newEventID = defaultEventID

// Normalize 将 Telegram 消息转换为领域记录
func Normalize(msg *tgbotapi.Message, edited bool) Normalized {
	if msg == nil {
		return Normalized{}
	}
	if msg.From == nil || msg.MessageID == 0 || msg.Date == 0 {
		logrus.WithFields(logrus.Fields{
			"消息ID": msg.MessageID,
			"日期":   msg.Date,
			"编辑":   edited,
		}).Warn("⚠️ 收到格式不完整的消息，已忽略")
		return Normalized{}
	}

	out := Normalized{Edited: edited}
	date := time.Unix(int64(msg.Date), 0).UTC()

	// 编辑事件只更新内容，不产生成员事件
	if !edited {
		out.UserEvents = userEvents(msg, date)
	}

	msgType := messageType(msg)
	if msgType == "" {
		return out
	}

	from := msg.From.ID
	record := &models.Message{
		MessageID: int64(msg.MessageID),
		Date:      date,
		FromUser:  &from,
		Type:      msgType,
	}

	record.Text = optString(msg.Text)
	record.Caption = optString(msg.Caption)
	record.NewChatTitle = optString(msg.NewChatTitle)
	record.FileID = optString(fileID(msg))
	if msg.Sticker != nil {
		record.StickerSetName = optString(msg.Sticker.SetName)
	}
	if msg.ReplyToMessage != nil {
		record.ReplyToMessage = optInt64(int64(msg.ReplyToMessage.MessageID))
	}
	if msg.ForwardFrom != nil {
		record.ForwardFrom = optInt64(msg.ForwardFrom.ID)
	}
	if msg.ForwardFromChat != nil {
		record.ForwardFromChat = optInt64(msg.ForwardFromChat.ID)
	}
	record.ForwardFromMessageID = optInt64(int64(msg.ForwardFromMessageID))

	out.Message = record
	return out
}

// messageType 按内容判定消息类型，没有可记录内容时返回空
func messageType(msg *tgbotapi.Message) string {
	switch {
	case msg.Text != "":
		return models.MessageTypeText
	case msg.Sticker != nil:
		return models.MessageTypeSticker
	case len(msg.Photo) > 0:
		return models.MessageTypePhoto
	case msg.Animation != nil: // 动图同时带有 Document，需先判断
		return models.MessageTypeAnimation
	case msg.Video != nil:
		return models.MessageTypeVideo
	case msg.Voice != nil:
		return models.MessageTypeVoice
	case msg.VideoNote != nil:
		return models.MessageTypeVideoNote
	case msg.Audio != nil:
		return models.MessageTypeAudio
	case msg.Document != nil:
		return models.MessageTypeDocument
	case msg.Poll != nil:
		return models.MessageTypePoll
	case msg.Location != nil:
		return models.MessageTypeLocation
	case msg.Contact != nil:
		return models.MessageTypeContact
	case msg.NewChatTitle != "":
		return models.MessageTypeNewChatTitle
	case len(msg.NewChatPhoto) > 0:
		return models.MessageTypeNewChatPhoto
	case msg.PinnedMessage != nil:
		return models.MessageTypePinned
	case msg.Dice != nil, msg.Venue != nil, msg.Game != nil:
		return models.MessageTypeOther
	default:
		return ""
	}
}

// fileID 媒体文件ID，图片取最大尺寸
func fileID(msg *tgbotapi.Message) string {
	switch {
	case msg.Sticker != nil:
		return msg.Sticker.FileID
	case len(msg.Photo) > 0:
		return msg.Photo[len(msg.Photo)-1].FileID
	case msg.Animation != nil:
		return msg.Animation.FileID
	case msg.Video != nil:
		return msg.Video.FileID
	case msg.Voice != nil:
		return msg.Voice.FileID
	case msg.VideoNote != nil:
		return msg.VideoNote.FileID
	case msg.Audio != nil:
		return msg.Audio.FileID
	case msg.Document != nil:
		return msg.Document.FileID
	case len(msg.NewChatPhoto) > 0:
		return msg.NewChatPhoto[len(msg.NewChatPhoto)-1].FileID
	}
	return ""
}

// userEvents 提取入群/退群事件
func userEvents(msg *tgbotapi.Message, date time.Time) []*models.UserEvent {
	var events []*models.UserEvent

	for i := range msg.NewChatMembers {
		member := msg.NewChatMembers[i]
		ev := &models.UserEvent{
			ID:        newEventID(),
			MessageID: int64(msg.MessageID),
			UserID:    member.ID,
			Date:      date,
			Event:     models.UserEventJoined,
		}
		// 被他人拉入群时记录邀请人
		if msg.From.ID != member.ID {
			ev.InvitedBy = optInt64(msg.From.ID)
		}
		events = append(events, ev)
	}

	if msg.LeftChatMember != nil {
		events = append(events, &models.UserEvent{
			ID:        newEventID(),
			MessageID: int64(msg.MessageID),
			UserID:    msg.LeftChatMember.ID,
			Date:      date,
			Event:     models.UserEventLeft,
		})
	}

	return events
}

func optString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func optInt64(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}
