package service

import (
	"context"
	"fmt"
	"time"

	"stats-bot/internal/models"

	"gorm.io/gorm"
)

// MessageService 查询库（关系型数据库）的消息读写服务
type MessageService struct {
	db *gorm.DB
}

// NewMessageService 创建消息服务
func NewMessageService(db *gorm.DB) *MessageService {
	return &MessageService{db: db}
}

// Append 追加一条记录到指定集合
func (s *MessageService) Append(ctx context.Context, collection string, record interface{}) error {
	switch collection {
	case models.CollectionMessages:
		msg, ok := record.(*models.Message)
		if !ok {
			return fmt.Errorf("collection %s expects *models.Message, got %T", collection, record)
		}
		return s.db.WithContext(ctx).Create(msg).Error
	case models.CollectionUserEvents:
		ev, ok := record.(*models.UserEvent)
		if !ok {
			return fmt.Errorf("collection %s expects *models.UserEvent, got %T", collection, record)
		}
		return s.db.WithContext(ctx).Create(ev).Error
	default:
		return fmt.Errorf("unknown collection: %s", collection)
	}
}

// Update 按消息ID原地覆盖内容字段（仅用于编辑消息）
func (s *MessageService) Update(ctx context.Context, collection string, record interface{}) error {
	if collection != models.CollectionMessages {
		return fmt.Errorf("collection %s does not support update", collection)
	}
	msg, ok := record.(*models.Message)
	if !ok {
		return fmt.Errorf("collection %s expects *models.Message, got %T", collection, record)
	}

	// Select 保证空值也会被写入
	return s.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("message_id = ?", msg.MessageID).
		Select(msg.ContentColumns()).
		Updates(msg).Error
}

// GetMessage 获取单条消息
func (s *MessageService) GetMessage(ctx context.Context, messageID int64) (*models.Message, error) {
	var msg models.Message
	err := s.db.WithContext(ctx).Where("message_id = ?", messageID).First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// MessageFilter 统计查询条件
type MessageFilter struct {
	UserID *int64
	Start  *time.Time
	End    *time.Time
	Types  []string
}

// scope 将过滤条件应用到查询
func (f MessageFilter) scope(db *gorm.DB) *gorm.DB {
	if f.UserID != nil {
		db = db.Where("from_user = ?", *f.UserID)
	}
	if f.Start != nil {
		db = db.Where("date >= ?", f.Start.UTC())
	}
	if f.End != nil {
		db = db.Where("date < ?", f.End.UTC())
	}
	if len(f.Types) > 0 {
		db = db.Where("type IN ?", f.Types)
	}
	return db
}

// UserCount 用户消息数
type UserCount struct {
	FromUser int64
	Count    int64
}

// CountByUser 按用户统计消息数，按数量降序
func (s *MessageService) CountByUser(ctx context.Context, filter MessageFilter, limit int) ([]UserCount, error) {
	var counts []UserCount
	query := s.db.WithContext(ctx).
		Model(&models.Message{}).
		Scopes(filter.scope).
		Select("from_user, COUNT(*) AS count").
		Where("from_user IS NOT NULL").
		Group("from_user").
		Order("count DESC, from_user ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Scan(&counts).Error
	return counts, err
}

// CountMessages 按条件统计消息总数
func (s *MessageService) CountMessages(ctx context.Context, filter MessageFilter) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Message{}).
		Scopes(filter.scope).
		Count(&count).Error
	return count, err
}

// TypeCount 消息类型数量
type TypeCount struct {
	Type  string
	Count int64
}

// CountByType 按消息类型统计
func (s *MessageService) CountByType(ctx context.Context, filter MessageFilter) ([]TypeCount, error) {
	var counts []TypeCount
	err := s.db.WithContext(ctx).
		Model(&models.Message{}).
		Scopes(filter.scope).
		Select("type, COUNT(*) AS count").
		Group("type").
		Order("count DESC, type ASC").
		Scan(&counts).Error
	return counts, err
}

// MessageUserIDs 消息历史中出现过的所有用户ID
func (s *MessageService) MessageUserIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("from_user IS NOT NULL").
		Distinct("from_user").
		Order("from_user ASC").
		Pluck("from_user", &ids).Error
	return ids, err
}

// MessageDates 按条件获取消息时间，用于按小时/星期统计
func (s *MessageService) MessageDates(ctx context.Context, filter MessageFilter) ([]time.Time, error) {
	var dates []time.Time
	err := s.db.WithContext(ctx).
		Model(&models.Message{}).
		Scopes(filter.scope).
		Order("date ASC").
		Pluck("date", &dates).Error
	return dates, err
}

// MessageAt 按消息ID排序后的第 offset 条消息
func (s *MessageService) MessageAt(ctx context.Context, filter MessageFilter, offset int) (*models.Message, error) {
	var msg models.Message
	err := s.db.WithContext(ctx).
		Scopes(filter.scope).
		Order("message_id ASC").
		Offset(offset).
		Limit(1).
		Find(&msg).Error
	if err != nil {
		return nil, err
	}
	if msg.MessageID == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &msg, nil
}
