package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stats-bot/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ChangeKind 用户名变更类型
type ChangeKind string

const (
	ChangeInsert    ChangeKind = "insert" // 首次出现
	ChangeShortName ChangeKind = "short"  // 只有短名称变化，不新增历史行
	ChangeFull      ChangeKind = "full"   // 两个字段都更新
)

// NameChange 一条待写入的用户名变更
type NameChange struct {
	UserID   int64
	Kind     ChangeKind
	Identity models.Identity
}

// UserNameService 用户名（身份）存储服务
type UserNameService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewUserNameService 创建用户名服务
func NewUserNameService(db *gorm.DB) *UserNameService {
	return &UserNameService{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// LatestNames 每个用户最新的一行用户名记录
func (s *UserNameService) LatestNames(ctx context.Context) (map[int64]models.Identity, error) {
	var rows []models.UserName
	err := s.db.WithContext(ctx).
		Order("user_id ASC, date ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	latest := make(map[int64]models.Identity, len(rows))
	for i := range rows {
		latest[rows[i].UserID] = rows[i].Identity()
	}
	return latest, nil
}

// History 用户的全部用户名历史，按时间排序
func (s *UserNameService) History(ctx context.Context, userID int64) ([]models.UserName, error) {
	var rows []models.UserName
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("date ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

// ApplyNameChanges 在一个事务中写入全部变更
func (s *UserNameService) ApplyNameChanges(ctx context.Context, changes []NameChange) error {
	if len(changes) == 0 {
		return nil
	}

	now := s.now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, change := range changes {
			switch change.Kind {
			case ChangeInsert, ChangeFull:
				row := &models.UserName{
					UserID:      change.UserID,
					Date:        now,
					Username:    change.Identity.ShortName,
					DisplayName: change.Identity.FullName,
				}
				if err := tx.Create(row).Error; err != nil {
					return fmt.Errorf("insert user name %d: %w", change.UserID, err)
				}
			case ChangeShortName:
				if err := s.updateShortName(tx, change); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown change kind %q for user %d", change.Kind, change.UserID)
			}
		}

		logrus.WithField("变更数", len(changes)).Debug("✅ 用户名变更已写入")
		return nil
	})
}

// updateShortName 只更新最新一行的短名称
func (s *UserNameService) updateShortName(tx *gorm.DB, change NameChange) error {
	var latest models.UserName
	err := tx.Where("user_id = ?", change.UserID).
		Order("date DESC, id DESC").
		First(&latest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// 没有历史行时按首次出现处理
		row := &models.UserName{
			UserID:      change.UserID,
			Date:        s.now(),
			Username:    change.Identity.ShortName,
			DisplayName: change.Identity.FullName,
		}
		return tx.Create(row).Error
	}
	if err != nil {
		return fmt.Errorf("find latest user name %d: %w", change.UserID, err)
	}

	err = tx.Model(&models.UserName{}).
		Where("id = ?", latest.ID).
		Update("username", change.Identity.ShortName).Error
	if err != nil {
		return fmt.Errorf("update user name %d: %w", change.UserID, err)
	}
	return nil
}
