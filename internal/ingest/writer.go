package ingest

import (
	"context"
	"errors"
	"fmt"

	"stats-bot/internal/metrics"
	"stats-bot/internal/models"

	"github.com/sirupsen/logrus"
)

// BackupStore 只追加的备份存储
type BackupStore interface {
	Append(collection string, record interface{}) error
}

// QueryStore 可查询、可按键更新的存储
type QueryStore interface {
	Append(ctx context.Context, collection string, record interface{}) error
	Update(ctx context.Context, collection string, record interface{}) error
}

// Writer 将同一条记录写入备份库与查询库，两边互不影响
type Writer struct {
	backup BackupStore
	query  QueryStore
}

// NewWriter 创建双写器
func NewWriter(backup BackupStore, query QueryStore) *Writer {
	return &Writer{backup: backup, query: query}
}

// Append 追加记录到两个存储，两边都会尝试写入，返回合并后的错误
func (w *Writer) Append(ctx context.Context, collection string, record interface{}) error {
	backupErr := w.backup.Append(collection, record)
	observe("backup", collection, backupErr)

	queryErr := w.query.Append(ctx, collection, record)
	observe("query", collection, queryErr)

	return joinStoreErrors(backupErr, queryErr)
}

// Update 编辑消息：备份库追加到编辑历史，查询库原地更新
func (w *Writer) Update(ctx context.Context, collection string, record interface{}) error {
	backupCollection := collection
	if collection == models.CollectionMessages {
		backupCollection = models.CollectionEditedMessages
	}

	backupErr := w.backup.Append(backupCollection, record)
	observe("backup", backupCollection, backupErr)

	queryErr := w.query.Update(ctx, collection, record)
	observe("query", collection, queryErr)

	return joinStoreErrors(backupErr, queryErr)
}

// Log 写入一个规整后的事件，每条记录独立写入，失败只记录日志
func (w *Writer) Log(ctx context.Context, n Normalized) {
	if n.Empty() {
		return
	}

	if n.Edited {
		if n.Message == nil {
			return
		}
		metrics.EventsIngested.WithLabelValues("edit").Inc()
		if err := w.Update(ctx, models.CollectionMessages, n.Message); err != nil {
			logrus.WithError(err).WithField("消息ID", n.Message.MessageID).Error("❌ 编辑消息写入失败")
		}
		return
	}

	if n.Message != nil {
		metrics.EventsIngested.WithLabelValues("message").Inc()
		if err := w.Append(ctx, models.CollectionMessages, n.Message); err != nil {
			logrus.WithError(err).WithField("消息ID", n.Message.MessageID).Error("❌ 消息写入失败")
		} else {
			logrus.WithFields(logrus.Fields{
				"消息ID": n.Message.MessageID,
				"类型":   n.Message.Type,
			}).Debug("📝 消息已记录")
		}
	}

	for _, ev := range n.UserEvents {
		metrics.EventsIngested.WithLabelValues(ev.Event).Inc()
		if err := w.Append(ctx, models.CollectionUserEvents, ev); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"用户ID": ev.UserID,
				"事件":   ev.Event,
			}).Error("❌ 成员事件写入失败")
		}
	}
}

func observe(store, collection string, err error) {
	metrics.StoreWrites.WithLabelValues(store, collection, metrics.Result(err)).Inc()
}

func joinStoreErrors(backupErr, queryErr error) error {
	var errs []error
	if backupErr != nil {
		errs = append(errs, fmt.Errorf("backup store: %w", backupErr))
	}
	if queryErr != nil {
		errs = append(errs, fmt.Errorf("query store: %w", queryErr))
	}
	return errors.Join(errs...)
}
