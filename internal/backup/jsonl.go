package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"stats-bot/internal/models"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/sirupsen/logrus"
)

// ErrUnknownCollection 不支持的集合名称
var ErrUnknownCollection = errors.New("unknown backup collection")

// collections 备份日志支持的集合
var collections = []string{
	models.CollectionMessages,
	models.CollectionEditedMessages,
	models.CollectionUserEvents,
}

// Store 只追加的 JSON Lines 备份日志，每个集合一个目录，每天一个文件
type Store struct {
	path    string
	writers map[string]*rotatelogs.RotateLogs
	mutex   sync.Mutex
}

// NewStore 创建备份日志
func NewStore(path string, loc *time.Location) (*Store, error) {
	if loc == nil {
		loc = time.UTC
	}

	s := &Store{
		path:    path,
		writers: make(map[string]*rotatelogs.RotateLogs, len(collections)),
	}

	for _, collection := range collections {
		dir := filepath.Join(path, collection)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create backup dir %s: %w", dir, err)
		}

		// 备份日志是恢复数据的来源，不按时间清理
		writer, err := rotatelogs.New(
			filepath.Join(dir, "%Y%m%d.jsonl"),
			rotatelogs.WithRotationTime(24*time.Hour),
			rotatelogs.WithRotationCount(math.MaxUint32),
			rotatelogs.WithLocation(loc),
		)
		if err != nil {
			return nil, fmt.Errorf("open backup log %s: %w", collection, err)
		}
		s.writers[collection] = writer
	}

	logrus.WithField("路径", path).Info("✅ 备份日志已初始化")
	return s, nil
}

// Append 追加一条记录
func (s *Store) Append(collection string, record interface{}) error {
	writer, ok := s.writers[collection]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", collection, err)
	}
	line = append(line, '\n')

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write %s record: %w", collection, err)
	}
	return nil
}

// Close 关闭所有文件
func (s *Store) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var errs []error
	for _, writer := range s.writers {
		if err := writer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
