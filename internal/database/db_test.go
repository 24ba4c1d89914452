package database

import (
	"path/filepath"
	"testing"
	"time"

	"stats-bot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_SqliteAndMigrate(t *testing.T) {
	db, err := Open(Config{
		Driver:   "sqlite",
		FilePath: filepath.Join(t.TempDir(), "stats.db"),
	})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	for _, table := range []interface{}{&models.Message{}, &models.UserEvent{}, &models.UserName{}} {
		assert.True(t, db.Migrator().HasTable(table))
	}

	assert.NoError(t, PingDB(db))
	assert.NoError(t, PingDBWithRetry(db, 2, time.Millisecond))
	assert.Contains(t, GetDBStats(db), "打开连接")
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestPingDB_Nil(t *testing.T) {
	assert.Error(t, PingDB(nil))
	assert.Equal(t, "数据库未初始化", GetDBStats(nil))
}
