package database

import (
	"fmt"
	"time"

	"stats-bot/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Config 数据库配置结构
type Config struct {
	Driver          string // postgres, mysql, sqlite
	Host            string // 数据库主机地址
	Port            int    // 数据库端口
	Username        string // 数据库用户名
	Password        string // 数据库密码
	Database        string // 数据库名称
	SSLMode         string // postgres sslmode
	FilePath        string // sqlite 文件路径
	Charset         string // mysql 字符集
	MaxIdleConns    int    // 最大空闲连接数
	MaxOpenConns    int    // 最大打开连接数
	ConnMaxLifetime int    // 连接最大生命周期（秒）
	ConnMaxIdleTime int    // 空闲连接超时（秒）
}

// dialector 根据驱动构建 gorm 方言
func dialector(cfg Config) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "postgres", "":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, cfg.SSLMode)
		return postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), nil
	case "mysql":
		charset := cfg.Charset
		if charset == "" {
			charset = "utf8mb4"
		}
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=UTC&timeout=10s&readTimeout=30s&writeTimeout=30s",
			cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database, charset)
		return mysql.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(cfg.FilePath), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// Open 打开数据库连接并配置连接池
func Open(cfg Config) (*gorm.DB, error) {
	d, err := dialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(d, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent), // 静默模式，减少日志输出
		DisableForeignKeyConstraintWhenMigrating: true,                                  // 记录之间没有强制引用完整性
		SkipDefaultTransaction:                   true,                                  // 跳过默认事务，提升性能
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}

	// 获取底层SQL连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库实例失败: %w", err)
	}

	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Second)
	} else {
		// 默认 5 分钟空闲超时
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	}

	// 测试数据库连接
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"驱动":     cfg.Driver,
		"最大空闲连接": cfg.MaxIdleConns,
		"最大打开连接": cfg.MaxOpenConns,
	}).Debug("数据库连接池配置")

	return db, nil
}

// InitDB 初始化全局数据库连接
func InitDB(cfg Config) error {
	db, err := Open(cfg)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// AutoMigrate 同步数据库表结构
func AutoMigrate(db *gorm.DB) error {
	tableModels := []interface{}{
		&models.Message{},   // 消息表
		&models.UserEvent{}, // 成员事件表
		&models.UserName{},  // 用户名历史表
	}

	if err := db.AutoMigrate(tableModels...); err != nil {
		return fmt.Errorf("数据库表结构迁移失败: %w", err)
	}
	return nil
}

// GetDB 获取数据库实例
func GetDB() *gorm.DB {
	return DB
}

// PingDB 数据库健康检查
func PingDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("数据库未初始化")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("获取数据库实例失败: %w", err)
	}

	return sqlDB.Ping()
}

// PingDBWithRetry 带重试的数据库健康检查
func PingDBWithRetry(db *gorm.DB, maxRetries int, backoff time.Duration) error {
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		err := PingDB(db)
		if err == nil {
			return nil
		}

		lastErr = err
		if i < maxRetries-1 {
			waitTime := time.Duration(i+1) * backoff
			logrus.WithFields(logrus.Fields{
				"重试次数": i + 1,
				"等待时间": waitTime,
			}).Warn("⚠️ 数据库连接失败，正在重试...")
			time.Sleep(waitTime)
		}
	}

	return fmt.Errorf("数据库连接失败，已重试 %d 次: %w", maxRetries, lastErr)
}

// GetDBStats 获取数据库连接池统计信息
func GetDBStats(db *gorm.DB) string {
	if db == nil {
		return "数据库未初始化"
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Sprintf("获取数据库实例失败: %v", err)
	}

	stats := sqlDB.Stats()
	return fmt.Sprintf("打开连接: %d, 使用中: %d, 空闲: %d, 等待: %d",
		stats.OpenConnections,
		stats.InUse,
		stats.Idle,
		stats.WaitCount,
	)
}

// Close 关闭数据库连接
func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return fmt.Errorf("获取数据库连接失败: %w", err)
		}
		logrus.Info("🔌 正在关闭数据库连接...")
		return sqlDB.Close()
	}
	return nil
}
