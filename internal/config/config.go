package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置
type Config struct {
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Backup    BackupConfig    `mapstructure:"backup"`
	System    SystemConfig    `mapstructure:"system"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// TelegramConfig Telegram配置
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"` // 需要记录消息的群组ID
}

// IsLoggedChat 检查是否为需要记录的群组
func (t *TelegramConfig) IsLoggedChat(chatID int64) bool {
	return t.ChatID != 0 && t.ChatID == chatID
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // postgres, mysql, sqlite
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	SSLMode         string `mapstructure:"sslmode"`   // 仅 postgres
	FilePath        string `mapstructure:"file_path"` // 仅 sqlite
	Charset         string `mapstructure:"charset"`   // 仅 mysql
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 空闲连接超时
}

// BackupConfig 备份日志配置
type BackupConfig struct {
	Path string `mapstructure:"path"`
}

// SystemConfig 系统配置
type SystemConfig struct {
	LogLevel string `mapstructure:"log_level"`
	LogDir   string `mapstructure:"log_dir"`
	Timezone string `mapstructure:"timezone"`
	Workers  int    `mapstructure:"workers"`   // 更新处理协程数
	SendRate int    `mapstructure:"send_rate"` // 每个聊天每秒最大发送数
}

// Location 返回配置的时区
func (s *SystemConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SchedulerConfig 调度器配置
type SchedulerConfig struct {
	ReconcileInterval string        `mapstructure:"reconcile_interval"`
	InitialDelay      time.Duration `mapstructure:"initial_delay"`
	LockTimeout       time.Duration `mapstructure:"lock_timeout"`
	LookupRate        int           `mapstructure:"lookup_rate"`
}

// MetricsConfig 指标服务配置，listen 为空时不启动
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// LoadConfig 加载配置文件，文件不存在时只使用默认值和环境变量
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// 设置默认值
	setDefaults(v)

	// 环境变量覆盖，例如 DATABASE_HOST
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	// 解析配置
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验必填配置
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return errors.New("telegram.bot_token is required")
	}
	if c.Telegram.ChatID == 0 {
		return errors.New("telegram.chat_id is required")
	}
	if _, err := time.LoadLocation(c.System.Timezone); err != nil {
		return fmt.Errorf("invalid system.timezone %q: %w", c.System.Timezone, err)
	}
	if c.System.Workers <= 0 {
		return fmt.Errorf("system.workers must be positive, got %d", c.System.Workers)
	}
	switch c.Database.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	return nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", 0)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.username", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "telegram_stats")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "data/stats.db")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", 1800)
	v.SetDefault("database.conn_max_idle_time", 600)

	v.SetDefault("backup.path", "data/backup")

	v.SetDefault("system.log_level", "info")
	v.SetDefault("system.log_dir", "logs")
	v.SetDefault("system.timezone", "UTC")
	v.SetDefault("system.workers", 8)
	v.SetDefault("system.send_rate", 1)

	v.SetDefault("scheduler.reconcile_interval", "@every 1h")
	v.SetDefault("scheduler.initial_delay", 5*time.Second)
	v.SetDefault("scheduler.lock_timeout", 10*time.Second)
	v.SetDefault("scheduler.lookup_rate", 20)

	v.SetDefault("metrics.listen", "")
}

// bindLegacyEnv 兼容旧部署使用的环境变量
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN", "BOT_TOKEN")
	_ = v.BindEnv("telegram.chat_id", "TELEGRAM_CHAT_ID", "CHAT_ID")
	_ = v.BindEnv("system.timezone", "SYSTEM_TIMEZONE", "TZ")
	_ = v.BindEnv("system.log_level", "SYSTEM_LOG_LEVEL", "LOG_LEVEL")
	_ = v.BindEnv("backup.path", "BACKUP_PATH", "JSON_PATH")
	_ = v.BindEnv("database.username", "DATABASE_USERNAME", "POSTGRES_USER")
	_ = v.BindEnv("database.password", "DATABASE_PASSWORD", "POSTGRES_PASSWORD")
	_ = v.BindEnv("database.host", "DATABASE_HOST", "POSTGRES_HOST")
	_ = v.BindEnv("database.database", "DATABASE_DATABASE", "POSTGRES_DB")
}
