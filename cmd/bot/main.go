package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stats-bot/internal/bot"
	"stats-bot/internal/config"
	"stats-bot/internal/database"
	"stats-bot/internal/metrics"
	"stats-bot/internal/utils"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "stats-bot",
		Short:        "Telegram 群消息记录与统计机器人",
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			run(configPath)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config/config.yaml", "配置文件路径")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) {
	// 加载配置
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logrus.Fatalf("❌ 配置文件加载失败: %v", err)
	}

	// 初始化日志
	if err := utils.InitLogger(cfg.System.LogDir, cfg.System.LogLevel); err != nil {
		logrus.Fatalf("❌ 日志系统初始化失败: %v", err)
	}

	printWelcome()

	logrus.Info("========================================")
	logrus.Info("正在启动 Telegram 统计机器人...")
	logrus.Info("========================================")

	// 初始化数据库连接
	logrus.Info("🗄️  正在连接数据库...")
	dbConfig := database.Config{
		Driver:          cfg.Database.Driver,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		Username:        cfg.Database.Username,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		FilePath:        cfg.Database.FilePath,
		Charset:         cfg.Database.Charset,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}

	if err := database.InitDB(dbConfig); err != nil {
		logrus.Fatalf("❌ 数据库连接失败: %v", err)
	}
	logrus.WithFields(logrus.Fields{
		"驱动": cfg.Database.Driver,
		"主机": cfg.Database.Host,
		"库名": cfg.Database.Database,
	}).Info("✅ 数据库连接成功")

	// 自动迁移数据库表结构
	logrus.Info("🔄 正在同步数据库表结构...")
	if err := database.AutoMigrate(database.GetDB()); err != nil {
		logrus.Fatalf("❌ 表结构同步失败: %v", err)
	}
	logrus.Info("✅ 表结构同步完成")

	// 创建机器人
	logrus.Info("🤖 正在初始化 Telegram 机器人...")
	botInstance, err := bot.NewBot(cfg, database.GetDB())
	if err != nil {
		logrus.Fatalf("❌ 机器人初始化失败: %v", err)
	}
	logrus.WithFields(logrus.Fields{
		"群组ID": cfg.Telegram.ChatID,
		"时区":   cfg.System.Timezone,
		"备份目录": cfg.Backup.Path,
	}).Info("✅ 机器人初始化成功")

	metricsServer := metrics.Start(cfg.Metrics.Listen, func() error {
		return database.PingDB(database.GetDB())
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动机器人
	logrus.Info("🚀 正在启动机器人服务...")
	go func() {
		if err := botInstance.Start(ctx); err != nil {
			logrus.Errorf("❌ 机器人错误: %v", err)
		}
	}()

	logrus.Info("========================================")
	logrus.Info("✨ 机器人运行中！")
	logrus.Info("🛑 按 Ctrl+C 停止运行")
	logrus.Info("========================================")

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("========================================")
	logrus.Info("🛑 收到停止信号")
	logrus.Info("📊 正在停止机器人服务...")
	logrus.Info("========================================")

	logrus.WithFields(logrus.Fields(botInstance.Identity().GetCacheStatus())).Info("💾 身份缓存状态")

	// 优雅关闭
	botInstance.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Stop(shutdownCtx); err != nil {
		logrus.Errorf("Failed to stop metrics server: %v", err)
	}
	if err := database.Close(); err != nil {
		logrus.Errorf("Failed to close database: %v", err)
	}

	logrus.Info("✅ 机器人已安全停止")
}

// printWelcome 打印欢迎信息
func printWelcome() {
	welcome := `
╔═══════════════════════════════════════════╗
║                                           ║
║       Telegram 群消息统计机器人            ║
║                                           ║
║           版本: 1.0.0                     ║
║                                           ║
╚═══════════════════════════════════════════╝
`
	logrus.Info(welcome)
}
