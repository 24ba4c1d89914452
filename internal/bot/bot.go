package bot

import (
	"context"
	"fmt"
	"time"

	"stats-bot/internal/backup"
	"stats-bot/internal/cache"
	"stats-bot/internal/command"
	"stats-bot/internal/config"
	"stats-bot/internal/ingest"
	"stats-bot/internal/scheduler"
	"stats-bot/internal/service"
	"stats-bot/internal/stats"
	"stats-bot/internal/utils"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const shutdownTimeout = 15 * time.Second

// Bot Telegram机器人
type Bot struct {
	api       *tgbotapi.BotAPI
	cfg       *config.Config
	handler   *Handler
	scheduler *scheduler.Scheduler
	pool      *utils.WorkerPool
	backup    *backup.Store
	identity  *cache.IdentityCache
	done      chan struct{}
}

// NewBot 创建机器人实例
func NewBot(cfg *config.Config, db *gorm.DB) (*Bot, error) {
	// 创建Bot API
	api, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		return nil, err
	}

	api.Debug = false
	logrus.WithFields(logrus.Fields{
		"用户名":   api.Self.UserName,
		"机器人ID": api.Self.ID,
	}).Info("🔐 机器人授权成功")

	loc := cfg.System.Location()

	// 备份日志
	backupStore, err := backup.NewStore(cfg.Backup.Path, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup store: %w", err)
	}
	logrus.WithField("目录", cfg.Backup.Path).Info("✅ 备份日志已打开")

	// 创建服务
	messageService := service.NewMessageService(db)
	userNameService := service.NewUserNameService(db)
	writer := ingest.NewWriter(backupStore, messageService)

	// 身份缓存在第一次同步后才有内容
	identityCache := cache.NewIdentityCache(cfg.Scheduler.LockTimeout)

	runner := stats.NewRunner(messageService, identityCache, userNameService, loc)
	pipeline := command.NewPipeline(runner, identityCache, loc)

	rateLimiter := utils.NewRateLimiter(cfg.System.SendRate)

	handler := NewHandler(api, api.Self.UserName,
		writer,
		pipeline,
		NewChatFilter(cfg.Telegram),
		NewCallerGate(identityCache),
		rateLimiter)

	// 创建调度器
	reconciler := scheduler.NewReconciler(messageService, userNameService,
		NewMemberLookup(api, cfg.Telegram.ChatID),
		identityCache,
		cfg.Scheduler.LookupRate)
	taskScheduler := scheduler.NewScheduler(reconciler, db, rateLimiter,
		func() bool { return api.Self.CanReadAllGroupMessages },
		scheduler.Options{
			ReconcileInterval: cfg.Scheduler.ReconcileInterval,
			InitialDelay:      cfg.Scheduler.InitialDelay,
		})

	return &Bot{
		api:       api,
		cfg:       cfg,
		handler:   handler,
		scheduler: taskScheduler,
		pool:      utils.NewWorkerPool(cfg.System.Workers),
		backup:    backupStore,
		identity:  identityCache,
		done:      make(chan struct{}),
	}, nil
}

// Identity 身份缓存
func (b *Bot) Identity() *cache.IdentityCache {
	return b.identity
}

// Start 启动机器人，阻塞直到更新通道关闭
func (b *Bot) Start(ctx context.Context) error {
	// 启动调度器
	logrus.Info("⏰ 正在启动定时任务...")
	if err := b.scheduler.Start(ctx); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"同步间隔": b.cfg.Scheduler.ReconcileInterval,
		"首次延迟": b.cfg.Scheduler.InitialDelay,
	}).Info("✅ 定时任务已启动")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message", "edited_message"}

	updates := b.api.GetUpdatesChan(u)

	logrus.WithField("协程数", b.pool.Size()).Info("📡 开始监听 Telegram 更新...")

	// 处理更新
	for update := range updates {
		update := update
		b.pool.Submit(func() {
			b.handler.HandleUpdate(ctx, update)
		})
	}

	// 等待已接收的更新写完
	b.pool.Close()
	b.pool.Wait()
	close(b.done)
	return nil
}

// Stop 停止机器人
func (b *Bot) Stop() {
	b.scheduler.Stop()
	b.api.StopReceivingUpdates()

	// 长轮询可能还要等一个超时周期
	select {
	case <-b.done:
	case <-time.After(shutdownTimeout):
		logrus.Warn("⚠️  等待更新处理完成超时")
	}

	if err := b.backup.Close(); err != nil {
		logrus.Errorf("Failed to close backup store: %v", err)
	}
	logrus.Info("🛑 机器人已停止")
}
