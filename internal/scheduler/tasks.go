package scheduler

import (
	"context"
	"time"

	"stats-bot/internal/database"
	"stats-bot/internal/utils"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Options 调度参数
type Options struct {
	ReconcileInterval string        // 同步周期，cron 表达式
	InitialDelay      time.Duration // 启动后首次同步的延迟
}

// Scheduler 定时任务调度器
type Scheduler struct {
	cron        *cron.Cron
	reconciler  *Reconciler
	reconcile   cron.Job
	db          *gorm.DB
	rateLimiter *utils.RateLimiter
	canReadAll  func() bool
	opts        Options

	ctx    context.Context
	cancel context.CancelFunc
	first  *time.Timer
}

// NewScheduler 创建调度器
func NewScheduler(reconciler *Reconciler,
	db *gorm.DB,
	rateLimiter *utils.RateLimiter,
	canReadAll func() bool,
	opts Options) *Scheduler {

	if opts.ReconcileInterval == "" {
		opts.ReconcileInterval = "@every 1h"
	}

	// 上一轮同步未结束时跳过本轮
	skip := cron.SkipIfStillRunning(cron.PrintfLogger(logrus.StandardLogger()))

	s := &Scheduler{
		cron:        cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(logrus.StandardLogger())))),
		reconciler:  reconciler,
		db:          db,
		rateLimiter: rateLimiter,
		canReadAll:  canReadAll,
		opts:        opts,
	}
	s.reconcile = cron.NewChain(skip).Then(cron.FuncJob(s.syncUsernames))
	return s
}

// Start 启动调度器
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	// 添加用户名同步任务
	_, err := s.cron.AddJob(s.opts.ReconcileInterval, s.reconcile)
	if err != nil {
		return err
	}

	// 添加清理限流器的任务（每5分钟）
	if s.rateLimiter != nil {
		_, err = s.cron.AddFunc("*/5 * * * *", s.cleanupLimiters)
		if err != nil {
			return err
		}
	}

	// 添加数据库健康检查任务（每5分钟）
	if s.db != nil {
		_, err = s.cron.AddFunc("*/5 * * * *", s.checkDatabaseHealth)
		if err != nil {
			return err
		}
	}

	// 启动后短暂延迟做第一次同步，与周期任务共用跳过逻辑
	s.first = time.AfterFunc(s.opts.InitialDelay, s.reconcile.Run)

	// 一次性检查隐私模式
	go s.checkPrivacy()

	s.cron.Start()
	logrus.WithFields(logrus.Fields{
		"tasks":  len(s.cron.Entries()),
		"同步周期":   s.opts.ReconcileInterval,
		"首次同步延迟": s.opts.InitialDelay,
	}).Debug("Scheduler tasks registered")
	return nil
}

// Stop 停止调度器，等待正在运行的任务结束
func (s *Scheduler) Stop() {
	if s.first != nil {
		s.first.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	logrus.Info("⏹️  定时任务已停止")
}

// syncUsernames 同步用户名到缓存，任何错误都不会越过任务边界
func (s *Scheduler) syncUsernames() {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).Error("❌ 用户名同步异常")
		}
	}()

	logrus.Debug("🔄 正在同步用户名...")
	s.reconciler.RunCycle(ctx)
}

// checkPrivacy 机器人开启隐私模式时无法读取全部群消息
func (s *Scheduler) checkPrivacy() {
	if s.canReadAll == nil {
		return
	}
	if !s.canReadAll() {
		logrus.Error("❌ 机器人开启了隐私模式，无法记录群消息！")
		return
	}
	logrus.Debug("✅ 机器人可以读取全部群消息")
}

// cleanupLimiters 清理限流器
func (s *Scheduler) cleanupLimiters() {
	removed := s.rateLimiter.CleanupOldLimiters()
	logrus.WithField("数量", removed).Debug("🧹 已清理旧的限流器")
}

// checkDatabaseHealth 检查数据库连接健康状态
func (s *Scheduler) checkDatabaseHealth() {
	logrus.Debug("🏥 正在检查数据库连接健康状态...")

	if err := database.PingDBWithRetry(s.db, 3, time.Second); err != nil {
		logrus.Errorf("❌ 数据库健康检查失败: %v", err)
		logrus.Warn("⚠️  数据库连接异常，消息将只写入备份日志")
		return
	}

	logrus.WithField("连接池状态", database.GetDBStats(s.db)).Debug("✅ 数据库连接正常")
}
