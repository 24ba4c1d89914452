package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"stats-bot/internal/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// ErrLockTimeout 在限定时间内没有拿到写锁
var ErrLockTimeout = errors.New("identity cache lock timeout")

// snapshot 不可变的身份映射，发布后不再修改
type snapshot struct {
	users      map[int64]models.Identity
	lastUpdate time.Time
}

// IdentityCache 用户身份缓存：读取无锁，整体替换
type IdentityCache struct {
	current     atomic.Pointer[snapshot]
	writeLock   *semaphore.Weighted // 写者互斥
	lockTimeout time.Duration       // 获取写锁的最长等待时间
}

// NewIdentityCache 创建身份缓存
func NewIdentityCache(lockTimeout time.Duration) *IdentityCache {
	if lockTimeout <= 0 {
		lockTimeout = 10 * time.Second
	}
	c := &IdentityCache{
		writeLock:   semaphore.NewWeighted(1),
		lockTimeout: lockTimeout,
	}
	c.current.Store(&snapshot{users: map[int64]models.Identity{}})
	return c
}

// Lookup 查询用户身份
func (c *IdentityCache) Lookup(userID int64) (models.Identity, bool) {
	identity, ok := c.current.Load().users[userID]
	return identity, ok
}

// Contains 用户是否在缓存中
func (c *IdentityCache) Contains(userID int64) bool {
	_, ok := c.Lookup(userID)
	return ok
}

// Name 用户显示名称，未知时返回空
func (c *IdentityCache) Name(userID int64) string {
	identity, ok := c.Lookup(userID)
	if !ok {
		return ""
	}
	return identity.Name()
}

// Len 缓存中的用户数
func (c *IdentityCache) Len() int {
	return len(c.current.Load().users)
}

// Snapshot 当前快照的只读视图，调用方不得修改
func (c *IdentityCache) Snapshot() map[int64]models.Identity {
	return c.current.Load().users
}

// LastUpdate 最后一次替换时间
func (c *IdentityCache) LastUpdate() time.Time {
	return c.current.Load().lastUpdate
}

// Replace 在限定时间内获取写锁并整体替换映射，超时则保留旧快照
func (c *IdentityCache) Replace(ctx context.Context, users map[int64]models.Identity) error {
	lockCtx, cancel := context.WithTimeout(ctx, c.lockTimeout)
	defer cancel()

	if err := c.writeLock.Acquire(lockCtx, 1); err != nil {
		logrus.WithField("超时", c.lockTimeout).Warn("⚠️ 无法获取身份缓存写锁，本次不更新")
		return ErrLockTimeout
	}
	defer c.writeLock.Release(1)

	next := &snapshot{
		users:      make(map[int64]models.Identity, len(users)),
		lastUpdate: time.Now(),
	}
	for id, identity := range users {
		next.users[id] = identity
	}
	c.current.Store(next)

	logrus.WithFields(logrus.Fields{
		"用户数":  len(next.users),
		"更新时间": next.lastUpdate.Format("2006-01-02 15:04:05"),
	}).Info("✅ 身份缓存已更新")
	return nil
}

// GetCacheStatus 获取缓存状态
func (c *IdentityCache) GetCacheStatus() map[string]interface{} {
	current := c.current.Load()
	return map[string]interface{}{
		"用户数":  len(current.users),
		"最后更新": current.lastUpdate.Format("2006-01-02 15:04:05"),
		"缓存年龄": time.Since(current.lastUpdate).String(),
	}
}
