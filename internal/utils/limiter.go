package utils

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter 按聊天ID限流
type RateLimiter struct {
	limiters map[int64]*chatLimiter
	mu       sync.Mutex
	maxRate  int // 每秒最大操作数
}

type chatLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter 创建速率限制器
func NewRateLimiter(maxRate int) *RateLimiter {
	if maxRate <= 0 {
		maxRate = 1
	}
	return &RateLimiter{
		limiters: make(map[int64]*chatLimiter),
		maxRate:  maxRate,
	}
}

func (r *RateLimiter) get(chatID int64) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, exists := r.limiters[chatID]
	if !exists {
		l = &chatLimiter{limiter: rate.NewLimiter(rate.Limit(r.maxRate), r.maxRate)}
		r.limiters[chatID] = l
	}
	l.lastSeen = time.Now()
	return l.limiter
}

// Wait 等待直到可以执行操作
func (r *RateLimiter) Wait(ctx context.Context, chatID int64) error {
	return r.get(chatID).Wait(ctx)
}

// CleanupOldLimiters 清理5分钟未使用的限制器（定期调用）
func (r *RateLimiter) CleanupOldLimiters() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	now := time.Now()
	for chatID, l := range r.limiters {
		if now.Sub(l.lastSeen) > 5*time.Minute {
			delete(r.limiters, chatID)
			removed++
		}
	}
	return removed
}
