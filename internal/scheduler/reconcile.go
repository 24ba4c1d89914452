package scheduler

import (
	"context"
	"errors"
	"sort"
	"time"

	"stats-bot/internal/cache"
	"stats-bot/internal/metrics"
	"stats-bot/internal/models"
	"stats-bot/internal/service"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrNotMember 用户不在群中，或自机器人会话开始后没有互动过
var ErrNotMember = errors.New("user is not a chat member")

// MemberLookup 查询用户在群中的当前身份
type MemberLookup interface {
	LookupMember(ctx context.Context, userID int64) (models.Identity, error)
}

// UserIDSource 消息历史中出现过的用户
type UserIDSource interface {
	MessageUserIDs(ctx context.Context) ([]int64, error)
}

// NameStore 用户名存储
type NameStore interface {
	LatestNames(ctx context.Context) (map[int64]models.Identity, error)
	ApplyNameChanges(ctx context.Context, changes []service.NameChange) error
}

// IdentityTarget 接收新快照的缓存
type IdentityTarget interface {
	Replace(ctx context.Context, users map[int64]models.Identity) error
	Len() int
}

// CycleReport 一次同步周期的结果
type CycleReport struct {
	Seen         int                        // 消息历史中的用户数
	Resolved     int                        // 查询成功
	NotMembers   int                        // 不在群中
	Failed       int                        // 其他查询错误
	Changes      map[service.ChangeKind]int // 按类型统计的变更
	WriteFailed  bool                       // 变更写入失败
	CacheSwapped bool                       // 缓存已替换
	Duration     time.Duration
}

// Reconciler 用户身份同步任务
type Reconciler struct {
	ids     UserIDSource
	names   NameStore
	lookup  MemberLookup
	cache   IdentityTarget
	limiter *rate.Limiter
}

// NewReconciler 创建同步任务，lookupRate 为每秒成员查询次数
func NewReconciler(ids UserIDSource, names NameStore, lookup MemberLookup,
	identityCache IdentityTarget, lookupRate int) *Reconciler {

	limit := rate.Inf
	burst := 1
	if lookupRate > 0 {
		limit = rate.Limit(lookupRate)
		burst = lookupRate
	}

	return &Reconciler{
		ids:     ids,
		names:   names,
		lookup:  lookup,
		cache:   identityCache,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Diff 比较已存储的身份与查询到的身份，生成最小变更集（按用户ID排序）
func Diff(stored, fetched map[int64]models.Identity) []service.NameChange {
	var changes []service.NameChange

	for userID, current := range fetched {
		previous, exists := stored[userID]
		switch {
		case !exists:
			changes = append(changes, service.NameChange{UserID: userID, Kind: service.ChangeInsert, Identity: current})
		case previous.Equal(current):
			// 没有变化
		case previous.SameFullName(current):
			// 只有短名称变化，不新增历史行
			changes = append(changes, service.NameChange{UserID: userID, Kind: service.ChangeShortName, Identity: current})
		default:
			changes = append(changes, service.NameChange{UserID: userID, Kind: service.ChangeFull, Identity: current})
		}
	}

	sort.Slice(changes, func(i, j int) bool {
		return changes[i].UserID < changes[j].UserID
	})
	return changes
}

// RunCycle 执行一次同步：查询、比较、写入、重新加载并替换缓存
func (r *Reconciler) RunCycle(ctx context.Context) (report CycleReport) {
	started := time.Now()
	report = CycleReport{Changes: make(map[service.ChangeKind]int)}
	defer func() {
		report.Duration = time.Since(started)
		metrics.ReconcileDuration.Observe(report.Duration.Seconds())
		metrics.ReconcileCycles.WithLabelValues(cycleResult(report)).Inc()
	}()

	userIDs, err := r.ids.MessageUserIDs(ctx)
	if err != nil {
		logrus.WithError(err).Error("❌ 获取消息用户列表失败")
		return report
	}
	report.Seen = len(userIDs)

	stored, err := r.names.LatestNames(ctx)
	if err != nil {
		logrus.WithError(err).Error("❌ 获取已存储用户名失败")
		return report
	}

	fetched := make(map[int64]models.Identity, len(userIDs))
	for _, userID := range userIDs {
		if err := r.limiter.Wait(ctx); err != nil {
			logrus.WithError(err).Warn("⚠️ 同步被中断")
			return report
		}

		identity, err := r.lookup.LookupMember(ctx, userID)
		switch {
		case err == nil:
			fetched[userID] = identity
			report.Resolved++
			metrics.MemberLookups.WithLabelValues("ok").Inc()
		case errors.Is(err, ErrNotMember):
			// 每小时都会出现，只记 debug
			report.NotMembers++
			metrics.MemberLookups.WithLabelValues("not_member").Inc()
			logrus.WithField("用户ID", userID).Debug("无法获取用户信息")
		default:
			report.Failed++
			metrics.MemberLookups.WithLabelValues("error").Inc()
			logrus.WithError(err).WithField("用户ID", userID).Warn("⚠️ 查询成员信息失败")
		}
	}

	changes := Diff(stored, fetched)
	if len(changes) > 0 {
		if err := r.names.ApplyNameChanges(ctx, changes); err != nil {
			report.WriteFailed = true
			logrus.WithError(err).WithField("变更数", len(changes)).Error("❌ 用户名变更写入失败")
		} else {
			for _, change := range changes {
				report.Changes[change.Kind]++
				metrics.NameChanges.WithLabelValues(string(change.Kind)).Inc()
			}
		}
	}

	latest, err := r.names.LatestNames(ctx)
	if err != nil {
		logrus.WithError(err).Error("❌ 重新加载用户名失败，缓存保持不变")
		return report
	}

	if err := r.cache.Replace(ctx, latest); err != nil {
		if !errors.Is(err, cache.ErrLockTimeout) {
			logrus.WithError(err).Warn("⚠️ 身份缓存替换失败")
		}
		// 旧快照继续生效，下个周期自愈
		return report
	}
	report.CacheSwapped = true
	metrics.IdentityCacheSize.Set(float64(r.cache.Len()))

	logrus.WithFields(logrus.Fields{
		"用户数":  report.Seen,
		"查询成功": report.Resolved,
		"不在群中": report.NotMembers,
		"查询失败": report.Failed,
		"变更数":  len(changes),
	}).Info("✅ 用户名已同步")
	return report
}

func cycleResult(report CycleReport) string {
	switch {
	case report.CacheSwapped && !report.WriteFailed:
		return "ok"
	case report.CacheSwapped:
		return "partial"
	default:
		return "skipped"
	}
}
