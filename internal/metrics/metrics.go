package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	// StoreWrites 每次存储写入的结果
	StoreWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statsbot_store_writes_total",
			Help: "Writes to the backup and query stores by collection and result.",
		},
		[]string{"store", "collection", "result"},
	)

	// EventsIngested 已处理的入站事件
	EventsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statsbot_events_ingested_total",
			Help: "Inbound chat events by kind.",
		},
		[]string{"kind"},
	)

	// MemberLookups 成员查询结果
	MemberLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statsbot_member_lookups_total",
			Help: "Membership lookups by outcome.",
		},
		[]string{"result"},
	)

	// NameChanges 用户名变更数量
	NameChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statsbot_name_changes_total",
			Help: "Identity changes written by reconciliation, by kind.",
		},
		[]string{"kind"},
	)

	// ReconcileCycles 同步周期结果
	ReconcileCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statsbot_reconcile_cycles_total",
			Help: "Reconciliation cycles by result.",
		},
		[]string{"result"},
	)

	// ReconcileDuration 同步周期耗时
	ReconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "statsbot_reconcile_duration_seconds",
			Help:    "Duration of reconciliation cycles.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	// IdentityCacheSize 身份缓存中的用户数
	IdentityCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "statsbot_identity_cache_entries",
			Help: "Number of users in the identity cache snapshot.",
		},
	)

	// CommandOutcomes 命令执行结果
	CommandOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statsbot_command_outcomes_total",
			Help: "Stats command outcomes by operation and kind.",
		},
		[]string{"operation", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		StoreWrites,
		EventsIngested,
		MemberLookups,
		NameChanges,
		ReconcileCycles,
		ReconcileDuration,
		IdentityCacheSize,
		CommandOutcomes,
	)
}

// Result 将错误转换为标签值
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// HealthFunc 健康检查函数，返回 nil 表示健康
type HealthFunc func() error

// Handler 构建 /metrics 与 /healthz 路由
func Handler(health HealthFunc) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if health != nil {
			if err := health(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("{\"status\":\"unhealthy\"}"))
				return
			}
		}
		_, _ = w.Write([]byte("{\"status\":\"ok\"}"))
	})
	return mux
}

// Server 指标服务
type Server struct {
	srv *http.Server
}

// Start 在指定地址启动指标服务，地址为空时不启动
func Start(listen string, health HealthFunc) *Server {
	if listen == "" {
		logrus.Info("📊 指标服务未启用")
		return nil
	}

	s := &Server{srv: &http.Server{
		Addr:              listen,
		Handler:           Handler(health),
		ReadHeaderTimeout: 5 * time.Second,
	}}

	go func() {
		logrus.WithField("地址", listen).Info("📊 指标服务已启动")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("❌ 指标服务异常退出")
		}
	}()
	return s
}

// Stop 关闭指标服务
func (s *Server) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
