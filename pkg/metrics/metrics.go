// Package metrics 提供 Prometheus 指标注册与暴露，指标覆盖回测任务与组合执行
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wyfcoding/stockbacktest/pkg/logger"
)

// Metrics 指标集合
type Metrics struct {
	registry *prometheus.Registry

	// JobsStarted 启动的回测任务数
	JobsStarted prometheus.Counter
	// JobsFinished 按终态统计的任务数
	JobsFinished *prometheus.CounterVec
	// CombinationsTotal 按结果状态统计的组合数
	CombinationsTotal *prometheus.CounterVec
	// CombinationDuration 单个组合执行耗时（秒）
	CombinationDuration prometheus.Histogram
	// ActiveWorkers 当前占用的 worker 数
	ActiveWorkers prometheus.Gauge
	// EventPublishErrors 事件发布失败数
	EventPublishErrors prometheus.Counter
	// DBQueryDuration 数据库查询耗时（秒）
	DBQueryDuration prometheus.Histogram
}

// New 创建指标集合
func New(serviceName string) *Metrics {
	constLabels := prometheus.Labels{"service": serviceName}

	return &Metrics{
		registry: prometheus.NewRegistry(),
		JobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "backtest_jobs_started_total",
			Help:        "Number of backtest jobs started",
			ConstLabels: constLabels,
		}),
		JobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "backtest_jobs_finished_total",
			Help:        "Number of backtest jobs finished, by terminal status",
			ConstLabels: constLabels,
		}, []string{"status"}),
		CombinationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "backtest_combinations_total",
			Help:        "Number of strategy/instrument combinations executed, by result status",
			ConstLabels: constLabels,
		}, []string{"status"}),
		CombinationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "backtest_combination_duration_seconds",
			Help:        "Wall time of a single combination simulation",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "backtest_active_workers",
			Help:        "Workers currently running a combination",
			ConstLabels: constLabels,
		}),
		EventPublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "backtest_event_publish_errors_total",
			Help:        "Failed event bus publishes",
			ConstLabels: constLabels,
		}),
		DBQueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "backtest_db_query_duration_seconds",
			Help:        "Duration of database queries issued by the core",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}),
	}
}

// Register 注册全部指标
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.JobsStarted,
		m.JobsFinished,
		m.CombinationsTotal,
		m.CombinationDuration,
		m.ActiveWorkers,
		m.EventPublishErrors,
		m.DBQueryDuration,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return nil
}

// RecordCombination 记录一个组合的执行结果与耗时
func (m *Metrics) RecordCombination(status string, duration time.Duration) {
	m.CombinationsTotal.WithLabelValues(status).Inc()
	m.CombinationDuration.Observe(duration.Seconds())
}

// StartHTTPServer 启动指标暴露服务
func (m *Metrics) StartHTTPServer(port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info(context.Background(), "Metrics server listening", "port", port, "path", path)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(context.Background(), "Metrics server stopped", "error", err)
		}
	}()

	return nil
}
