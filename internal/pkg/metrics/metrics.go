package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 监控周期相关指标。
var (
	// ScanPassesTotal 按结果统计的全量扫描次数。
	ScanPassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_scan_passes_total",
		Help: "Number of full collection scan passes by result.",
	}, []string{"result"})

	// ScanPassDuration 单次全量扫描耗时。
	ScanPassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracker_scan_pass_duration_seconds",
		Help:    "Duration of a full collection scan pass.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	// ItemsProcessedTotal 按结果统计的单品处理次数。
	// result: ok / fetch_error / extract_miss / bad_record / unknown_marketplace
	//         / notify_error / store_error / locked / panic
	ItemsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_items_processed_total",
		Help: "Number of tracked products processed per cycle, by result.",
	}, []string{"result"})

	// FetchDuration 按站点统计的页面抓取耗时。
	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tracker_fetch_duration_seconds",
		Help:    "Page fetch duration by marketplace.",
		Buckets: prometheus.DefBuckets,
	}, []string{"marketplace"})

	// NotificationsSentTotal 按事件类型统计的已发送通知数。
	NotificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_notifications_sent_total",
		Help: "Number of notifications sent by event kind.",
	}, []string{"kind"})

	// NotificationsSkippedTotal 因未配置投递地址而被静默跳过的通知数。
	NotificationsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_notifications_skipped_total",
		Help: "Number of notifications suppressed because no destination is configured.",
	}, []string{"kind"})
)

// 队列与限流相关指标。
var (
	// ScanTasksTotal 扫描任务入队/出队统计。
	ScanTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_scan_tasks_total",
		Help: "Scan task queue throughput by direction and status.",
	}, []string{"direction", "status"})

	// RateLimitWaitDuration 抓取限流等待耗时。
	RateLimitWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracker_ratelimit_wait_seconds",
		Help:    "Time spent waiting on the per-marketplace rate limiter.",
		Buckets: prometheus.DefBuckets,
	})
)
