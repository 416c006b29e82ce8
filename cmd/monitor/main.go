package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/config"
	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/fetch"
	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/monitor"
	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/pkg/logger"
	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/pkg/notify"
	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/pkg/productlock"
	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/pkg/ratelimit"
	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/pkg/redisqueue"
	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/scheduler"
	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/store"
)

// main 是监控服务的入口函数。
//
// 它负责：
// 1. 加载并校验配置
// 2. 初始化存储、Redis、抓取器、通知器
// 3. 启动调度器与扫描 worker
// 4. 启动 Metrics 服务
// 5. 优雅关闭
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	appLogger := logger.NewDefault(cfg.App.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.MySQL.DSN, cfg.App.ProductsTable, cfg.App.UsersTable)
	if err != nil {
		appLogger.Error("init store failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		appLogger.Error("redis ping failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	rq, err := redisqueue.NewClient(rdb)
	if err != nil {
		appLogger.Error("init scan queue failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	fetcher, closeFetcher, err := buildFetcher(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error("init fetcher failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	notifier := notify.NewEmailNotifier(&cfg.Email, appLogger)
	locker := productlock.NewLocker(rdb, 2*time.Minute)
	limiter := ratelimit.NewLimiter(rdb, cfg.App.RateLimit, cfg.App.RateBurst)

	svc := monitor.NewService(cfg, appLogger, st, fetcher, notifier, locker, limiter)
	sched := scheduler.NewScheduler(rq, appLogger, cfg.App.ScanInterval)

	go sched.Run(ctx)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				appLogger.Error("PANIC in scan worker loop", slog.Any("panic", r))
				// worker 循环崩溃后进程已无用，退出让容器编排重启。
				os.Exit(1)
			}
		}()
		svc.StartWorker(ctx, rq)
	}()

	metricsServer := &http.Server{
		Addr:    cfg.App.MetricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		appLogger.Info("metrics server started", slog.String("addr", cfg.App.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("metrics server stopped with error", slog.String("error", err.Error()))
		}
	}()

	appLogger.Info("monitor service started", slog.String("config", cfg.Summary()))

	<-ctx.Done()
	appLogger.Info("shutting down monitor service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("metrics shutdown error", slog.String("error", err.Error()))
	}
	if closeFetcher != nil {
		if err := closeFetcher(); err != nil {
			appLogger.Error("close fetcher failed", slog.String("error", err.Error()))
		}
	}
	if err := st.Close(); err != nil {
		appLogger.Error("close store failed", slog.String("error", err.Error()))
	}
	if err := rdb.Close(); err != nil {
		appLogger.Error("close redis failed", slog.String("error", err.Error()))
	}

	appLogger.Info("monitor service stopped gracefully")
}

// buildFetcher 按配置选择 HTTP 或浏览器抓取模式。
func buildFetcher(ctx context.Context, cfg *config.Config, appLogger *slog.Logger) (fetch.Fetcher, func() error, error) {
	if cfg.Fetch.Mode == "browser" {
		bf, err := fetch.NewBrowserFetcher(ctx, &cfg.Browser, appLogger)
		if err != nil {
			return nil, nil, err
		}
		return bf, bf.Close, nil
	}
	return fetch.NewHTTPFetcher(cfg.Fetch.Timeout, cfg.Fetch.UserAgent), nil, nil
}
