package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/api"
	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/config"
	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/pkg/logger"
	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/pkg/redisqueue"
	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/scheduler"
	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/store"
)

// main 是管理 API 服务的入口函数。
//
// 它负责：
// 1. 加载并校验配置
// 2. 初始化存储与 Redis
// 3. 启动 HTTP 服务器
// 4. 优雅关闭
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

	// API 端只用调度器的手动触发能力，周期调度由 monitor 进程负责。
	sched := scheduler.NewScheduler(rq, appLogger, cfg.App.ScanInterval)

	srv := api.NewServer(cfg, appLogger, st, rdb, sched, st.Ping)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTPAddr,
		Handler: srv.Router(),
	}
	go func() {
		appLogger.Info("admin api listening", slog.String("addr", cfg.App.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("server run failed", slog.String("error", err.Error()))
		}
	}()

	<-ctx.Done()
	appLogger.Info("shutting down admin api...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("http shutdown failed", slog.String("error", err.Error()))
	}
	if err := st.Close(); err != nil {
		appLogger.Error("close store failed", slog.String("error", err.Error()))
	}
	if err := rdb.Close(); err != nil {
		appLogger.Error("close redis failed", slog.String("error", err.Error()))
	}
}
