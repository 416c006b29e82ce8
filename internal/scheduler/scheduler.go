// Package scheduler 按固定间隔把全量扫描任务投递到 Redis 队列。
//
// 调度与执行解耦：这里只负责产出任务，真正的扫描由 monitor 的
// worker 消费队列后执行。队列侧的 SADD 去重保证同一任务不会
// 重复入队，多个调度器实例并存也是安全的。
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/pkg/redisqueue"
)

// ReasonScheduled 周期调度产生的任务。
const ReasonScheduled = "scheduled"

// ReasonManual 管理接口手动触发的任务。
const ReasonManual = "manual"

// scheduledTaskID 是周期任务的固定 ID。
//
// 队列按任务 ID 去重：固定 ID 意味着上一轮扫描还没消费完时，
// 后续的调度 tick 会被去重掉，扫描不会堆积。手动任务用随机 ID，
// 不受这个约束。
const scheduledTaskID = "scan-cron"

// Scheduler 周期性产出扫描任务。
type Scheduler struct {
	rq       *redisqueue.Client
	logger   *slog.Logger
	interval time.Duration
}

// NewScheduler 创建调度器。interval 不合法时回退到 30 分钟。
func NewScheduler(rq *redisqueue.Client, logger *slog.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Scheduler{rq: rq, logger: logger, interval: interval}
}

// Run 启动调度循环，直到 ctx 取消。
//
// 启动时立即调度一次，之后按 interval 周期入队。
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started", slog.Duration("interval", s.interval))

	s.enqueue(ctx, ReasonScheduled)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.enqueue(ctx, ReasonScheduled)
		}
	}
}

// Trigger 立即入队一次手动扫描任务，返回任务 ID。
//
// 给 Admin API 用；手动任务带随机 ID，不受周期任务的去重影响。
func (s *Scheduler) Trigger(ctx context.Context) (string, error) {
	task := newTask(ReasonManual)
	if err := s.rq.Push(ctx, task); err != nil {
		return "", err
	}
	s.logger.Info("manual scan task enqueued", slog.String("task_id", task.TaskID))
	return task.TaskID, nil
}

func (s *Scheduler) enqueue(ctx context.Context, reason string) {
	task := newTask(reason)
	if err := s.rq.Push(ctx, task); err != nil {
		if errors.Is(err, redisqueue.ErrTaskExists) {
			// 上一轮扫描还没消费完，跳过本次调度。
			s.logger.Debug("scan task already pending, skip this tick")
			return
		}
		s.logger.Error("enqueue scan task failed", slog.String("error", err.Error()))
		return
	}
	s.logger.Info("scan task enqueued",
		slog.String("task_id", task.TaskID),
		slog.String("reason", reason))
}

func newTask(reason string) *redisqueue.ScanTask {
	id := uuid.NewString()
	if reason == ReasonScheduled {
		id = scheduledTaskID
	}
	return &redisqueue.ScanTask{
		TaskID:      id,
		Reason:      reason,
		RequestedAt: time.Now(),
	}
}
