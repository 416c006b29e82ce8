package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/pkg/redisqueue"
)

const (
	// popTimeout 是阻塞弹出扫描任务的单次等待上限。
	popTimeout = 2 * time.Second
	// rescueInterval 是扫回卡死任务的巡检间隔。
	rescueInterval = time.Minute
	// stuckThreshold 认定任务卡死的处理时长。
	stuckThreshold = 10 * time.Minute
)

// StartWorker 循环消费扫描任务队列并执行扫描，直到 ctx 取消。
//
// 每个任务触发一次全量扫描；任务成功才 ack，失败留在 processing
// 列表里等救援巡检搬回待处理队列重试。
func (s *Service) StartWorker(ctx context.Context, rq *redisqueue.Client) {
	s.logger.Info("scan worker started")

	go s.rescueLoop(ctx, rq)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scan worker stopped")
			return
		default:
		}

		task, err := rq.Pop(ctx, popTimeout)
		if err != nil {
			if errors.Is(err, redisqueue.ErrNoTask) || errors.Is(err, context.Canceled) {
				continue
			}
			s.logger.Error("pop scan task failed", slog.String("error", err.Error()))
			time.Sleep(time.Second)
			continue
		}

		s.runTask(ctx, rq, task)
	}
}

// runTask 执行单个扫描任务并在成功后确认。
//
// RunPass 自身对单品错误已做隔离，这里的 recover 只兜底编排层
// 意料之外的 panic，避免拖垮整个 worker 循环。
func (s *Service) runTask(ctx context.Context, rq *redisqueue.Client, task *redisqueue.ScanTask) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scan task panic recovered",
				slog.String("task_id", task.TaskID),
				slog.Any("panic", r))
		}
	}()

	s.logger.Info("scan task started",
		slog.String("task_id", task.TaskID),
		slog.String("reason", task.Reason))

	processed, err := s.RunPass(ctx)
	if err != nil {
		s.logger.Error("scan task failed",
			slog.String("task_id", task.TaskID),
			slog.Int("processed", processed),
			slog.String("error", err.Error()))
		return
	}

	if err := rq.Ack(ctx, task); err != nil {
		s.logger.Error("ack scan task failed",
			slog.String("task_id", task.TaskID),
			slog.String("error", err.Error()))
		return
	}

	s.logger.Info("scan task finished",
		slog.String("task_id", task.TaskID),
		slog.Int("processed", processed))
}

// rescueLoop 周期性把卡死在 processing 列表的任务搬回待处理队列。
func (s *Service) rescueLoop(ctx context.Context, rq *redisqueue.Client) {
	ticker := time.NewTicker(rescueInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rescued, err := rq.RescueStuck(ctx, stuckThreshold)
			if err != nil {
				s.logger.Error("rescue stuck scan tasks failed", slog.String("error", err.Error()))
				continue
			}
			if rescued > 0 {
				s.logger.Warn("rescued stuck scan tasks", slog.Int("count", rescued))
			}
		}
	}
}
