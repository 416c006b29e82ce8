// Package queue 提供页内并发处理用的有界 worker 池。
//
// 编排器用单协程消费分页游标，把一页内的商品提交给池子并发处理，
// 页尾 Wait 收齐后再翻页，保证全量覆盖只由一个协调者驱动。
package queue

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Job 表示一个可执行的异步任务。
type Job func(ctx context.Context) error

// Pool 是固定并发上限的任务池。workers 为 1 时退化为严格串行。
type Pool struct {
	logger *slog.Logger
	sem    chan struct{}
	wg     sync.WaitGroup

	// 指标统计
	stats poolStats
}

// poolStats 池内部统计信息（使用 atomic 类型）。
type poolStats struct {
	TotalSubmitted atomic.Int64
	TotalSucceeded atomic.Int64
	TotalFailed    atomic.Int64
	TotalPanics    atomic.Int64
}

// PoolStats 统计信息快照（普通值类型，可安全拷贝）。
type PoolStats struct {
	TotalSubmitted int64
	TotalSucceeded int64
	TotalFailed    int64
	TotalPanics    int64
}

// NewPool 创建任务池。
func NewPool(logger *slog.Logger, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		logger: logger,
		sem:    make(chan struct{}, workers),
	}
}

// Submit 提交一个任务。
//
// 池满时阻塞直到有空位或 ctx 被取消；任务在独立 goroutine 中执行，
// 带 panic 恢复。错误只记日志，不向上传播——单品失败不影响别的商品。
func (p *Pool) Submit(ctx context.Context, job Job) error {
	if job == nil {
		return nil
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.stats.TotalSubmitted.Add(1)
	p.wg.Add(1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.stats.TotalPanics.Add(1)
				p.logger.Error("job panic recovered",
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
			}
			<-p.sem
			p.wg.Done()
		}()

		if err := job(ctx); err != nil {
			p.stats.TotalFailed.Add(1)
			p.logger.Warn("job failed", slog.String("error", err.Error()))
			return
		}
		p.stats.TotalSucceeded.Add(1)
	}()

	return nil
}

// Wait 阻塞直到所有已提交的任务完成。
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Stats 获取统计信息快照。
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		TotalSubmitted: p.stats.TotalSubmitted.Load(),
		TotalSucceeded: p.stats.TotalSucceeded.Load(),
		TotalFailed:    p.stats.TotalFailed.Load(),
		TotalPanics:    p.stats.TotalPanics.Load(),
	}
}
