package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/pkg/metrics"

	"github.com/redis/go-redis/v9"
)

const (
	KeyScanQueue      = "tracker:queue:scans"
	KeyScanProcessing = "tracker:queue:scans:processing"
	KeyScanPendingSet = "tracker:queue:scans:pending" // 去重集合
	KeyScanStarted    = "tracker:queue:scans:started" // 任务开始处理时间 (task_id -> unix timestamp)
)

var (
	ErrNoTask     = errors.New("no scan task available")
	ErrTaskExists = errors.New("scan task already in queue")
)

// ScanTask 描述一次全量扫描请求。
type ScanTask struct {
	TaskID      string    `json:"task_id"`
	Reason      string    `json:"reason"` // scheduled / manual
	RequestedAt time.Time `json:"requested_at"`
}

// Client 封装扫描任务队列的 Redis List 操作。
type Client struct {
	rdb *redis.Client
}

// NewClient 从现有 redis.Client 创建队列客户端。
func NewClient(rdb *redis.Client) (*Client, error) {
	if rdb == nil {
		return nil, errors.New("redis client is nil")
	}
	return &Client{rdb: rdb}, nil
}

// pushScript 原子性地执行 SADD + LPUSH，避免中间状态不一致。
// KEYS[1] = pending set, KEYS[2] = scan queue
// ARGV[1] = task_id, ARGV[2] = task JSON
// 返回: 1 = 成功推送, 0 = 任务已存在
var pushScript = redis.NewScript(`
	local added = redis.call('SADD', KEYS[1], ARGV[1])
	if added == 0 then
		return 0
	end
	redis.call('LPUSH', KEYS[2], ARGV[2])
	return 1
`)

// Push 把扫描任务序列化后入队。
//
// 队列里已有同 ID 任务时返回 ErrTaskExists；去重保证同一触发
// 不会被多个 API 节点重复入队。
func (c *Client) Push(ctx context.Context, task *ScanTask) error {
	if task == nil {
		return errors.New("task is nil")
	}
	if c == nil || c.rdb == nil {
		return errors.New("redis client is not initialized")
	}
	if task.TaskID == "" {
		return errors.New("task id is empty")
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	result, err := pushScript.Run(ctx, c.rdb,
		[]string{KeyScanPendingSet, KeyScanQueue},
		task.TaskID, string(data),
	).Int()
	if err != nil {
		return fmt.Errorf("push task script: %w", err)
	}

	if result == 0 {
		metrics.ScanTasksTotal.WithLabelValues("in", "skipped").Inc()
		return ErrTaskExists
	}

	metrics.ScanTasksTotal.WithLabelValues("in", "pushed").Inc()
	return nil
}

// Pop 阻塞等待一个扫描任务，超时返回 ErrNoTask。
//
// 任务会被移动到 processing 列表，并记录开始处理的时间，
// 供 RescueStuck 判断是否卡死。
func (c *Client) Pop(ctx context.Context, timeout time.Duration) (*ScanTask, error) {
	if c == nil || c.rdb == nil {
		return nil, errors.New("redis client is not initialized")
	}
	result, err := c.rdb.BRPopLPush(ctx, KeyScanQueue, KeyScanProcessing, timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoTask
	}
	if err != nil {
		return nil, fmt.Errorf("brpoplpush task: %w", err)
	}

	var task ScanTask
	if err := json.Unmarshal([]byte(result), &task); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}

	if task.TaskID != "" {
		c.rdb.HSet(ctx, KeyScanStarted, task.TaskID, time.Now().Unix())
	}

	metrics.ScanTasksTotal.WithLabelValues("out", "popped").Inc()
	return &task, nil
}

// Ack 确认任务完成，从 processing 列表与去重集合里移除。
func (c *Client) Ack(ctx context.Context, task *ScanTask) error {
	if task == nil {
		return errors.New("task is nil")
	}
	if c == nil || c.rdb == nil {
		return errors.New("redis client is not initialized")
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	pipe := c.rdb.Pipeline()
	pipe.LRem(ctx, KeyScanProcessing, 1, string(data))
	pipe.SRem(ctx, KeyScanPendingSet, task.TaskID)
	pipe.HDel(ctx, KeyScanStarted, task.TaskID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ack task: %w", err)
	}
	return nil
}

// RescueStuck 把处理超过 threshold 的任务放回主队列。
//
// worker 崩溃后留在 processing 列表里的任务由下一次巡检救回，
// 返回救回的任务数。
func (c *Client) RescueStuck(ctx context.Context, threshold time.Duration) (int, error) {
	if c == nil || c.rdb == nil {
		return 0, errors.New("redis client is not initialized")
	}

	entries, err := c.rdb.LRange(ctx, KeyScanProcessing, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("lrange processing: %w", err)
	}

	rescued := 0
	now := time.Now().Unix()
	for _, raw := range entries {
		var task ScanTask
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			// 无法解析的条目直接丢弃，避免反复救援坏数据。
			c.rdb.LRem(ctx, KeyScanProcessing, 1, raw)
			continue
		}

		startedStr, err := c.rdb.HGet(ctx, KeyScanStarted, task.TaskID).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return rescued, fmt.Errorf("hget started: %w", err)
		}

		var started int64
		if _, err := fmt.Sscanf(startedStr, "%d", &started); err != nil {
			continue
		}
		if now-started < int64(threshold.Seconds()) {
			continue
		}

		pipe := c.rdb.Pipeline()
		pipe.LRem(ctx, KeyScanProcessing, 1, raw)
		pipe.LPush(ctx, KeyScanQueue, raw)
		pipe.HDel(ctx, KeyScanStarted, task.TaskID)
		if _, err := pipe.Exec(ctx); err != nil {
			return rescued, fmt.Errorf("requeue stuck task: %w", err)
		}
		rescued++
	}
	return rescued, nil
}
