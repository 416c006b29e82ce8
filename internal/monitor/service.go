// Package monitor 实现按周期的商品监控编排。
//
// 单次全量扫描（pass）按游标分页遍历商品集合，对每个商品执行
// 抓取 -> 提取 -> 判定 -> 通知 -> 落库 的周期。所有单品错误都被
// 隔离在商品范围内：一个坏商品绝不中断整轮扫描。
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/config"
	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/extract"
	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/fetch"
	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/model"
	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/pkg/metrics"
	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/pkg/notify"
	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/pkg/queue"
)

// ProductStore 是编排器需要的存储能力。
//
// 实现在 internal/store，测试里用内存假对象替换。
type ProductStore interface {
	// ScanProducts 按游标分页扫描商品集合；nextCursor 为空表示扫描完毕。
	ScanProducts(ctx context.Context, cursor string, limit int) ([]model.TrackedProduct, string, error)
	// GetUser 按用户 ID 查询通知接收人。
	GetUser(ctx context.Context, userID string) (*model.User, error)
	// UpdateProduct 按商品 URL 回写观测状态。
	UpdateProduct(ctx context.Context, productURL string, price float64, inStock bool, updatedAt time.Time) error
}

// Locker 保证同一商品不被并发处理。
type Locker interface {
	TryAcquire(ctx context.Context, productURL string) (bool, error)
	Release(ctx context.Context, productURL string) error
}

// Limiter 按站点对页面抓取限速。
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

// Service 驱动端到端的监控周期。
//
// 所有外部协作者（存储、抓取、通知、锁、限流）都通过依赖注入传入，
// 不持有任何包级全局状态。
type Service struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    ProductStore
	fetcher  fetch.Fetcher
	registry *extract.Registry
	notifier notify.Notifier
	locker   Locker
	limiter  Limiter

	// 可注入的时钟，测试用。
	now func() time.Time
}

// NewService 创建监控编排器。
func NewService(cfg *config.Config, logger *slog.Logger, store ProductStore, fetcher fetch.Fetcher, notifier notify.Notifier, locker Locker, limiter Limiter) *Service {
	return &Service{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		fetcher:  fetcher,
		registry: extract.NewRegistry(),
		notifier: notifier,
		locker:   locker,
		limiter:  limiter,
		now:      time.Now,
	}
}

// RunPass 执行一次全量扫描，返回成功处理的商品数。
//
// 游标由这里单协程消费；一页内的商品提交给有界 worker 池处理，
// 页尾收齐后再翻页。store 的扫描失败会中止整轮，单品错误不会。
func (s *Service) RunPass(ctx context.Context) (int, error) {
	start := s.now()
	s.logger.Info("scan pass started", slog.String("config", s.cfg.Summary()))

	var processed atomic.Int64
	pool := queue.NewPool(s.logger, s.cfg.App.WorkerPoolSize)

	cursor := ""
	pages := 0
	for {
		products, nextCursor, err := s.store.ScanProducts(ctx, cursor, s.cfg.App.ScanPageSize)
		if err != nil {
			pool.Wait()
			metrics.ScanPassesTotal.WithLabelValues("error").Inc()
			return int(processed.Load()), fmt.Errorf("scan products page %d: %w", pages, err)
		}
		pages++

		for i := range products {
			rec := products[i]
			if err := pool.Submit(ctx, func(jobCtx context.Context) error {
				if s.processItem(jobCtx, rec) {
					processed.Add(1)
				}
				// 单品错误已在 processItem 内部记录，绝不向池上抛。
				return nil
			}); err != nil {
				// 只有 ctx 取消会走到这里：中止整轮。
				pool.Wait()
				metrics.ScanPassesTotal.WithLabelValues("canceled").Inc()
				return int(processed.Load()), fmt.Errorf("submit item: %w", err)
			}
		}

		// 页尾同步：游标只由本协程推进，保证全量覆盖。
		pool.Wait()

		if nextCursor == "" {
			break
		}
		cursor = nextCursor
	}

	elapsed := s.now().Sub(start)
	metrics.ScanPassesTotal.WithLabelValues("ok").Inc()
	metrics.ScanPassDuration.Observe(elapsed.Seconds())
	s.logger.Info("scan pass finished",
		slog.Int64("processed", processed.Load()),
		slog.Int("pages", pages),
		slog.Duration("duration", elapsed))
	return int(processed.Load()), nil
}

// processItem 执行单个商品的完整周期，返回是否成功处理到落库。
//
// 任何失败（含 panic）都被限制在商品范围内；失败商品的持久化状态
// 保持原样，等下一轮调度重试。
func (s *Service) processItem(ctx context.Context, rec model.TrackedProduct) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ItemsProcessedTotal.WithLabelValues("panic").Inc()
			s.logger.Error("item processing panic recovered",
				slog.String("product_url", rec.ProductURL),
				slog.Any("panic", r))
			ok = false
		}
	}()

	// 记录形状校验：url 和所属用户缺一不可。
	if rec.ProductURL == "" || rec.UserID == "" {
		metrics.ItemsProcessedTotal.WithLabelValues("bad_record").Inc()
		s.logger.Warn("skip malformed product record",
			slog.String("product_url", rec.ProductURL),
			slog.String("user_id", rec.UserID))
		return false
	}

	mp, extractor, err := s.registry.Lookup(rec.ProductURL)
	if err != nil {
		metrics.ItemsProcessedTotal.WithLabelValues("unknown_marketplace").Inc()
		s.logger.Warn("skip product with unknown marketplace",
			slog.String("product_url", rec.ProductURL),
			slog.String("error", err.Error()))
		return false
	}

	if s.locker != nil {
		acquired, err := s.locker.TryAcquire(ctx, rec.ProductURL)
		if err != nil {
			metrics.ItemsProcessedTotal.WithLabelValues("locked").Inc()
			s.logger.Error("product lock failed",
				slog.String("product_url", rec.ProductURL),
				slog.String("error", err.Error()))
			return false
		}
		if !acquired {
			metrics.ItemsProcessedTotal.WithLabelValues("locked").Inc()
			s.logger.Debug("product is being processed elsewhere, skip",
				slog.String("product_url", rec.ProductURL))
			return false
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), rec.ProductURL); err != nil {
				s.logger.Warn("release product lock failed",
					slog.String("product_url", rec.ProductURL),
					slog.String("error", err.Error()))
			}
		}()
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, string(mp)); err != nil {
			metrics.ItemsProcessedTotal.WithLabelValues("fetch_error").Inc()
			s.logger.Error("rate limit wait failed",
				slog.String("product_url", rec.ProductURL),
				slog.String("error", err.Error()))
			return false
		}
	}

	// 抓取带独立超时；超时视为本周期抓取失败。
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.Fetch.Timeout)
	defer cancel()

	fetchStart := s.now()
	content, err := s.fetcher.Fetch(fetchCtx, rec.ProductURL)
	metrics.FetchDuration.WithLabelValues(string(mp)).Observe(s.now().Sub(fetchStart).Seconds())
	if err != nil {
		metrics.ItemsProcessedTotal.WithLabelValues("fetch_error").Inc()
		s.logger.Error("fetch page failed",
			slog.String("product_url", rec.ProductURL),
			slog.String("marketplace", string(mp)),
			slog.String("error", err.Error()))
		return false
	}

	reading := extractor.Extract(content)
	if reading.Price == nil {
		// 全部回退策略都没拿到价格：跳过本周期，不动已存状态。
		metrics.ItemsProcessedTotal.WithLabelValues("extract_miss").Inc()
		s.logger.Warn("price extraction missed",
			slog.String("product_url", rec.ProductURL),
			slog.String("marketplace", string(mp)),
			slog.String("stock", reading.Stock.String()))
		return false
	}

	decision := Decide(State{LastPrice: rec.LastPrice, LastInStock: rec.InStock}, reading)

	if decision.PriceDropped || decision.Restocked {
		if err := s.dispatchNotifications(ctx, rec, mp, reading, decision); err != nil {
			// 通知失败走与抓取失败相同的单品处理：本周期不落库，
			// 下一轮会重新判定并重发。语义保持现状，见 DESIGN.md。
			metrics.ItemsProcessedTotal.WithLabelValues("notify_error").Inc()
			s.logger.Error("notification dispatch failed",
				slog.String("product_url", rec.ProductURL),
				slog.String("error", err.Error()))
			return false
		}
	}

	if err := s.store.UpdateProduct(ctx, rec.ProductURL, *reading.Price, decision.NowInStock, s.now()); err != nil {
		metrics.ItemsProcessedTotal.WithLabelValues("store_error").Inc()
		s.logger.Error("persist product state failed",
			slog.String("product_url", rec.ProductURL),
			slog.String("error", err.Error()))
		return false
	}

	metrics.ItemsProcessedTotal.WithLabelValues("ok").Inc()
	s.logger.Debug("product processed",
		slog.String("product_url", rec.ProductURL),
		slog.Float64("price", *reading.Price),
		slog.Bool("in_stock", decision.NowInStock),
		slog.Bool("price_dropped", decision.PriceDropped),
		slog.Bool("restocked", decision.Restocked))
	return true
}

// dispatchNotifications 查找接收人并派发本周期触发的全部事件。
//
// 降价与补货相互独立，可能在同一周期各发一条。
func (s *Service) dispatchNotifications(ctx context.Context, rec model.TrackedProduct, mp extract.Marketplace, reading extract.Reading, decision Decision) error {
	email := "unknown"
	user, err := s.store.GetUser(ctx, rec.UserID)
	if err != nil {
		// 用户缺失不阻止通知：邮箱回退到哨兵值。
		s.logger.Warn("user lookup failed, using sentinel email",
			slog.String("user_id", rec.UserID),
			slog.String("error", err.Error()))
	} else if user.Email != "" {
		email = user.Email
	}

	if decision.PriceDropped {
		ev := notify.Event{
			Kind:        notify.KindPriceDrop,
			Marketplace: string(mp),
			ProductURL:  rec.ProductURL,
			PrevPrice:   rec.LastPrice,
			NewPrice:    *reading.Price,
			UserID:      rec.UserID,
			UserEmail:   email,
		}
		if err := s.notifier.Notify(ctx, ev); err != nil {
			return fmt.Errorf("notify price drop: %w", err)
		}
	}

	if decision.Restocked {
		ev := notify.Event{
			Kind:        notify.KindRestock,
			Marketplace: string(mp),
			ProductURL:  rec.ProductURL,
			NewPrice:    *reading.Price,
			UserID:      rec.UserID,
			UserEmail:   email,
		}
		if err := s.notifier.Notify(ctx, ev); err != nil {
			return fmt.Errorf("notify restock: %w", err)
		}
	}

	return nil
}
