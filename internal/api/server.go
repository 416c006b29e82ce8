// Package api 提供监控系统的管理 HTTP 接口。
//
// 接口面向运维：健康检查、手动触发扫描、商品的增查。通知内容与
// 变化判定完全由扫描端负责，这里只操作商品集合和任务队列。
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/api/middleware"
	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/config"
	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/extract"
	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/model"
)

// ProductStore 是管理接口需要的商品存储能力。
type ProductStore interface {
	ScanProducts(ctx context.Context, cursor string, limit int) ([]model.TrackedProduct, string, error)
	CreateProduct(ctx context.Context, p *model.TrackedProduct) error
	CountProducts(ctx context.Context) (int64, error)
}

// ScanTrigger 手动触发一次全量扫描。
type ScanTrigger interface {
	Trigger(ctx context.Context) (string, error)
}

// Server 封装管理接口的依赖与路由。
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    ProductStore
	rdb      *redis.Client
	trigger  ScanTrigger
	registry *extract.Registry
	router   *gin.Engine
	pinger   func(ctx context.Context) error
}

// NewServer 创建管理接口服务器。
//
// pinger 是数据库连通性探测，healthz 用；rdb 可为 nil（此时
// healthz 跳过 Redis 检查）。
func NewServer(cfg *config.Config, logger *slog.Logger, store ProductStore, rdb *redis.Client, trigger ScanTrigger, pinger func(ctx context.Context) error) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		rdb:      rdb,
		trigger:  trigger,
		registry: extract.NewRegistry(),
		router:   r,
		pinger:   pinger,
	}
	s.registerRoutes()
	return s
}

// Run 启动 HTTP 服务器并开始监听请求。
func (s *Server) Run() error {
	s.logger.Info("admin api listening", slog.String("addr", s.cfg.App.HTTPAddr))
	return s.router.Run(s.cfg.App.HTTPAddr)
}

// Router 返回 HTTP 路由处理器，测试和外部 http.Server 用。
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/healthz", s.handleHealthz)

	api := s.router.Group("/api")
	api.POST("/scan", s.handleTriggerScan)
	api.GET("/products", s.handleListProducts)
	api.POST("/products", s.handleCreateProduct)
	api.GET("/stats", s.handleStats)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.pinger != nil {
		if err := s.pinger(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "component": "mysql"})
			return
		}
	}
	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "component": "redis"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleTriggerScan 手动触发一次全量扫描。
//
// POST /api/scan
func (s *Server) handleTriggerScan(c *gin.Context) {
	if s.trigger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler is not available"})
		return
	}
	taskID, err := s.trigger.Trigger(c.Request.Context())
	if err != nil {
		s.logger.Error("trigger scan failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "trigger scan failed"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": taskID})
}

// productResponse 商品列表接口的返回结构。
type productResponse struct {
	ProductURL  string   `json:"product_url"`
	UserID      string   `json:"user_id"`
	Marketplace string   `json:"marketplace"`
	LastPrice   *float64 `json:"last_price"`
	InStock     bool     `json:"in_stock"`
	UpdatedAt   string   `json:"updated_at"`
}

// handleListProducts 按游标分页返回商品列表。
//
// GET /api/products?cursor=&limit=20
func (s *Server) handleListProducts(c *gin.Context) {
	limit := parseQueryInt(c, "limit", 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	cursor := c.Query("cursor")

	products, nextCursor, err := s.store.ScanProducts(c.Request.Context(), cursor, limit)
	if err != nil {
		s.logger.Error("list products failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list products failed"})
		return
	}

	items := make([]productResponse, 0, len(products))
	for _, p := range products {
		mp, _, lookupErr := s.registry.Lookup(p.ProductURL)
		marketplace := string(mp)
		if lookupErr != nil {
			marketplace = "unknown"
		}
		updatedAt := ""
		if !p.UpdatedAt.IsZero() {
			updatedAt = p.UpdatedAt.UTC().Format(time.RFC3339)
		}
		items = append(items, productResponse{
			ProductURL:  p.ProductURL,
			UserID:      p.UserID,
			Marketplace: marketplace,
			LastPrice:   p.LastPrice,
			InStock:     p.InStock,
			UpdatedAt:   updatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"items": items, "next_cursor": nextCursor})
}

// createProductRequest 登记商品的请求参数。
type createProductRequest struct {
	ProductURL string `json:"product_url" binding:"required"`
	UserID     string `json:"user_id" binding:"required"`
}

// handleCreateProduct 登记一个新的被跟踪商品。
//
// POST /api/products
func (s *Server) handleCreateProduct(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	productURL := strings.TrimSpace(req.ProductURL)
	mp, _, err := s.registry.Lookup(productURL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported marketplace"})
		return
	}

	p := &model.TrackedProduct{
		ProductURL: productURL,
		UserID:     strings.TrimSpace(req.UserID),
	}
	if err := s.store.CreateProduct(c.Request.Context(), p); err != nil {
		s.logger.Error("create product failed",
			slog.String("product_url", productURL),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create product failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"product_url": productURL,
		"marketplace": string(mp),
	})
}

// handleStats 返回集合规模，给运维面板用。
//
// GET /api/stats
func (s *Server) handleStats(c *gin.Context) {
	count, err := s.store.CountProducts(c.Request.Context())
	if err != nil {
		s.logger.Error("count products failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count products failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tracked_products": count})
}

func parseQueryInt(c *gin.Context, key string, def int) int {
	val := c.Query(key)
	if val == "" {
		return def
	}
	iv, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return iv
}
