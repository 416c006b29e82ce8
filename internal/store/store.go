// Package store 封装商品与用户记录的持久化访问。
//
// 核心流程只通过这里的方法读写外部存储：分页扫描商品集合、
// 按键读用户、按键更新商品观测状态。
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// ErrUserNotFound 表示用户记录不存在。
var ErrUserNotFound = errors.New("user not found")

// Store 是 MySQL 后端的存储访问层。
//
// 表名来自配置：商品表和用户表的标识缺失在启动时就是致命错误，
// 这里拿到的一定是非空值。
type Store struct {
	db            *gorm.DB
	productsTable string
	usersTable    string
}

// Open 建立数据库连接并初始化表结构。
func Open(dsn, productsTable, usersTable string) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent), // 关闭 GORM 调试日志
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	if err := db.Table(productsTable).AutoMigrate(&model.TrackedProduct{}); err != nil {
		return nil, fmt.Errorf("migrate products table: %w", err)
	}
	if err := db.Table(usersTable).AutoMigrate(&model.User{}); err != nil {
		return nil, fmt.Errorf("migrate users table: %w", err)
	}

	return New(db, productsTable, usersTable), nil
}

// New 从现有 gorm.DB 创建 Store（测试或外部管理连接时使用）。
func New(db *gorm.DB, productsTable, usersTable string) *Store {
	return &Store{
		db:            db,
		productsTable: productsTable,
		usersTable:    usersTable,
	}
}

// ScanProducts 按游标分页扫描商品集合。
//
// cursor 为空表示从头开始；返回的 nextCursor 为空表示已到集合末尾。
// 游标就是上一页最后一条记录的 product_url，按主键有序遍历保证
// 任意页数下的全量覆盖。
func (s *Store) ScanProducts(ctx context.Context, cursor string, limit int) ([]model.TrackedProduct, string, error) {
	if limit <= 0 {
		limit = 50
	}

	q := s.db.WithContext(ctx).Table(s.productsTable).Order("product_url ASC").Limit(limit)
	if cursor != "" {
		q = q.Where("product_url > ?", cursor)
	}

	var products []model.TrackedProduct
	if err := q.Find(&products).Error; err != nil {
		return nil, "", fmt.Errorf("scan products: %w", err)
	}

	nextCursor := ""
	if len(products) == limit {
		nextCursor = products[len(products)-1].ProductURL
	}
	return products, nextCursor, nil
}

// GetUser 按用户 ID 查询通知接收人。
func (s *Store) GetUser(ctx context.Context, userID string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Table(s.usersTable).Where("user_id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// UpdateProduct 按商品 URL 回写本周期的观测状态。
//
// updated_at 由调用方给定，每个成功处理的周期都会前进，
// 与是否触发通知无关。
func (s *Store) UpdateProduct(ctx context.Context, productURL string, price float64, inStock bool, updatedAt time.Time) error {
	err := s.db.WithContext(ctx).Table(s.productsTable).
		Where("product_url = ?", productURL).
		Updates(map[string]any{
			"last_price": price,
			"in_stock":   inStock,
			"updated_at": updatedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

// CreateProduct 登记一个新的追踪商品（admin API 使用）。
func (s *Store) CreateProduct(ctx context.Context, p *model.TrackedProduct) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	if err := s.db.WithContext(ctx).Table(s.productsTable).Create(p).Error; err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

// CountProducts 返回追踪商品总数（admin API 使用）。
func (s *Store) CountProducts(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Table(s.productsTable).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

// Ping 探测数据库连通性，healthz 使用。
func (s *Store) Ping(ctx context.Context) error {
	var one int
	return s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error
}

// Close 关闭底层数据库连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
