package model

import "time"

// TrackedProduct 表示一个被追踪的商品页面。
//
// ProductURL 是商品在源站点的页面地址，同时作为存储主键。
// LastPrice 在首次成功抓取之前为 nil；InStock 在从未观测到库存信号时默认 false。
type TrackedProduct struct {
	ProductURL string    `gorm:"column:product_url;type:varchar(512);primaryKey"` // 商品页面 URL（主键）
	UserID     string    `gorm:"column:user_id;type:varchar(64);not null"`        // 所属用户 ID
	LastPrice  *float64  `gorm:"column:last_price"`                               // 上次观测到的价格（nil 表示从未成功抓取）
	InStock    bool      `gorm:"column:in_stock;default:false"`                   // 上次观测到的库存状态
	UpdatedAt  time.Time `gorm:"column:updated_at"`                               // 每个处理周期单调前进
	CreatedAt  time.Time // 开始追踪的时间
}

// User 表示通知的接收人。
//
// 只在即将发送通知时按 UserID 查询，核心流程不依赖其余字段。
type User struct {
	UserID    string    `gorm:"column:user_id;type:varchar(64);primaryKey"` // 用户 ID（主键）
	Email     string    `gorm:"column:email;type:varchar(191)"`             // 接收通知的邮箱
	CreatedAt time.Time // 创建时间
}
