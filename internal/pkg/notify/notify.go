package notify

import "context"

// Kind 是通知事件类型。
type Kind string

const (
	KindPriceDrop Kind = "price_drop" // 新价格严格低于上次落库价格
	KindRestock   Kind = "restock"    // 库存从无货变为有货
)

// Event 描述一次要通知用户的商品变更。
type Event struct {
	Kind        Kind
	Marketplace string
	ProductURL  string
	PrevPrice   *float64 // 降价事件的旧价格；nil 表示从未观测到
	NewPrice    float64
	UserID      string
	UserEmail   string
}

// Notifier 定义通知接口。
//
// 对应事件类型没有配置投递地址时，实现应静默跳过并返回 nil。
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}
