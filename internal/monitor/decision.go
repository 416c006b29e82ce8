package monitor

import "github.com/Roosevelttt/ecommerce-tracker-scraper/internal/extract"

// State 是上一周期落库的观测状态。
type State struct {
	LastPrice   *float64 // nil 表示从未成功抓取过价格
	LastInStock bool
}

// Decision 是一次变更判定的结果，算出后立即被编排器消费。
type Decision struct {
	NowInStock   bool // 本周期要落库的库存状态
	PriceDropped bool
	Restocked    bool
}

// Decide 根据上一状态和新 Reading 计算通知判定与下一个落库库存值。
//
// 纯函数：不做 I/O、不改状态，相同输入永远得到相同输出。
// 库存为 unknown 时沿用上一周期的 LastInStock，绝不回退到默认值。
// 价格为 nil 的 Reading 不应该走到这里——编排器整条跳过该商品。
func Decide(prev State, r extract.Reading) Decision {
	nowInStock := prev.LastInStock
	switch r.Stock {
	case extract.StockInStock:
		nowInStock = true
	case extract.StockOutOfStock:
		nowInStock = false
	}

	priceDropped := prev.LastPrice != nil && r.Price != nil && *r.Price < *prev.LastPrice
	restocked := !prev.LastInStock && nowInStock

	return Decision{
		NowInStock:   nowInStock,
		PriceDropped: priceDropped,
		Restocked:    restocked,
	}
}
