package extract

import "regexp"

// Amazon 商品页的提取规则。
//
// Amazon 把价格埋在多处：数据 blob 里的 priceAmount 数值字段最可靠，
// 其次是购买框列表项的 displayPrice 展示价，最后才在摘要文本里
// 搜索 "One-time purchase:"。三级回退按序尝试，结构化信号优先。
type Amazon struct{}

var (
	// JSON 键区分大小写，关键词检查不区分。
	amazonPriceAmountRe = regexp.MustCompile(`"priceAmount"\s*:\s*([0-9]+(?:\.[0-9]+)?)`)
	amazonDisplayRe     = regexp.MustCompile(`"displayPrice"\s*:\s*"([^"]+)"`)
	amazonSummaryRe     = regexp.MustCompile(`(?i)summary[\s\S]{0,400}?one-time purchase:\s*([^<\n]+)`)
)

// Extract 解析 Amazon 商品页内容。
func (Amazon) Extract(content string) Reading {
	return Reading{
		Price: firstPrice(content, amazonPriceChain),
		Stock: amazonStock(content),
	}
}

var amazonPriceChain = []priceAttempt{
	{name: "price_amount", fn: amazonPriceAmount},
	{name: "display_price", fn: amazonDisplayPrice},
	{name: "summary_text", fn: amazonSummaryPrice},
}

// amazonPriceAmount 读取数据 blob 中的 priceAmount 数值字段。
func amazonPriceAmount(content string) *float64 {
	m := amazonPriceAmountRe.FindStringSubmatch(content)
	if m == nil {
		return nil
	}
	return cleanMoney(m[1])
}

// amazonDisplayPrice 读取购买框列表项携带的格式化展示价，
// 如 "IDR 501,282.85"。
func amazonDisplayPrice(content string) *float64 {
	m := amazonDisplayRe.FindStringSubmatch(content)
	if m == nil {
		return nil
	}
	return cleanMoney(m[1])
}

// amazonSummaryPrice 在摘要附近的限定窗口内搜索
// "One-time purchase: <text>" 自由文本。
func amazonSummaryPrice(content string) *float64 {
	m := amazonSummaryRe.FindStringSubmatch(content)
	if m == nil {
		return nil
	}
	return cleanMoney(m[1])
}

// amazonStock 从页面文案判定库存。
func amazonStock(content string) Stock {
	if containsFold(content, "In Stock") {
		return StockInStock
	}
	if containsFold(content, "Currently unavailable") {
		return StockOutOfStock
	}
	return StockUnknown
}
