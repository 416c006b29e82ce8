package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Blibli 商品页的提取规则。
//
// 首选页面脚本里赋值给跟踪变量的埋点数据串（JSON），读取其中的
// pdt_price 子字段；拿不到时直接在标记里搜索 "pdt_price":"<value>"
// 原始键（兼容转义与非转义两种引号形式）。
type Blibli struct{}

var (
	blibliTrackerRe = regexp.MustCompile(`trackerData\s*=\s*'(\{[^']*\})'`)
	// 同时匹配 "pdt_price":"..." 与 \"pdt_price\":\"...\"。
	blibliRawKeyRe = regexp.MustCompile(`\\?"pdt_price\\?"\s*:\s*\\?"([^"\\]+)\\?"`)
)

// 无货文案关键词（大小写不敏感）。
var blibliOutOfStockHints = []string{
	"stok habis",
	"out of stock",
	"habis",
}

// Extract 解析 Blibli 商品页内容。
func (Blibli) Extract(content string) Reading {
	return Reading{
		Price: firstPrice(content, blibliPriceChain),
		Stock: blibliStock(content),
	}
}

var blibliPriceChain = []priceAttempt{
	{name: "tracker_data", fn: blibliTrackerPrice},
	{name: "raw_key", fn: blibliRawKeyPrice},
}

// blibliTrackerPrice 解析脚本里的埋点数据串，读取 pdt_price 字段。
func blibliTrackerPrice(content string) *float64 {
	m := blibliTrackerRe.FindStringSubmatch(content)
	if m == nil {
		return nil
	}

	var tracker map[string]any
	if err := json.Unmarshal([]byte(m[1]), &tracker); err != nil {
		// 埋点串残缺时视为未找到，交给下一级回退。
		return nil
	}

	raw, ok := tracker["pdt_price"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		return cleanDigits(v)
	case float64:
		return ptr(v)
	default:
		return nil
	}
}

// blibliRawKeyPrice 直接在标记文本里搜索 pdt_price 键。
func blibliRawKeyPrice(content string) *float64 {
	m := blibliRawKeyRe.FindStringSubmatch(content)
	if m == nil {
		return nil
	}
	return cleanDigits(m[1])
}

// blibliStock 从无货文案或 schema.org 标记判定库存。
func blibliStock(content string) Stock {
	for _, hint := range blibliOutOfStockHints {
		if containsFold(content, hint) {
			return StockOutOfStock
		}
	}
	if strings.Contains(content, "schema.org/InStock") {
		return StockInStock
	}
	return StockUnknown
}
