package extract

import (
	"math"
	"regexp"
	"strconv"
)

// Tokopedia 商品页的提取规则。
//
// 首选内容里任意位置出现的 price=<number> 查询参数（取整到整数卢比），
// 回退到可见文本里 Rp 前缀、点号分组的价格串。
type Tokopedia struct{}

var (
	tokopediaParamRe   = regexp.MustCompile(`price=([0-9]+(?:\.[0-9]+)?)`)
	tokopediaVisibleRe = regexp.MustCompile(`Rp\s*([0-9]{1,3}(?:\.[0-9]{3})+|[0-9]+)`)
	tokopediaStokRe    = regexp.MustCompile(`(?i)stok\s*:\s*([0-9]+)`)
)

// 无货文案关键词（大小写不敏感）。
var tokopediaOutOfStockHints = []string{
	"stok habis",
	"sold out",
	"habis",
}

// Extract 解析 Tokopedia 商品页内容。
func (Tokopedia) Extract(content string) Reading {
	return Reading{
		Price: firstPrice(content, tokopediaPriceChain),
		Stock: tokopediaStock(content),
	}
}

var tokopediaPriceChain = []priceAttempt{
	{name: "url_param", fn: tokopediaParamPrice},
	{name: "visible_text", fn: tokopediaVisiblePrice},
}

// tokopediaParamPrice 读取 price=<number> 查询参数，四舍五入到整数。
func tokopediaParamPrice(content string) *float64 {
	m := tokopediaParamRe.FindStringSubmatch(content)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return ptr(math.Round(v))
}

// tokopediaVisiblePrice 读取 "Rp30.999.000" 形式的展示价，
// 去掉分组点号后按整数解析。
func tokopediaVisiblePrice(content string) *float64 {
	m := tokopediaVisibleRe.FindStringSubmatch(content)
	if m == nil {
		return nil
	}
	return cleanDigits(m[1])
}

// tokopediaStock 从库存数量或无货文案判定库存。
//
// "Stok: <N>" 数量信号优先：N > 0 才算有货。没有数量信号时
// 检查无货关键词，两者都没有则为 unknown。
func tokopediaStock(content string) Stock {
	if m := tokopediaStokRe.FindStringSubmatch(content); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			if n > 0 {
				return StockInStock
			}
			return StockOutOfStock
		}
	}
	for _, hint := range tokopediaOutOfStockHints {
		if containsFold(content, hint) {
			return StockOutOfStock
		}
	}
	return StockUnknown
}
