package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// Stock 是三态库存状态。
type Stock int

const (
	StockUnknown    Stock = iota // 页面上没有可用的库存信号
	StockInStock                 // 有货
	StockOutOfStock              // 无货
)

// String 返回库存状态的可读描述。
func (s Stock) String() string {
	switch s {
	case StockInStock:
		return "in_stock"
	case StockOutOfStock:
		return "out_of_stock"
	default:
		return "unknown"
	}
}

// Reading 是解析一次页面抓取得到的归一化结果。
//
// Price 为 nil 表示提取失败，而不是商品免费；Stock 为 StockUnknown
// 表示页面上没有找到可用的库存信号。Reading 从不落库，仅作为
// 变更判定的输入。
type Reading struct {
	Price *float64
	Stock Stock
}

// Extractor 把原始页面内容解析为归一化 Reading。
//
// 实现必须是纯函数：无 I/O、确定性、对残缺输入绝不 panic。
// 任何解析错误在内部吞掉并视为"字段未找到"，让后续回退策略继续。
type Extractor interface {
	Extract(content string) Reading
}

// priceAttempt 是价格回退链中的一级策略。
//
// 回退链按顺序尝试，第一个返回非 nil 的策略胜出，后续策略不再执行。
type priceAttempt struct {
	name string
	fn   func(content string) *float64
}

// firstPrice 按顺序执行回退链，短路返回第一个成功的结果。
func firstPrice(content string, attempts []priceAttempt) *float64 {
	for _, a := range attempts {
		if p := a.fn(content); p != nil {
			return p
		}
	}
	return nil
}

var moneyCleanRe = regexp.MustCompile(`[^0-9.,]`)

// cleanMoney 清洗带货币符号和千分位的价格文本并解析为数值。
//
// 先移除数字、小数点、逗号以外的所有字符，再移除作为分组符的逗号，
// 最后解析为浮点数。解析失败返回 nil，绝不向外抛错。
func cleanMoney(raw string) *float64 {
	s := moneyCleanRe.ReplaceAllString(raw, "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.Trim(s, ".")
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

var digitRe = regexp.MustCompile(`[^0-9]`)

// cleanDigits 只保留数字并解析为整数值（以 float64 表示）。
func cleanDigits(raw string) *float64 {
	s := digitRe.ReplaceAllString(raw, "")
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// containsFold 大小写不敏感的关键词检查。
func containsFold(content, keyword string) bool {
	return strings.Contains(strings.ToLower(content), strings.ToLower(keyword))
}

func ptr(v float64) *float64 {
	return &v
}
