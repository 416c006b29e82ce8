// Package fetch 提供商品页面抓取器。
//
// HTTPFetcher 直接走 HTTP 请求；BrowserFetcher 通过无头浏览器渲染后
// 取页面 HTML，用于价格在客户端渲染的站点。两者都把整页内容作为
// 字符串交给提取器，自己不做任何解析。
package fetch

import "context"

// Fetcher 抓取一个商品页面并返回原始内容。
//
// 实现必须遵守 ctx 的超时：超时按抓取失败处理，由调用方决定重试策略。
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}
