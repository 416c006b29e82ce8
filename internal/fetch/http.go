package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// 单次响应体读取上限，防止异常页面撑爆内存。
const maxBodyBytes = 4 << 20

// HTTPFetcher 通过普通 HTTP 请求抓取页面。
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher 创建 HTTP 抓取器。
//
// timeout 是单次抓取的硬上限，同时挂在 http.Client 上兜底；
// 每次 Fetch 还会叠加调用方 ctx 的超时。
func NewHTTPFetcher(timeout time.Duration, userAgent string) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		userAgent: userAgent,
	}
}

// Fetch 抓取页面并返回文本内容。
//
// 非 2xx 状态码视为抓取失败。
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch page: http status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}
