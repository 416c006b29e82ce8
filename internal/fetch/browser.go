package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/config"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

const (
	browserInitTimeout   = 30 * time.Second // 浏览器初始化超时
	stealthScriptTimeout = 5 * time.Second  // Stealth 脚本应用超时
)

// BrowserFetcher 通过无头浏览器抓取需要客户端渲染的页面。
//
// 浏览器实例只启动一次，页面按需创建并在抓取结束后关闭。
type BrowserFetcher struct {
	browser *rod.Browser
	logger  *slog.Logger
	mu      sync.Mutex
}

// NewBrowserFetcher 启动浏览器并创建抓取器。
//
// 未指定浏览器路径时自动下载默认版本。针对容器环境关闭沙箱、
// 禁用 /dev/shm 与 GPU。
func NewBrowserFetcher(ctx context.Context, cfg *config.BrowserConfig, logger *slog.Logger) (*BrowserFetcher, error) {
	bin := cfg.BinPath
	if bin == "" {
		logger.Info("no browser binary specified, downloading default...")
		path, err := launcher.NewBrowser().Get()
		if err != nil {
			return nil, fmt.Errorf("download browser: %w", err)
		}
		bin = path
	}

	l := launcher.New().
		Headless(cfg.Headless).
		Bin(bin).
		NoSandbox(true).
		Set("disable-dev-shm-usage", "true").
		Set("disable-gpu", "true")

	wsURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	// 浏览器实例不绑定调用方的 ctx，生命周期由 Close 控制；
	// 单次抓取的超时在 Fetch 里按页面粒度施加。
	browser := rod.New().ControlURL(wsURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	logger.Info("browser fetcher started", slog.String("bin", bin), slog.Bool("headless", cfg.Headless))
	return &BrowserFetcher{browser: browser, logger: logger}, nil
}

// Fetch 打开页面、等待加载完成并返回渲染后的 HTML。
func (f *BrowserFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	f.mu.Lock()
	browser := f.browser
	f.mu.Unlock()
	if browser == nil {
		return "", fmt.Errorf("browser is closed")
	}

	page, err := stealth.Page(browser.Context(ctx))
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	defer func() {
		_ = page.Close()
	}()

	if err := page.Timeout(stealthScriptTimeout).WaitStable(300 * time.Millisecond); err != nil {
		// 空白页稳定性检查失败不致命，继续导航。
		f.logger.Debug("blank page stabilize failed", slog.String("error", err.Error()))
	}

	if err := page.Context(ctx).Navigate(pageURL); err != nil {
		return "", fmt.Errorf("navigate: %w", err)
	}
	if err := page.Context(ctx).WaitLoad(); err != nil {
		return "", fmt.Errorf("wait load: %w", err)
	}

	html, err := page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return html, nil
}

// Close 关闭浏览器实例。
func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser == nil {
		return nil
	}
	err := f.browser.Close()
	f.browser = nil
	return err
}
