package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/config"
	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/pkg/metrics"

	"gopkg.in/gomail.v2"
)

// EmailNotifier 通过邮件投递变更通知。
//
// 降价与补货使用各自独立的投递地址；地址为空时静默关闭该类事件，
// 不算错误。
type EmailNotifier struct {
	cfg    *config.EmailConfig
	logger *slog.Logger
}

// NewEmailNotifier 创建邮件通知器。
func NewEmailNotifier(cfg *config.EmailConfig, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		logger: logger,
	}
}

// Notify 发送一条通知邮件。
func (n *EmailNotifier) Notify(ctx context.Context, ev Event) error {
	dest := n.destination(ev.Kind)
	if strings.TrimSpace(dest) == "" {
		// 未配置投递地址：按设计静默跳过。
		metrics.NotificationsSkippedTotal.WithLabelValues(string(ev.Kind)).Inc()
		n.logger.Debug("notification destination not configured, skip",
			slog.String("kind", string(ev.Kind)))
		return nil
	}
	if n.cfg.SMTPHost == "" || n.cfg.FromEmail == "" {
		n.logger.Warn("email config missing, skip notification",
			slog.String("kind", string(ev.Kind)))
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", dest)
	m.SetHeader("Subject", buildSubject(ev))
	m.SetBody("text/plain", buildBody(ev))

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	metrics.NotificationsSentTotal.WithLabelValues(string(ev.Kind)).Inc()
	n.logger.Info("notification sent",
		slog.String("kind", string(ev.Kind)),
		slog.String("to", dest),
		slog.String("product_url", ev.ProductURL))
	return nil
}

func (n *EmailNotifier) destination(kind Kind) string {
	switch kind {
	case KindPriceDrop:
		return n.cfg.PriceDropTo
	case KindRestock:
		return n.cfg.RestockTo
	default:
		return ""
	}
}

// buildSubject 构造标明事件类型与站点的固定主题。
func buildSubject(ev Event) string {
	switch ev.Kind {
	case KindPriceDrop:
		return fmt.Sprintf("[Price Tracker] Harga Turun - %s", ev.Marketplace)
	case KindRestock:
		return fmt.Sprintf("[Price Tracker] Stok Tersedia - %s", ev.Marketplace)
	default:
		return fmt.Sprintf("[Price Tracker] %s - %s", ev.Kind, ev.Marketplace)
	}
}

// buildBody 构造纯文本的印尼语通知正文。
func buildBody(ev Event) string {
	switch ev.Kind {
	case KindPriceDrop:
		prev := "unknown"
		if ev.PrevPrice != nil {
			prev = formatPrice(*ev.PrevPrice)
		}
		return fmt.Sprintf(
			"Harga produk yang Anda pantau baru saja turun!\n\n"+
				"Produk: %s\n"+
				"Harga sebelumnya: %s\n"+
				"Harga sekarang: %s\n\n"+
				"User: %s (%s)\n",
			ev.ProductURL, prev, formatPrice(ev.NewPrice), ev.UserID, ev.UserEmail)
	case KindRestock:
		return fmt.Sprintf(
			"Produk yang Anda pantau tersedia kembali!\n\n"+
				"Produk: %s\n\n"+
				"User: %s (%s)\n",
			ev.ProductURL, ev.UserID, ev.UserEmail)
	default:
		return fmt.Sprintf("Produk: %s\nUser: %s (%s)\n", ev.ProductURL, ev.UserID, ev.UserEmail)
	}
}

// formatPrice 输出不带多余小数位的价格文本。
func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
