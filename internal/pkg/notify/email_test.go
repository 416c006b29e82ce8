package notify

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/config"
)

func fptr(v float64) *float64 { return &v }

func TestBuildSubject(t *testing.T) {
	tests := []struct {
		name     string
		ev       Event
		expected string
	}{
		{"price_drop", Event{Kind: KindPriceDrop, Marketplace: "amazon"}, "[Price Tracker] Harga Turun - amazon"},
		{"restock", Event{Kind: KindRestock, Marketplace: "tokopedia"}, "[Price Tracker] Stok Tersedia - tokopedia"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildSubject(tt.ev); got != tt.expected {
				t.Fatalf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestBuildBody_PriceDrop(t *testing.T) {
	body := buildBody(Event{
		Kind:       KindPriceDrop,
		ProductURL: "https://www.tokopedia.com/shop/item",
		PrevPrice:  fptr(600000),
		NewPrice:   501282.85,
		UserID:     "u-1",
		UserEmail:  "user@example.com",
	})

	for _, want := range []string{
		"Harga produk yang Anda pantau baru saja turun!",
		"Produk: https://www.tokopedia.com/shop/item",
		"Harga sebelumnya: 600000",
		"Harga sekarang: 501282.85",
		"User: u-1 (user@example.com)",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}
}

// 没有历史价格时旧价格显示为 "unknown"。
func TestBuildBody_PriceDropWithoutPrevPrice(t *testing.T) {
	body := buildBody(Event{
		Kind:       KindPriceDrop,
		ProductURL: "https://example.invalid/p",
		NewPrice:   100,
	})
	if !strings.Contains(body, "Harga sebelumnya: unknown") {
		t.Fatalf("expected unknown previous price:\n%s", body)
	}
}

func TestBuildBody_Restock(t *testing.T) {
	body := buildBody(Event{
		Kind:       KindRestock,
		ProductURL: "https://www.blibli.com/p/item",
		UserID:     "u-2",
		UserEmail:  "dua@example.com",
	})
	if !strings.Contains(body, "tersedia kembali") {
		t.Fatalf("unexpected restock body:\n%s", body)
	}
	if strings.Contains(body, "Harga") {
		t.Fatalf("restock body should not mention price:\n%s", body)
	}
}

// TestNotify_MissingDestinationIsSilent 未配置投递地址时静默跳过且不报错。
func TestNotify_MissingDestinationIsSilent(t *testing.T) {
	n := NewEmailNotifier(&config.EmailConfig{
		SMTPHost:  "smtp.example.com",
		FromEmail: "tracker@example.com",
		// PriceDropTo / RestockTo 留空
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := n.Notify(context.Background(), Event{Kind: KindPriceDrop, Marketplace: "amazon"})
	if err != nil {
		t.Fatalf("expected silent skip, got %v", err)
	}
	err = n.Notify(context.Background(), Event{Kind: KindRestock, Marketplace: "amazon"})
	if err != nil {
		t.Fatalf("expected silent skip, got %v", err)
	}
}
