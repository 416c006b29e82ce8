package extract

import "testing"

func TestTokopedia_PriceFallbackChain(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected float64
		isNil    bool
	}{
		{
			name:     "url_param_integer",
			content:  `https://www.tokopedia.com/shop/item?price=150000&src=search`,
			expected: 150000,
		},
		{
			name:     "url_param_rounded",
			content:  `"link":"/item?price=30999000.75"`,
			expected: 30999001,
		},
		{
			name:     "visible_dot_grouped",
			content:  `<div class="price">Rp30.999.000</div>`,
			expected: 30999000,
		},
		{
			name:     "visible_with_space",
			content:  `harga mulai Rp 1.500.000 per unit`,
			expected: 1500000,
		},
		{
			name:     "param_wins_over_visible",
			content:  `price=200000 dan tampilan Rp30.999.000`,
			expected: 200000,
		},
		{
			name:     "plain_rp_integer",
			content:  `Rp500`,
			expected: 500,
		},
		{
			name:    "no_price_signal",
			content: `<div>halaman produk</div>`,
			isNil:   true,
		},
		{
			name:    "empty_content",
			content: ``,
			isNil:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Tokopedia{}.Extract(tt.content)
			if tt.isNil {
				if r.Price != nil {
					t.Fatalf("expected nil price, got %v", *r.Price)
				}
				return
			}
			if r.Price == nil {
				t.Fatalf("expected price %v, got nil", tt.expected)
			}
			if *r.Price != tt.expected {
				t.Fatalf("expected price %v, got %v", tt.expected, *r.Price)
			}
		})
	}
}

func TestTokopedia_Stock(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected Stock
	}{
		{"quantity_positive", `Stok: 30`, StockInStock},
		{"quantity_case_insensitive", `STOK: 5`, StockInStock},
		{"quantity_zero", `Stok: 0`, StockOutOfStock},
		{"stok_habis", `<span>Stok habis</span>`, StockOutOfStock},
		{"sold_out", `SOLD OUT`, StockOutOfStock},
		{"habis_keyword", `barang sudah habis`, StockOutOfStock},
		{"quantity_wins_over_keyword", `Stok: 12 sisa, jangan sampai habis`, StockInStock},
		{"no_signal", `deskripsi produk`, StockUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Tokopedia{}.Extract(tt.content)
			if r.Stock != tt.expected {
				t.Fatalf("expected stock %v, got %v", tt.expected, r.Stock)
			}
		})
	}
}
