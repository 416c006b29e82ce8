package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/config"
	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/model"
	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/pkg/notify"
)

// ==================== 测试假对象 ====================

type recordedUpdate struct {
	Price     float64
	InStock   bool
	UpdatedAt time.Time
}

type fakeStore struct {
	mu       sync.Mutex
	products []model.TrackedProduct
	users    map[string]*model.User
	updates  map[string]recordedUpdate
	scans    int
	scanErr  error
}

func newFakeStore(products ...model.TrackedProduct) *fakeStore {
	sort.Slice(products, func(i, j int) bool {
		return products[i].ProductURL < products[j].ProductURL
	})
	return &fakeStore{
		products: products,
		users:    make(map[string]*model.User),
		updates:  make(map[string]recordedUpdate),
	}
}

func (f *fakeStore) ScanProducts(ctx context.Context, cursor string, limit int) ([]model.TrackedProduct, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans++
	if f.scanErr != nil {
		return nil, "", f.scanErr
	}

	var page []model.TrackedProduct
	for _, p := range f.products {
		if p.ProductURL > cursor {
			page = append(page, p)
			if len(page) == limit {
				break
			}
		}
	}
	next := ""
	if len(page) == limit {
		next = page[len(page)-1].ProductURL
	}
	return page, next, nil
}

func (f *fakeStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s not found", userID)
	}
	return u, nil
}

func (f *fakeStore) UpdateProduct(ctx context.Context, productURL string, price float64, inStock bool, updatedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[productURL] = recordedUpdate{Price: price, InStock: inStock, UpdatedAt: updatedAt}
	return nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	errs  map[string]error
}

func (f *fakeFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[pageURL]; ok {
		return "", err
	}
	return f.pages[pageURL], nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (f *fakeNotifier) Notify(ctx context.Context, ev notify.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeNotifier) sent() []notify.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]notify.Event, len(f.events))
	copy(out, f.events)
	return out
}

type denyLocker struct {
	mu     sync.Mutex
	denied map[string]bool
}

func (d *denyLocker) TryAcquire(ctx context.Context, productURL string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.denied[productURL], nil
}

func (d *denyLocker) Release(ctx context.Context, productURL string) error { return nil }

// ==================== 工具 ====================

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Env:            "test",
			ScanPageSize:   2,
			WorkerPoolSize: 2,
			ProductsTable:  "tracked_products",
			UsersTable:     "users",
		},
		Fetch: config.FetchConfig{Timeout: time.Second, Mode: "http"},
	}
}

func newTestService(store *fakeStore, fetcher *fakeFetcher, notifier *fakeNotifier) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewService(testConfig(), logger, store, fetcher, notifier, nil, nil)
	s.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

const amazonPage = `<div>"priceAmount":501282.85,"displayPrice":"IDR 501,282.85"</div><span>In Stock</span>`

// ==================== 用例 ====================

func TestRunPass_PriceDropEndToEnd(t *testing.T) {
	store := newFakeStore(model.TrackedProduct{
		ProductURL: "https://www.amazon.com/dp/B0TEST",
		UserID:     "u-1",
		LastPrice:  fptr(600000),
		InStock:    true,
	})
	store.users["u-1"] = &model.User{UserID: "u-1", Email: "budi@example.com"}
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://www.amazon.com/dp/B0TEST": amazonPage,
	}}
	notifier := &fakeNotifier{}
	s := newTestService(store, fetcher, notifier)

	processed, err := s.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if processed != 1 {
		t.Fatalf("processed = %d, want 1", processed)
	}

	up, ok := store.updates["https://www.amazon.com/dp/B0TEST"]
	if !ok {
		t.Fatal("product state was not persisted")
	}
	if up.Price != 501282.85 {
		t.Errorf("persisted price = %v, want 501282.85", up.Price)
	}
	if !up.InStock {
		t.Error("persisted in_stock = false, want true")
	}
	if !up.UpdatedAt.Equal(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("updated_at = %v, want injected clock value", up.UpdatedAt)
	}

	events := notifier.sent()
	if len(events) != 1 {
		t.Fatalf("got %d notifications, want 1", len(events))
	}
	ev := events[0]
	if ev.Kind != notify.KindPriceDrop {
		t.Errorf("event kind = %s, want %s", ev.Kind, notify.KindPriceDrop)
	}
	if ev.UserEmail != "budi@example.com" {
		t.Errorf("event email = %s, want budi@example.com", ev.UserEmail)
	}
	if ev.PrevPrice == nil || *ev.PrevPrice != 600000 {
		t.Errorf("event prev price = %v, want 600000", ev.PrevPrice)
	}
	if ev.NewPrice != 501282.85 {
		t.Errorf("event new price = %v, want 501282.85", ev.NewPrice)
	}
}

func TestRunPass_RestockOnly(t *testing.T) {
	store := newFakeStore(model.TrackedProduct{
		ProductURL: "https://www.tokopedia.com/toko/produk-a",
		UserID:     "u-1",
		LastPrice:  fptr(150000),
		InStock:    false,
	})
	store.users["u-1"] = &model.User{UserID: "u-1", Email: "sari@example.com"}
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://www.tokopedia.com/toko/produk-a": `<span>Rp 150.000</span><div>Stok: 7</div>`,
	}}
	notifier := &fakeNotifier{}
	s := newTestService(store, fetcher, notifier)

	if _, err := s.RunPass(context.Background()); err != nil {
		t.Fatalf("RunPass: %v", err)
	}

	events := notifier.sent()
	if len(events) != 1 {
		t.Fatalf("got %d notifications, want 1", len(events))
	}
	if events[0].Kind != notify.KindRestock {
		t.Errorf("event kind = %s, want %s", events[0].Kind, notify.KindRestock)
	}
	if up := store.updates["https://www.tokopedia.com/toko/produk-a"]; !up.InStock {
		t.Error("persisted in_stock = false, want true after restock")
	}
}

func TestRunPass_NullPriceSkipsItem(t *testing.T) {
	store := newFakeStore(model.TrackedProduct{
		ProductURL: "https://www.amazon.com/dp/B0MISS",
		UserID:     "u-1",
		LastPrice:  fptr(100),
		InStock:    true,
	})
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://www.amazon.com/dp/B0MISS": `<div>no price markers here</div><span>In Stock</span>`,
	}}
	notifier := &fakeNotifier{}
	s := newTestService(store, fetcher, notifier)

	processed, err := s.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if processed != 0 {
		t.Fatalf("processed = %d, want 0", processed)
	}
	if len(store.updates) != 0 {
		t.Error("item without a price must not be persisted")
	}
	if len(notifier.sent()) != 0 {
		t.Error("item without a price must not notify")
	}
}

func TestRunPass_NotifyFailureSuppressesPersist(t *testing.T) {
	store := newFakeStore(model.TrackedProduct{
		ProductURL: "https://www.amazon.com/dp/B0TEST",
		UserID:     "u-1",
		LastPrice:  fptr(600000),
		InStock:    true,
	})
	store.users["u-1"] = &model.User{UserID: "u-1", Email: "budi@example.com"}
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://www.amazon.com/dp/B0TEST": amazonPage,
	}}
	notifier := &fakeNotifier{err: errors.New("smtp unreachable")}
	s := newTestService(store, fetcher, notifier)

	processed, err := s.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if processed != 0 {
		t.Fatalf("processed = %d, want 0 when notification fails", processed)
	}
	if len(store.updates) != 0 {
		t.Error("failed notification must suppress persistence for the item")
	}
}

func TestRunPass_MissingUserUsesSentinelEmail(t *testing.T) {
	store := newFakeStore(model.TrackedProduct{
		ProductURL: "https://www.amazon.com/dp/B0TEST",
		UserID:     "ghost",
		LastPrice:  fptr(600000),
		InStock:    true,
	})
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://www.amazon.com/dp/B0TEST": amazonPage,
	}}
	notifier := &fakeNotifier{}
	s := newTestService(store, fetcher, notifier)

	if _, err := s.RunPass(context.Background()); err != nil {
		t.Fatalf("RunPass: %v", err)
	}

	events := notifier.sent()
	if len(events) != 1 {
		t.Fatalf("got %d notifications, want 1", len(events))
	}
	if events[0].UserEmail != "unknown" {
		t.Errorf("event email = %q, want sentinel \"unknown\"", events[0].UserEmail)
	}
	if len(store.updates) != 1 {
		t.Error("missing user must not block persistence")
	}
}

func TestRunPass_PerItemErrorsAreIsolated(t *testing.T) {
	store := newFakeStore(
		model.TrackedProduct{ProductURL: "https://www.amazon.com/dp/B0BROKEN", UserID: "u-1", InStock: true},
		model.TrackedProduct{ProductURL: "https://www.amazon.com/dp/B0GOOD", UserID: "u-1", InStock: true},
		model.TrackedProduct{ProductURL: "https://www.example.com/not-a-marketplace", UserID: "u-1"},
		model.TrackedProduct{ProductURL: "https://www.tokopedia.com/toko/no-owner", UserID: ""},
	)
	fetcher := &fakeFetcher{
		pages: map[string]string{
			"https://www.amazon.com/dp/B0GOOD": amazonPage,
		},
		errs: map[string]error{
			"https://www.amazon.com/dp/B0BROKEN": errors.New("connection reset"),
		},
	}
	notifier := &fakeNotifier{}
	s := newTestService(store, fetcher, notifier)

	processed, err := s.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if processed != 1 {
		t.Fatalf("processed = %d, want 1 (only the healthy item)", processed)
	}
	if _, ok := store.updates["https://www.amazon.com/dp/B0GOOD"]; !ok {
		t.Error("healthy item must still be persisted")
	}
	if len(store.updates) != 1 {
		t.Errorf("got %d persisted items, want 1", len(store.updates))
	}
}

func TestRunPass_PaginationCoversAllProducts(t *testing.T) {
	var products []model.TrackedProduct
	pages := make(map[string]string)
	for i := 0; i < 5; i++ {
		u := fmt.Sprintf("https://www.tokopedia.com/toko/produk-%d", i)
		products = append(products, model.TrackedProduct{ProductURL: u, UserID: "u-1", InStock: true})
		pages[u] = `<span>Rp 99.000</span><div>Stok: 3</div>`
	}
	store := newFakeStore(products...)
	store.users["u-1"] = &model.User{UserID: "u-1", Email: "x@example.com"}
	fetcher := &fakeFetcher{pages: pages}
	notifier := &fakeNotifier{}
	s := newTestService(store, fetcher, notifier)

	processed, err := s.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if processed != 5 {
		t.Fatalf("processed = %d, want 5", processed)
	}
	if len(store.updates) != 5 {
		t.Errorf("persisted %d items, want 5", len(store.updates))
	}
	// 页大小 2，5 条记录要扫 3 页。
	if store.scans != 3 {
		t.Errorf("scan calls = %d, want 3", store.scans)
	}
}

func TestRunPass_ScanErrorAbortsPass(t *testing.T) {
	store := newFakeStore()
	store.scanErr = errors.New("db gone")
	s := newTestService(store, &fakeFetcher{}, &fakeNotifier{})

	if _, err := s.RunPass(context.Background()); err == nil {
		t.Fatal("expected pass to fail when the product scan fails")
	}
}

func TestRunPass_LockedProductIsSkipped(t *testing.T) {
	store := newFakeStore(model.TrackedProduct{
		ProductURL: "https://www.amazon.com/dp/B0TEST",
		UserID:     "u-1",
		InStock:    true,
	})
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://www.amazon.com/dp/B0TEST": amazonPage,
	}}
	notifier := &fakeNotifier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	locker := &denyLocker{denied: map[string]bool{"https://www.amazon.com/dp/B0TEST": true}}
	s := NewService(testConfig(), logger, store, fetcher, notifier, locker, nil)

	processed, err := s.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if processed != 0 {
		t.Fatalf("processed = %d, want 0 for a locked product", processed)
	}
	if len(store.updates) != 0 {
		t.Error("locked product must not be persisted")
	}
}
