package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "tracker-test" {
			t.Errorf("unexpected user agent: %q", ua)
		}
		w.Write([]byte(`<html>Rp30.999.000</html>`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(5*time.Second, "tracker-test")
	body, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !strings.Contains(body, "Rp30.999.000") {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestHTTPFetcher_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(5*time.Second, "")
	if _, err := f.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected error for 503 response")
	}
}

func TestHTTPFetcher_ContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(5*time.Second, "")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := f.Fetch(ctx, srv.URL); err == nil {
		t.Fatalf("expected timeout error")
	}
}
