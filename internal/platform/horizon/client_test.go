package horizon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/lumenlabs/stellarb/internal/domain"
)

const issuer = "GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVV"

func TestGetOrderBookParsesLevels(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/order_book" {
			t.Errorf("path = %s, want /order_book", r.URL.Path)
		}
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"bids": [{"price": "0.2500000", "amount": "1000.5000000"},
			         {"price": "0.2400000", "amount": "500.0000000"}],
			"asks": [{"price": "0.2700000", "amount": "800.0000000"}]
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 20, 5*time.Second)
	pair := domain.TradingPair{
		Base:    domain.Asset{Code: "XLM"},
		Counter: domain.Asset{Code: "USDC", Issuer: issuer},
	}

	snap, err := c.GetOrderBook(context.Background(), pair)
	if err != nil {
		t.Fatalf("GetOrderBook: %v", err)
	}

	if got := gotQuery.Get("selling_asset_type"); got != "native" {
		t.Errorf("selling_asset_type = %q, want native", got)
	}
	if got := gotQuery.Get("buying_asset_type"); got != "credit_alphanum4" {
		t.Errorf("buying_asset_type = %q, want credit_alphanum4", got)
	}
	if got := gotQuery.Get("buying_asset_code"); got != "USDC" {
		t.Errorf("buying_asset_code = %q, want USDC", got)
	}
	if got := gotQuery.Get("buying_asset_issuer"); got != issuer {
		t.Errorf("buying_asset_issuer = %q", got)
	}
	if got := gotQuery.Get("limit"); got != "20" {
		t.Errorf("limit = %q, want 20", got)
	}

	if len(snap.Bids) != 2 || len(snap.Asks) != 1 {
		t.Fatalf("levels = %d bids / %d asks, want 2/1", len(snap.Bids), len(snap.Asks))
	}
	if snap.Bids[0].Price != 0.25 || snap.Bids[0].Amount != 1000.5 {
		t.Errorf("bid[0] = %+v", snap.Bids[0])
	}
	if snap.MidPrice != 0.26 {
		t.Errorf("MidPrice = %v, want 0.26", snap.MidPrice)
	}
	if snap.MinLiquidity != 800 {
		t.Errorf("MinLiquidity = %v, want 800 (ask side)", snap.MinLiquidity)
	}
}

func TestGetOrderBookLongCodeUsesAlphanum12(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"bids": [], "asks": []}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 10, 5*time.Second)
	pair := domain.TradingPair{
		Base:    domain.Asset{Code: "AQUATOKEN", Issuer: issuer},
		Counter: domain.Asset{Code: "XLM"},
	}

	if _, err := c.GetOrderBook(context.Background(), pair); err != nil {
		t.Fatalf("GetOrderBook: %v", err)
	}
	if got := gotQuery.Get("selling_asset_type"); got != "credit_alphanum12" {
		t.Errorf("selling_asset_type = %q, want credit_alphanum12", got)
	}
	if got := gotQuery.Get("buying_asset_type"); got != "native" {
		t.Errorf("buying_asset_type = %q, want native", got)
	}
}

func TestGetOrderBookSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"type": "bad_request", "title": "Bad Request", "status": 400, "detail": "invalid asset"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 10, 5*time.Second)
	pair := domain.TradingPair{
		Base:    domain.Asset{Code: "XLM"},
		Counter: domain.Asset{Code: "USDC", Issuer: issuer},
	}

	_, err := c.GetOrderBook(context.Background(), pair)
	if err == nil {
		t.Fatal("expected an error on HTTP 400")
	}
}

func TestGetOrderBookRejectsMalformedDecimals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bids": [{"price": "not-a-number", "amount": "1"}], "asks": []}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 10, 5*time.Second)
	pair := domain.TradingPair{
		Base:    domain.Asset{Code: "XLM"},
		Counter: domain.Asset{Code: "USDC", Issuer: issuer},
	}

	if _, err := c.GetOrderBook(context.Background(), pair); err == nil {
		t.Fatal("expected an error on malformed price")
	}
}
