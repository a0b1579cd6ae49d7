package market

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/apperrors"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/logger"
)

func TestMain(m *testing.M) {
	logger.InitTestLogger()
	m.Run()
}

func TestFetchParsesSnapshots(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id":"bitcoin","symbol":"btc","name":"Bitcoin","current_price":45123.5,
			 "market_cap":880000000000,"market_cap_rank":1,
			 "price_change_percentage_24h":2.4,
			 "price_change_percentage_7d_in_currency":-1.1,
			 "ath":69000,"ath_date":"2021-11-10T14:24:11.849Z"},
			{"id":"ethereum","symbol":"eth","name":"Ethereum","current_price":2501.2}
		]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	snapshots, err := client.Fetch(context.Background(), []string{"bitcoin", "ethereum"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if len(snapshots) != 2 {
		t.Fatalf("got %d snapshots, want 2", len(snapshots))
	}
	if snapshots[0].ID != "bitcoin" || snapshots[0].CurrentPrice != 45123.5 {
		t.Errorf("unexpected first snapshot %+v", snapshots[0])
	}
	if snapshots[0].PriceChangePct7d != -1.1 {
		t.Errorf("7d change = %f, want -1.1", snapshots[0].PriceChangePct7d)
	}
	if snapshots[0].MarketCapRank != 1 {
		t.Errorf("rank = %d, want 1", snapshots[0].MarketCapRank)
	}

	for _, fragment := range []string{"vs_currency=usd", "ids=bitcoin%2Cethereum", "price_change_percentage=24h%2C7d%2C30d"} {
		if !strings.Contains(gotQuery, fragment) {
			t.Errorf("query %q missing %q", gotQuery, fragment)
		}
	}
}

func TestFetchSendsAPIKeyHeader(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-cg-demo-api-key")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "demo-key")
	if _, err := client.Fetch(context.Background(), []string{"bitcoin"}); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if gotKey != "demo-key" {
		t.Errorf("api key header = %q, want demo-key", gotKey)
	}
}

func TestFetchMapsThrottlingToErrRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	_, err := client.Fetch(context.Background(), []string{"bitcoin"})
	if !errors.Is(err, apperrors.ErrRateLimited) {
		t.Fatalf("got %v, want ErrRateLimited", err)
	}
}

func TestFetchMapsServerErrorToErrProviderUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("upstream exploded"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	_, err := client.Fetch(context.Background(), []string{"bitcoin"})
	if !errors.Is(err, apperrors.ErrProviderUnavailable) {
		t.Fatalf("got %v, want ErrProviderUnavailable", err)
	}
}

func TestFetchMapsNetworkFailureToErrProviderUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	client := NewClient(server.URL, "")
	_, err := client.Fetch(context.Background(), []string{"bitcoin"})
	if !errors.Is(err, apperrors.ErrProviderUnavailable) {
		t.Fatalf("got %v, want ErrProviderUnavailable", err)
	}
}

func TestFetchEmptyIDListSkipsRequest(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	snapshots, err := client.Fetch(context.Background(), nil)
	if err != nil || snapshots != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", snapshots, err)
	}
	if called {
		t.Error("no request expected for an empty id list")
	}
}

func TestParseDate(t *testing.T) {
	if got := ParseDate(""); got != nil {
		t.Errorf("empty value: got %v, want nil", got)
	}
	if got := ParseDate("not-a-date"); got != nil {
		t.Errorf("malformed value: got %v, want nil", got)
	}
	got := ParseDate("2021-11-10T14:24:11.849Z")
	if got == nil || got.Year() != 2021 {
		t.Errorf("valid value: got %v", got)
	}
}
