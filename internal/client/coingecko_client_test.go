package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yourorg/coinscope/internal/config"
	"github.com/yourorg/coinscope/internal/model"

	"go.uber.org/zap/zaptest"
)

// MockRoundTripper allows us to mock HTTP responses
type MockRoundTripper struct {
	Func func(req *http.Request) (*http.Response, error)
}

func (m *MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.Func(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

func newTestClient(t *testing.T, fn func(req *http.Request) (*http.Response, error)) *CoinGeckoClient {
	t.Helper()
	c := NewCoinGeckoClient(config.CoinGeckoConfig{
		BaseURL:   CoinGeckoAPIBaseURL,
		Timeout:   5 * time.Second,
		APIKey:    "demo-key",
		UserAgent: "coinscope-test",
	}, zaptest.NewLogger(t))
	c.httpClient.Transport = &MockRoundTripper{Func: fn}
	return c
}

func TestSearchCoins(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Host != "api.coingecko.com" || req.URL.Path != "/api/v3/search" {
			t.Errorf("unexpected url: %s", req.URL)
		}
		if got := req.URL.Query().Get("query"); got != "eth" {
			t.Errorf("unexpected query: %q", got)
		}
		if req.Header.Get(apiKeyHeader) != "demo-key" {
			t.Errorf("missing api key header")
		}
		return jsonResponse(http.StatusOK, `{"coins":[{"id":"ethereum","name":"Ethereum","symbol":"eth","market_cap_rank":2,"thumb":"https://t/eth.png","large":"https://l/eth.png"}]}`), nil
	})

	coins, err := c.SearchCoins(context.Background(), "eth")
	if err != nil {
		t.Fatalf("SearchCoins failed: %v", err)
	}
	if len(coins) != 1 {
		t.Fatalf("expected one coin, got %d", len(coins))
	}

	coin := coins[0]
	if coin.ID != "ethereum" || coin.Name != "Ethereum" || coin.Symbol != "eth" {
		t.Errorf("unexpected coin: %+v", coin)
	}
	if rank, ok := coin.Rank(); !ok || rank != 2 {
		t.Errorf("unexpected rank %d (%v)", rank, ok)
	}
	if coin.Thumb != "https://t/eth.png" || coin.Large != "https://l/eth.png" {
		t.Errorf("unexpected image refs: %+v", coin)
	}
}

func TestSearchCoinsMissingRank(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"coins":[
			{"id":"obscure","name":"Obscure","symbol":"obs","market_cap_rank":null,"thumb":"","large":""},
			{"id":"hidden","name":"Hidden","symbol":"hid","thumb":"","large":""}
		]}`), nil
	})

	coins, err := c.SearchCoins(context.Background(), "o")
	if err != nil {
		t.Fatalf("SearchCoins failed: %v", err)
	}
	for _, coin := range coins {
		if _, ok := coin.Rank(); ok {
			t.Errorf("expected no rank for %s", coin.ID)
		}
	}
}

func TestSearchCoinsPassesBlankQueryThrough(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if got := req.URL.Query().Get("query"); got != "  " {
			t.Errorf("query was modified: %q", got)
		}
		return jsonResponse(http.StatusOK, `{"coins":[]}`), nil
	})

	coins, err := c.SearchCoins(context.Background(), "  ")
	if err != nil {
		t.Fatalf("SearchCoins failed: %v", err)
	}
	if len(coins) != 0 {
		t.Errorf("expected no coins, got %d", len(coins))
	}
}

func TestSearchCoinsErrors(t *testing.T) {
	tests := []struct {
		name    string
		resp    func() (*http.Response, error)
		checkFn func(error) bool
	}{
		{
			name: "network failure",
			resp: func() (*http.Response, error) { return nil, errors.New("connection refused") },
			checkFn: func(err error) bool {
				var target *model.TransportError
				return errors.As(err, &target) && target.StatusCode == 0
			},
		},
		{
			name: "server error",
			resp: func() (*http.Response, error) { return jsonResponse(http.StatusTooManyRequests, `{"status":"throttled"}`), nil },
			checkFn: func(err error) bool {
				var target *model.TransportError
				return errors.As(err, &target) && target.StatusCode == http.StatusTooManyRequests
			},
		},
		{
			name: "not json",
			resp: func() (*http.Response, error) { return jsonResponse(http.StatusOK, `<html></html>`), nil },
			checkFn: func(err error) bool {
				var target *model.DecodeError
				return errors.As(err, &target)
			},
		},
		{
			name: "wrong shape",
			resp: func() (*http.Response, error) { return jsonResponse(http.StatusOK, `{"coins":{"id":"x"}}`), nil },
			checkFn: func(err error) bool {
				var target *model.DecodeError
				return errors.As(err, &target)
			},
		},
		{
			name: "missing coins",
			resp: func() (*http.Response, error) { return jsonResponse(http.StatusOK, `{"exchanges":[]}`), nil },
			checkFn: func(err error) bool {
				var target *model.DecodeError
				return errors.As(err, &target)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(*http.Request) (*http.Response, error) { return tt.resp() })
			coins, err := c.SearchCoins(context.Background(), "btc")
			if coins != nil {
				t.Errorf("expected no coins, got %v", coins)
			}
			if !tt.checkFn(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestSearchCoinsInvalidBaseURL(t *testing.T) {
	c := NewCoinGeckoClient(config.CoinGeckoConfig{BaseURL: "://bad", Timeout: time.Second}, zaptest.NewLogger(t))

	_, err := c.SearchCoins(context.Background(), "btc")
	var target *model.InvalidRequestError
	if !errors.As(err, &target) {
		t.Fatalf("expected InvalidRequestError, got %v", err)
	}
}

func TestFetchHistory(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/api/v3/coins/bitcoin/market_chart" {
			t.Errorf("unexpected path: %s", req.URL.Path)
		}
		q := req.URL.Query()
		if q.Get("vs_currency") != "usd" || q.Get("days") != "365" {
			t.Errorf("unexpected query: %s", req.URL.RawQuery)
		}
		return jsonResponse(http.StatusOK, `{
			"prices": [[1700000000000,100.0],[1699999999000,99.5]],
			"market_caps": [[1700000000000,2000000000000.12]],
			"total_volumes": []
		}`), nil
	})

	history, err := c.FetchHistory(context.Background(), "bitcoin")
	if err != nil {
		t.Fatalf("FetchHistory failed: %v", err)
	}

	if len(history.Prices) != 2 {
		t.Fatalf("expected 2 prices, got %d", len(history.Prices))
	}
	if !history.Prices[0].Timestamp.Equal(time.UnixMilli(1699999999000)) || history.Prices[0].Value.String() != "99.5" {
		t.Errorf("unexpected first price: %+v", history.Prices[0])
	}
	if !history.Prices[1].Timestamp.Equal(time.UnixMilli(1700000000000)) || history.Prices[1].Value.String() != "100" {
		t.Errorf("unexpected second price: %+v", history.Prices[1])
	}
	if len(history.MarketCaps) != 1 || history.MarketCaps[0].Value.String() != "2000000000000.12" {
		t.Errorf("unexpected market caps: %+v", history.MarketCaps)
	}
	if len(history.TotalVolumes) != 0 {
		t.Errorf("expected no volumes, got %d", len(history.TotalVolumes))
	}
}

func TestFetchHistoryEscapesCoinID(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.EscapedPath() != "/api/v3/coins/odd%2Fid/market_chart" {
			t.Errorf("unexpected escaped path: %s", req.URL.EscapedPath())
		}
		return jsonResponse(http.StatusOK, `{"prices":[],"market_caps":[],"total_volumes":[]}`), nil
	})

	if _, err := c.FetchHistory(context.Background(), "odd/id"); err != nil {
		t.Fatalf("FetchHistory failed: %v", err)
	}
}

func TestFetchHistoryMalformedPoint(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{
			"prices": [[1700000000000]],
			"market_caps": [],
			"total_volumes": []
		}`), nil
	})

	history, err := c.FetchHistory(context.Background(), "bitcoin")
	if history != nil {
		t.Errorf("expected no history, got %+v", history)
	}
	var malformed *model.MalformedPointError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedPointError, got %v", err)
	}
}

func TestFetchHistoryMissingSeries(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"prices":[]}`), nil
	})

	_, err := c.FetchHistory(context.Background(), "bitcoin")
	var decodeErr *model.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestFetchHistoryEmptyCoinID(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})

	_, err := c.FetchHistory(context.Background(), "")
	var invalid *model.InvalidRequestError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidRequestError, got %v", err)
	}
}

func TestFetchHistoryCancelled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	c := NewCoinGeckoClient(config.CoinGeckoConfig{
		BaseURL: server.URL + "/api/v3",
		Timeout: 5 * time.Second,
	}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.FetchHistory(ctx, "bitcoin")
	var transport *model.TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
}

func TestSearchCoinsAgainstServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/search" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"coins":[{"id":"bitcoin","name":"Bitcoin","symbol":"btc","market_cap_rank":1,"thumb":"","large":""}]}`)
	}))
	defer server.Close()

	c := NewCoinGeckoClient(config.CoinGeckoConfig{
		BaseURL: server.URL + "/api/v3/",
		Timeout: 5 * time.Second,
	}, zaptest.NewLogger(t))

	coins, err := c.SearchCoins(context.Background(), "bit")
	if err != nil {
		t.Fatalf("SearchCoins failed: %v", err)
	}
	if len(coins) != 1 || coins[0].ID != "bitcoin" {
		t.Errorf("unexpected coins: %+v", coins)
	}
}
