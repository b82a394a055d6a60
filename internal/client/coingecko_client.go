package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/yourorg/coinscope/internal/config"
	"github.com/yourorg/coinscope/internal/model"
	"github.com/yourorg/coinscope/internal/normalizer"

	"go.uber.org/zap"
)

const (
	CoinGeckoAPIBaseURL = "https://api.coingecko.com/api/v3"

	searchPath      = "search"
	marketChartPath = "market_chart"
	coinsPath       = "coins"

	// The history endpoint is always queried in USD over one year
	HistoryCurrency = "usd"
	HistoryDays     = 365

	apiKeyHeader     = "x-cg-demo-api-key"
	maxErrorBodySize = 4096
)

// CoinGeckoClient handles communication with the CoinGecko API
type CoinGeckoClient struct {
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewCoinGeckoClient creates a new CoinGecko API client
func NewCoinGeckoClient(cfg config.CoinGeckoConfig, logger *zap.Logger) *CoinGeckoClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = CoinGeckoAPIBaseURL
	}

	return &CoinGeckoClient{
		baseURL:   baseURL,
		apiKey:    cfg.APIKey,
		userAgent: cfg.UserAgent,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// SearchCoins looks up coins matching query. The query is sent as is,
// empty or blank queries included.
func (c *CoinGeckoClient) SearchCoins(ctx context.Context, query string) ([]model.Coin, error) {
	target, err := c.endpoint(url.Values{"query": []string{query}}, searchPath)
	if err != nil {
		return nil, c.invalidRequest(query, err)
	}

	return fetchValue(ctx, c, target, func(resp model.CoinSearchResponse) ([]model.Coin, error) {
		if resp.Coins == nil {
			return nil, &model.DecodeError{URL: target.String(), Err: errors.New("missing coins array")}
		}
		return resp.Coins, nil
	})
}

// FetchHistory retrieves and normalizes one year of USD market chart data
func (c *CoinGeckoClient) FetchHistory(ctx context.Context, coinID string) (*model.History, error) {
	if coinID == "" {
		return nil, c.invalidRequest(coinID, errors.New("coin id is empty"))
	}

	params := url.Values{}
	params.Add("vs_currency", HistoryCurrency)
	params.Add("days", strconv.Itoa(HistoryDays))

	target, err := c.endpoint(params, coinsPath, coinID, marketChartPath)
	if err != nil {
		return nil, c.invalidRequest(coinID, err)
	}

	return fetchValue(ctx, c, target, func(raw model.RawHistory) (*model.History, error) {
		if raw.Prices == nil || raw.MarketCaps == nil || raw.TotalVolumes == nil {
			return nil, &model.DecodeError{URL: target.String(), Err: errors.New("missing market chart series")}
		}

		prices, err := normalizer.Normalize(raw.Prices)
		if err != nil {
			return nil, fmt.Errorf("prices: %w", err)
		}
		marketCaps, err := normalizer.Normalize(raw.MarketCaps)
		if err != nil {
			return nil, fmt.Errorf("market caps: %w", err)
		}
		totalVolumes, err := normalizer.Normalize(raw.TotalVolumes)
		if err != nil {
			return nil, fmt.Errorf("total volumes: %w", err)
		}

		return &model.History{
			Prices:       prices,
			MarketCaps:   marketCaps,
			TotalVolumes: totalVolumes,
		}, nil
	})
}

// endpoint joins escaped path segments onto the base URL
func (c *CoinGeckoClient) endpoint(params url.Values, segments ...string) (*url.URL, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q needs a scheme and host", c.baseURL)
	}

	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}

	target := *base
	target.Path = strings.TrimSuffix(base.Path, "/") + "/" + strings.Join(segments, "/")
	target.RawPath = strings.TrimSuffix(base.EscapedPath(), "/") + "/" + strings.Join(escaped, "/")
	target.RawQuery = params.Encode()
	return &target, nil
}

func (c *CoinGeckoClient) invalidRequest(input string, err error) error {
	c.logger.Error("Failed to build CoinGecko request",
		zap.String("input", input),
		zap.String("baseURL", c.baseURL),
		zap.Error(err))
	return &model.InvalidRequestError{Target: input, Err: err}
}

// fetchValue issues one GET to target, decodes the body into S and applies
// transform. It never retries and never caches.
func fetchValue[S any, T any](
	ctx context.Context,
	c *CoinGeckoClient,
	target *url.URL,
	transform func(S) (T, error),
) (T, error) {
	var zero T
	reqURL := target.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return zero, &model.InvalidRequestError{Target: reqURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	c.logger.Debug("Calling CoinGecko API", zap.String("url", reqURL))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			c.logger.Debug("CoinGecko request cancelled", zap.String("url", reqURL))
		} else {
			c.logger.Warn("Failed to call CoinGecko API", zap.String("url", reqURL), zap.Error(err))
		}
		return zero, &model.TransportError{URL: reqURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		c.logger.Warn("CoinGecko API error response",
			zap.String("url", reqURL),
			zap.Int("statusCode", resp.StatusCode),
			zap.String("response", string(bodyBytes)))
		return zero, &model.TransportError{
			URL:        reqURL,
			StatusCode: resp.StatusCode,
			Body:       string(bodyBytes),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, &model.TransportError{URL: reqURL, Err: err}
	}

	var decoded S
	if err := json.Unmarshal(body, &decoded); err != nil {
		c.logger.Warn("Failed to decode CoinGecko response", zap.String("url", reqURL), zap.Error(err))
		return zero, &model.DecodeError{URL: reqURL, Err: err}
	}

	value, err := transform(decoded)
	if err != nil {
		c.logger.Warn("Failed to transform CoinGecko response", zap.String("url", reqURL), zap.Error(err))
		return zero, err
	}

	return value, nil
}
