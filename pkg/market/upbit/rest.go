// Package market reads public quotation data (candles and tickers) from Upbit.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.upbit.com"
	maxCandles     = 200
	candleLayout   = "2006-01-02T15:04:05"
)

// Client wraps the public REST quotation API.
type Client struct {
	BaseURL      string
	HTTPClient   *http.Client
	MaxRetryTime time.Duration
	limiter      *rate.Limiter
}

// NewClient builds a quotation client allowing rps requests per second.
func NewClient(baseURL string, rps float64) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if rps <= 0 {
		rps = 10
	}
	return &Client{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		HTTPClient:   &http.Client{Timeout: 10 * time.Second},
		MaxRetryTime: 5 * time.Second,
		limiter:      rate.NewLimiter(rate.Limit(rps), 1),
	}
}

type statusError struct {
	code int
	path string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upbit %s status %d", e.path, e.code)
}

// GetMinuteCandles returns up to count minute candles ordered oldest first.
func (c *Client) GetMinuteCandles(ctx context.Context, market string, unit, count int) ([]Candle, error) {
	if !ValidMinuteUnit(unit) {
		return nil, fmt.Errorf("unsupported minute unit %d", unit)
	}
	if count <= 0 || count > maxCandles {
		count = maxCandles
	}
	params := url.Values{}
	params.Set("market", market)
	params.Set("count", strconv.Itoa(count))

	var raw []candleResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/v1/candles/minutes/%d", unit), params, &raw); err != nil {
		return nil, fmt.Errorf("get candles %s: %w", market, err)
	}

	out := make([]Candle, 0, len(raw))
	for _, r := range raw {
		start, err := time.Parse(candleLayout, r.DateTimeUTC)
		if err != nil {
			return nil, fmt.Errorf("parse candle time %q: %w", r.DateTimeUTC, err)
		}
		out = append(out, Candle{
			Market: r.Market,
			Start:  start,
			Open:   r.OpeningPrice,
			High:   r.HighPrice,
			Low:    r.LowPrice,
			Close:  r.TradePrice,
			Volume: r.Volume,
		})
	}
	// The API returns newest first.
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// GetTickers returns the latest ticker of each market.
func (c *Client) GetTickers(ctx context.Context, markets []string) ([]Ticker, error) {
	if len(markets) == 0 {
		return nil, nil
	}
	params := url.Values{}
	params.Set("markets", strings.Join(markets, ","))

	var raw []tickerResponse
	if err := c.getJSON(ctx, "/v1/ticker", params, &raw); err != nil {
		return nil, fmt.Errorf("get tickers: %w", err)
	}
	out := make([]Ticker, 0, len(raw))
	for _, r := range raw {
		out = append(out, r.toTicker())
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	u := c.BaseURL + path + "?" + params.Encode()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = c.MaxRetryTime

	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		res, err := c.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()

		if res.StatusCode != http.StatusOK {
			err := &statusError{code: res.StatusCode, path: path}
			if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500 {
				return err
			}
			return backoff.Permanent(err)
		}
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode %s: %w", path, err))
		}
		return nil
	}
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}
