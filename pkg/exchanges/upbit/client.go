// Package upbit implements common.Gateway against the Upbit private REST API.
package upbit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"signal-engine/pkg/exchanges/common"
)

const DefaultBaseURL = "https://api.upbit.com"

// Config holds one user's credentials and client tuning.
type Config struct {
	AccessKey      string
	SecretKey      string
	BaseURL        string
	RequestsPerSec float64
	Timeout        time.Duration
	MaxRetryTime   time.Duration
}

// Client is a signed Upbit client for a single user.
type Client struct {
	cfg         Config
	httpClient  *http.Client
	limiter     *rate.Limiter
	rateLimiter *common.RateLimiter
	log         zerolog.Logger
}

var _ common.Gateway = (*Client)(nil)

func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 8
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetryTime <= 0 {
		cfg.MaxRetryTime = 5 * time.Second
	}
	return &Client{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		limiter:     rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1),
		rateLimiter: common.NewRateLimiter(),
		log:         log.With().Str("component", "upbit").Logger(),
	}
}

func (c *Client) GetAccounts(ctx context.Context) ([]common.Account, error) {
	var resp []accountResponse
	if err := c.get(ctx, "/v1/accounts", nil, &resp); err != nil {
		return nil, fmt.Errorf("get accounts: %w", err)
	}
	out := make([]common.Account, 0, len(resp))
	for _, a := range resp {
		out = append(out, a.toAccount())
	}
	return out, nil
}

func (c *Client) GetOrderChance(ctx context.Context, market string) (common.OrderChance, error) {
	params := url.Values{"market": {market}}
	var resp orderChanceResponse
	if err := c.get(ctx, "/v1/orders/chance", params, &resp); err != nil {
		return common.OrderChance{}, fmt.Errorf("get order chance %s: %w", market, err)
	}
	return common.OrderChance{
		Market:      market,
		BidFee:      resp.BidFee,
		AskFee:      resp.AskFee,
		BidMinTotal: resp.Market.Bid.MinTotal,
		AskMinTotal: resp.Market.Ask.MinTotal,
		BidAccount:  resp.BidAccount.toAccount(),
		AskAccount:  resp.AskAccount.toAccount(),
	}, nil
}

// PlaceOrder submits an order. It is never retried: a lost response could
// otherwise create a duplicate order.
func (c *Client) PlaceOrder(ctx context.Context, req common.OrderRequest) (common.Order, error) {
	body := orderBody{
		Market:     req.Market,
		Side:       string(req.Side),
		OrdType:    string(req.Type),
		Identifier: req.Identifier,
	}
	if body.OrdType == "" {
		body.OrdType = string(common.OrderTypeLimit)
	}
	if req.Type != common.OrderTypePrice {
		body.Volume = req.Volume.String()
	}
	if req.Type != common.OrderTypeMarket {
		body.Price = req.Price.String()
	}

	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, "/v1/orders", orderQuery(body), body, &resp); err != nil {
		return common.Order{}, fmt.Errorf("place order %s %s: %w", req.Side, req.Market, err)
	}
	return resp.toOrder(), nil
}

func (c *Client) GetOrder(ctx context.Context, id string) (common.Order, error) {
	var resp orderResponse
	if err := c.get(ctx, "/v1/order", url.Values{"uuid": {id}}, &resp); err != nil {
		return common.Order{}, fmt.Errorf("get order %s: %w", id, err)
	}
	return resp.toOrder(), nil
}

func (c *Client) CancelOrder(ctx context.Context, id string) (common.Order, error) {
	params := url.Values{"uuid": {id}}
	var resp orderResponse
	if err := c.do(ctx, http.MethodDelete, "/v1/order", params.Encode(), nil, &resp); err != nil {
		return common.Order{}, fmt.Errorf("cancel order %s: %w", id, err)
	}
	return resp.toOrder(), nil
}

// orderQuery renders the body in field order for the query hash.
func orderQuery(b orderBody) string {
	pairs := [][2]string{
		{"market", b.Market}, {"side", b.Side}, {"volume", b.Volume},
		{"price", b.Price}, {"ord_type", b.OrdType}, {"identifier", b.Identifier},
	}
	var sb strings.Builder
	for _, p := range pairs {
		if p[1] == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(p[0])
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p[1]))
	}
	return sb.String()
}

// get performs an idempotent signed GET, retrying transient failures.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	query := ""
	if params != nil {
		query = params.Encode()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = c.cfg.MaxRetryTime

	op := func() error {
		err := c.do(ctx, http.MethodGet, path, query, nil, out)
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.log.Warn().Err(err).Str("path", path).Dur("retry_in", wait).Msg("request failed, retrying")
	}
	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
}

func (c *Client) do(ctx context.Context, method, path, query string, body any, out any) error {
	if c.cfg.AccessKey == "" || c.cfg.SecretKey == "" {
		return errors.New("upbit: access key and secret key are required")
	}
	if err := c.throttle(ctx, groupFor(method, path)); err != nil {
		return err
	}

	token, err := authToken(c.cfg.AccessKey, c.cfg.SecretKey, query)
	if err != nil {
		return fmt.Errorf("sign request: %w", err)
	}

	endpoint := c.cfg.BaseURL + path
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(raw)
	} else if query != "" {
		endpoint += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if group, left, ok := c.rateLimiter.UpdateFromHeader(res.Header.Get("Remaining-Req")); ok && left <= 1 {
		c.log.Debug().Str("group", group).Int("remaining_sec", left).Msg("rate budget nearly exhausted")
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if res.StatusCode >= 300 {
		apiErr := &APIError{Status: res.StatusCode, Message: strings.TrimSpace(string(raw))}
		var env errorEnvelope
		if json.Unmarshal(raw, &env) == nil && env.Error.Name != "" {
			apiErr.Name = env.Error.Name
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) throttle(ctx context.Context, group string) error {
	if d := c.rateLimiter.Delay(group); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return c.limiter.Wait(ctx)
}

func groupFor(method, path string) string {
	if path == "/v1/orders" && method == http.MethodPost {
		return "order"
	}
	return "default"
}
