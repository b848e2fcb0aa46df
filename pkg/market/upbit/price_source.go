package market

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"signal-engine/pkg/cache"
)

// PriceSource answers current-price lookups from the streamed cache and
// falls back to the REST ticker when the cached quote is stale.
type PriceSource struct {
	rest   *Client
	stream *StreamClient
	cache  *cache.PriceCache
	maxAge time.Duration
	log    zerolog.Logger
}

func NewPriceSource(rest *Client, stream *StreamClient, pc *cache.PriceCache, maxAge time.Duration, log zerolog.Logger) *PriceSource {
	if maxAge <= 0 {
		maxAge = 10 * time.Second
	}
	return &PriceSource{
		rest:   rest,
		stream: stream,
		cache:  pc,
		maxAge: maxAge,
		log:    log.With().Str("component", "price_source").Logger(),
	}
}

// CurrentPrice returns the latest trade price of market.
func (p *PriceSource) CurrentPrice(ctx context.Context, market string) (float64, error) {
	if price, ok := p.cache.Fresh(market, p.maxAge); ok {
		return price, nil
	}
	tickers, err := p.rest.GetTickers(ctx, []string{market})
	if err != nil {
		return 0, err
	}
	for _, t := range tickers {
		p.cache.Set(t.Market, cache.Quote{Price: t.Price, Volume24h: t.Volume24h, UpdatedAt: t.Timestamp})
		if t.Market == market {
			return t.Price, nil
		}
	}
	return 0, fmt.Errorf("no ticker for %s", market)
}

// Run keeps the ticker stream feeding the cache until ctx ends,
// reconnecting after drops.
func (p *PriceSource) Run(ctx context.Context, markets []string) {
	if p.stream == nil || len(markets) == 0 {
		return
	}
	for {
		ch, stop, err := p.stream.SubscribeTicker(ctx, markets)
		if err != nil {
			p.log.Warn().Err(err).Msg("ticker subscribe failed")
		} else {
			for t := range ch {
				p.cache.Set(t.Market, cache.Quote{Price: t.Price, Volume24h: t.Volume24h, UpdatedAt: t.Timestamp})
			}
			stop()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}
