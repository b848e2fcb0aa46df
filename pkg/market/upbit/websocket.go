package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const DefaultStreamURL = "wss://api.upbit.com/websocket/v1"

// StreamClient subscribes to the public ticker websocket.
type StreamClient struct {
	StreamURL string
	dialer    *websocket.Dialer
	log       zerolog.Logger
}

func NewStreamClient(streamURL string, log zerolog.Logger) *StreamClient {
	if streamURL == "" {
		streamURL = DefaultStreamURL
	}
	return &StreamClient{
		StreamURL: streamURL,
		dialer:    websocket.DefaultDialer,
		log:       log.With().Str("component", "ticker_stream").Logger(),
	}
}

type subscribeFrame struct {
	Ticket string   `json:"ticket,omitempty"`
	Type   string   `json:"type,omitempty"`
	Codes  []string `json:"codes,omitempty"`
}

// SubscribeTicker streams ticker updates for markets. The channel closes
// when ctx ends, stop is called or the connection drops.
func (c *StreamClient) SubscribeTicker(ctx context.Context, markets []string) (<-chan Ticker, func(), error) {
	if len(markets) == 0 {
		return nil, nil, errors.New("no markets to subscribe")
	}
	conn, _, err := c.dialer.DialContext(ctx, c.StreamURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial upbit ws: %w", err)
	}

	frames := []subscribeFrame{
		{Ticket: uuid.NewString()},
		{Type: "ticker", Codes: markets},
	}
	if err := conn.WriteJSON(frames); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("subscribe ticker: %w", err)
	}

	out := make(chan Ticker, 100)
	var once sync.Once
	stop := func() {
		once.Do(func() {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		})
	}

	go func() {
		<-ctx.Done()
		stop()
	}()

	go func() {
		defer close(out)
		defer stop()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
					errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
					return
				}
				c.log.Warn().Err(err).Msg("ticker stream read failed")
				return
			}

			var raw tickerResponse
			if err := json.Unmarshal(msg, &raw); err != nil {
				c.log.Debug().Err(err).Msg("ticker stream parse failed")
				continue
			}
			if raw.Code == "" && raw.Market == "" {
				continue
			}
			select {
			case out <- raw.toTicker():
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, stop, nil
}

// reconnectDelay is the pause between stream reconnects.
var reconnectDelay = 3 * time.Second
