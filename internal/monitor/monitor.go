package monitor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"signal-engine/internal/events"
	"signal-engine/pkg/i18n"
)

// Monitor forwards notable engine events to an alert sink.
type Monitor struct {
	Bus  *events.Bus
	Sink AlertSink
	Log  zerolog.Logger
}

var alertTopics = []events.Event{
	events.EventOrderPlaced,
	events.EventOrderFailed,
	events.EventForcedExit,
	events.EventTradeResolved,
	events.EventReconciled,
}

// Start subscribes to the alert topics until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil || m.Sink == nil {
		m.Log.Debug().Msg("monitor not fully configured; skipping")
		return
	}
	for _, topic := range alertTopics {
		stream, unsub := m.Bus.Subscribe(topic, 50)
		go func() {
			defer unsub()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-stream:
					if !ok {
						return
					}
					text := formatAlert(msg)
					if text == "" {
						continue
					}
					if err := m.Sink.Send(text); err != nil {
						m.Log.Warn().Err(err).Msg("alert delivery failed")
					}
				}
			}
		}()
	}
}

func formatAlert(msg any) string {
	t := i18n.M()
	switch e := msg.(type) {
	case events.OrderPlaced:
		return fmt.Sprintf(t.OrderPlaced, e.Market, e.Side, e.Volume, e.Price, e.Strategy)
	case events.OrderFailed:
		return fmt.Sprintf(t.OrderFailed, e.Market, e.Side, e.Err)
	case events.ForcedExit:
		return fmt.Sprintf(t.ForcedExit, reasonLabel(e.Reason), e.Market, e.Volume, e.Return*100)
	case events.TradeResolved:
		return fmt.Sprintf(t.TradeResolved, e.TradeID, e.Market, e.Status)
	case events.Reconciled:
		if e.Done+e.Cancelled+e.Failed == 0 {
			return ""
		}
		return fmt.Sprintf(t.ReconSummary, e.Checked, e.Done, e.Cancelled, e.Failed, e.Skipped)
	default:
		return ""
	}
}

func reasonLabel(reason string) string {
	switch reason {
	case "LOSS_MANAGEMENT":
		return i18n.M().ReasonLossManagement
	case "PROFIT_TAKING":
		return i18n.M().ReasonProfitTaking
	case "TIMEOUT_SELL":
		return i18n.M().ReasonTimeoutSell
	}
	return reason
}
