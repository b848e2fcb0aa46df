package monitor

import (
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"signal-engine/internal/signal"
)

// InfluxRecorder writes every evaluated snapshot to InfluxDB for charting.
// Writes are batched asynchronously by the client.
type InfluxRecorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
}

// NewInfluxRecorder connects lazily; write errors surface on Errors().
func NewInfluxRecorder(url, token, org, bucket string) *InfluxRecorder {
	client := influxdb2.NewClient(url, token)
	return &InfluxRecorder{client: client, writeAPI: client.WriteAPI(org, bucket)}
}

// Record queues one point per evaluation.
func (r *InfluxRecorder) Record(e signal.Evaluation) {
	r.writeAPI.WritePoint(evaluationPoint(e))
}

// Errors exposes asynchronous write failures.
func (r *InfluxRecorder) Errors() <-chan error {
	return r.writeAPI.Errors()
}

// Close flushes pending points and closes the client.
func (r *InfluxRecorder) Close() {
	r.writeAPI.Flush()
	r.client.Close()
}

func evaluationPoint(e signal.Evaluation) *write.Point {
	s := e.Snapshot
	v := s.Ind
	return influxdb2.NewPoint(
		"market_snapshot",
		map[string]string{"market": s.Market},
		map[string]interface{}{
			"price":        s.Price,
			"volume":       s.Volume,
			"rsi":          v.RSI,
			"macd":         v.MACD,
			"macd_signal":  v.MACDSignal,
			"bb_lower":     v.BBLower,
			"bb_upper":     v.BBUpper,
			"adx":          v.ADX,
			"atr":          v.ATR,
			"stoch_k":      v.StochK,
			"drop_count":   e.Up.Count,
			"pop_count":    e.Down.Count,
			"up_trigger":   e.Up.Triggered,
			"down_trigger": e.Down.Triggered,
		},
		s.At,
	)
}
