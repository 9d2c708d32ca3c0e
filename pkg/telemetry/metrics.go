package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records exchange counts, latencies and body sizes.
type Metrics struct {
	exchanges *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	bytes     *prometheus.CounterVec
}

// NewMetrics registers the exchange collectors with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assetbridge_exchanges_total",
			Help: "Completed exchanges by kind, final state and status code.",
		}, []string{"kind", "state", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "assetbridge_exchange_duration_seconds",
			Help:    "Wall-clock exchange duration from receipt to last body byte.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"kind", "encoding"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assetbridge_body_bytes_total",
			Help: "Body bytes written to the transport by content coding.",
		}, []string{"kind", "encoding"}),
	}
	for _, c := range []prometheus.Collector{m.exchanges, m.duration, m.bytes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RegisterDropped exposes the dispatcher's drop counter.
func RegisterDropped(reg prometheus.Registerer, d *Dispatcher) error {
	return reg.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "assetbridge_telemetry_dropped_total",
		Help: "Completion events discarded because the queue was full.",
	}, func() float64 { return float64(d.Dropped()) }))
}

func (m *Metrics) Observe(ev Event) {
	kind := string(ev.Kind)
	enc := ev.Encoding
	if enc == "" {
		enc = "none"
	}
	m.exchanges.WithLabelValues(kind, string(ev.State), strconv.Itoa(ev.Response.Status)).Inc()
	m.duration.WithLabelValues(kind, enc).Observe(ev.Duration / 1000)
	m.bytes.WithLabelValues(kind, enc).Add(float64(ev.Bytes))
}
