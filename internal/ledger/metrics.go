package ledger

import "github.com/prometheus/client_golang/prometheus"

// Metrics instruments ledger submissions. A nil *Metrics is a no-op.
type Metrics struct {
	submissions *prometheus.CounterVec
	keys        prometheus.Counter
	messages    prometheus.Gauge
}

// NewMetrics creates ledger collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sealpost",
			Subsystem: "ledger",
			Name:      "submissions_total",
			Help:      "Message submissions by result.",
		}, []string{"result"}),
		keys: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sealpost",
			Subsystem: "ledger",
			Name:      "key_registrations_total",
			Help:      "Accepted key registrations.",
		}),
		messages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sealpost",
			Subsystem: "ledger",
			Name:      "messages",
			Help:      "Messages committed to the ledger.",
		}),
	}
	for _, c := range []prometheus.Collector{m.submissions, m.keys, m.messages} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) accepted(total int) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues("accepted").Inc()
	m.messages.Set(float64(total))
}

func (m *Metrics) rejected(kind Kind) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) keyRegistered() {
	if m == nil {
		return
	}
	m.keys.Inc()
}
