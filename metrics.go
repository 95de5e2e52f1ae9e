package changetrail

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts committed history entries.
type Metrics struct {
	Entries       *prometheus.CounterVec
	ChangedFields *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Entries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "changetrail",
				Name:      "history_entries_total",
				Help:      "Number of history entries committed.",
			},
			[]string{"table", "operation"},
		),
		ChangedFields: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "changetrail",
				Name:      "changed_fields_total",
				Help:      "Number of field changes described in committed history entries.",
			},
			[]string{"table"},
		),
	}
	for _, c := range []prometheus.Collector{m.Entries, m.ChangedFields} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(e entry) {
	if m == nil {
		return
	}
	m.Entries.WithLabelValues(e.table, e.op).Inc()
	if n := len(e.changes); n > 0 {
		m.ChangedFields.WithLabelValues(e.table).Add(float64(n))
	}
}
