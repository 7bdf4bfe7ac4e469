package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Monitor is the collection of Prometheus metrics kept by the service.
type Monitor struct {
	// Number of handles currently loaded.
	handlesActive prometheus.Gauge
	// Requests handled, by operation and result ("ok" or "error").
	requests *prometheus.CounterVec
	// How long each operation took, including the extractor call.
	requestTimer *prometheus.HistogramVec
}

// NewMonitor creates the service metrics and registers them with reg.
func NewMonitor(reg prometheus.Registerer) (*Monitor, error) {
	m := &Monitor{
		handlesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vamphost_service_handles_active",
			Help: "Number of extractor handles currently loaded",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vamphost_service_requests_total",
			Help: "Requests handled by the extractor service",
		}, []string{"operation", "result"}),
		requestTimer: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vamphost_service_request_duration_seconds",
			Help:    "Duration of extractor service requests",
			Buckets: prometheus.ExponentialBucketsRange(0.00001, 10, 12),
		}, []string{"operation"}),
	}
	for _, c := range []prometheus.Collector{m.handlesActive, m.requests, m.requestTimer} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// observe records one finished request; it is deferred with a pointer to the
// operation's named error result. A nil monitor records nothing.
func (m *Monitor) observe(op string, start time.Time, err *error) {
	if m == nil {
		return
	}
	result := "ok"
	if *err != nil {
		result = "error"
	}
	m.requests.WithLabelValues(op, result).Inc()
	m.requestTimer.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Monitor) loaded() {
	if m != nil {
		m.handlesActive.Inc()
	}
}

func (m *Monitor) retired() {
	if m != nil {
		m.handlesActive.Dec()
	}
}
