package mailer

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the queue's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	processed prometheus.Counter
	failed    prometheus.Counter
	dropped   prometheus.Counter
	size      prometheus.Gauge
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_email_tasks_processed_total",
			Help: "Email tasks delivered successfully.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_email_tasks_failed_total",
			Help: "Email tasks whose delivery failed.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_email_tasks_dropped_total",
			Help: "Email tasks rejected because the queue was full.",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_email_queue_size",
			Help: "Email tasks waiting for the worker.",
		}),
	}

	registerer.MustRegister(m.processed, m.failed, m.dropped, m.size)
	return m
}

func (m *Metrics) incProcessed() {
	if m != nil {
		m.processed.Inc()
	}
}

func (m *Metrics) incFailed() {
	if m != nil {
		m.failed.Inc()
	}
}

func (m *Metrics) incDropped() {
	if m != nil {
		m.dropped.Inc()
	}
}

func (m *Metrics) setSize(n int) {
	if m != nil {
		m.size.Set(float64(n))
	}
}
