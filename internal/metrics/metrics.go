package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ticks           *prometheus.CounterVec
	eventsProcessed prometheus.Counter
	alertsSent      prometheus.Counter
	alertsDropped   *prometheus.CounterVec
	errors          *prometheus.CounterVec
	cursor          *prometheus.GaugeVec
	submissions     *prometheus.CounterVec
}

var (
	once    sync.Once
	metrics *Metrics
)

// Init initializes global metrics (idempotent).
func Init() *Metrics {
	once.Do(func() {
		metrics = &Metrics{
			ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "paywatch_ticks_total",
				Help: "Poller ticks by outcome",
			}, []string{"outcome"}),
			eventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "paywatch_events_processed_total",
				Help: "Total number of payment events processed",
			}),
			alertsSent: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "paywatch_alerts_sent_total",
				Help: "Total number of alerts sent to sinks",
			}),
			alertsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "paywatch_alerts_dropped_total",
				Help: "Alerts dropped before reaching sinks",
			}, []string{"reason"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "paywatch_errors_total",
				Help: "Errors encountered, by kind",
			}, []string{"kind"}),
			cursor: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "paywatch_cursor_sequence_number",
				Help: "Last processed event sequence number per stream",
			}, []string{"stream"}),
			submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "paywatch_submissions_total",
				Help: "Payment submissions by final state",
			}, []string{"state"}),
		}
		prometheus.MustRegister(
			metrics.ticks,
			metrics.eventsProcessed,
			metrics.alertsSent,
			metrics.alertsDropped,
			metrics.errors,
			metrics.cursor,
			metrics.submissions,
		)
	})
	return metrics
}

func (m *Metrics) Tick(outcome string) {
	if m != nil {
		m.ticks.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) EventProcessed() {
	if m != nil {
		m.eventsProcessed.Inc()
	}
}

func (m *Metrics) AlertSent() {
	if m != nil {
		m.alertsSent.Inc()
	}
}

// AlertDropped counts an alert skipped for reason (dedupe, rate_limit, dry_run).
func (m *Metrics) AlertDropped(reason string) {
	if m != nil {
		m.alertsDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) Error(kind string) {
	if m != nil {
		m.errors.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Cursor(stream string, seq uint64) {
	if m != nil {
		m.cursor.WithLabelValues(stream).Set(float64(seq))
	}
}

func (m *Metrics) Submission(state string) {
	if m != nil {
		m.submissions.WithLabelValues(state).Inc()
	}
}

// Handler returns an HTTP handler for /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
