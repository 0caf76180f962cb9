// Package metrics exposes Prometheus metrics for castmail-web.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/foxzi/castmail/internal/web/castmail"
)

// Metrics holds all Prometheus metrics for the panel
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDurationSeconds *prometheus.HistogramVec
	HTTPErrorsTotal            *prometheus.CounterVec

	// Backend API metrics
	BackendRequestsTotal          *prometheus.CounterVec
	BackendRequestDurationSeconds *prometheus.HistogramVec

	// Mailing metrics
	MailingsSentTotal      prometheus.Counter
	RecipientsTotal        *prometheus.CounterVec
	SendFailuresTotal      *prometheus.CounterVec
	ValidationRejectsTotal *prometheus.CounterVec
	ContactUploadsTotal    *prometheus.CounterVec

	registry *prometheus.Registry
	started  time.Time
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "castmail_web_http_requests_total",
				Help: "Total number of panel HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "castmail_web_http_request_duration_seconds",
				Help:    "Panel HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		HTTPErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "castmail_web_http_errors_total",
				Help: "Total number of panel HTTP error responses",
			},
			[]string{"error_type"},
		),

		BackendRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "castmail_web_backend_requests_total",
				Help: "Total number of castMail API calls",
			},
			[]string{"op", "result"},
		),
		BackendRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "castmail_web_backend_request_duration_seconds",
				Help:    "castMail API call duration in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"op"},
		),

		MailingsSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "castmail_web_mailings_sent_total",
				Help: "Total number of mailings accepted by the backend",
			},
		),
		RecipientsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "castmail_web_recipients_total",
				Help: "Total number of recipients reported by the backend",
			},
			[]string{"result"},
		),
		SendFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "castmail_web_send_failures_total",
				Help: "Total number of failed sends by stage",
			},
			[]string{"step"},
		),
		ValidationRejectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "castmail_web_validation_rejects_total",
				Help: "Total number of compose submissions rejected before any API call",
			},
			[]string{"reason"},
		),
		ContactUploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "castmail_web_contact_uploads_total",
				Help: "Contacts created or updated by sheet uploads",
			},
			[]string{"kind"},
		),

		registry: reg,
		started:  time.Now(),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDurationSeconds,
		m.HTTPErrorsTotal,
		m.BackendRequestsTotal,
		m.BackendRequestDurationSeconds,
		m.MailingsSentTotal,
		m.RecipientsTotal,
		m.SendFailuresTotal,
		m.ValidationRejectsTotal,
		m.ContactUploadsTotal,
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "castmail_web_uptime_seconds",
				Help: "Panel uptime in seconds",
			},
			func() float64 { return time.Since(m.started).Seconds() },
		),
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RegisterSessions exposes the number of live sessions
func (m *Metrics) RegisterSessions(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "castmail_web_sessions_active",
			Help: "Number of live browser sessions",
		},
		func() float64 { return float64(count()) },
	))
}

// ObserveBackend records one castMail API call. It matches castmail.Observer.
func (m *Metrics) ObserveBackend(op string, d time.Duration, err error) {
	m.BackendRequestsTotal.WithLabelValues(op, backendResult(err)).Inc()
	m.BackendRequestDurationSeconds.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveSend records a send accepted by the backend
func (m *Metrics) ObserveSend(sent, failed int) {
	m.MailingsSentTotal.Inc()
	m.RecipientsTotal.WithLabelValues("sent").Add(float64(sent))
	m.RecipientsTotal.WithLabelValues("failed").Add(float64(failed))
}

// ObserveSendFailure records a send aborted at step
func (m *Metrics) ObserveSendFailure(step string) {
	m.SendFailuresTotal.WithLabelValues(step).Inc()
}

// ObserveValidationReject records a compose submission rejected locally
func (m *Metrics) ObserveValidationReject(reason string) {
	m.ValidationRejectsTotal.WithLabelValues(reason).Inc()
}

// ObserveUpload records the outcome of a contact sheet upload
func (m *Metrics) ObserveUpload(created, updated int) {
	m.ContactUploadsTotal.WithLabelValues("created").Add(float64(created))
	m.ContactUploadsTotal.WithLabelValues("updated").Add(float64(updated))
}

func backendResult(err error) string {
	if err == nil {
		return "ok"
	}
	var apiErr *castmail.APIError
	if errors.As(err, &apiErr) {
		return strconv.Itoa(apiErr.StatusCode)
	}
	return "error"
}
