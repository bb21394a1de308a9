package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Business metrics
	referralsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referrals_received_total",
			Help: "Total number of referrals received",
		},
		[]string{"source", "urgency"},
	)

	referralStatusChanged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_status_changed_total",
			Help: "Total number of referral status transitions",
		},
		[]string{"from_status", "to_status"},
	)

	soapNotesSigned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soap_notes_signed_total",
			Help: "Total number of SOAP notes signed",
		},
		[]string{"visit_type"},
	)

	claimsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claims_submitted_total",
			Help: "Total number of claims submitted",
		},
		[]string{"payer"},
	)

	prescriptionsTransmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prescriptions_transmitted_total",
			Help: "Total number of prescriptions transmitted to pharmacies",
		},
		[]string{"method", "status"},
	)

	aiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of AI agent invocations",
		},
		[]string{"agent", "provider", "status"},
	)

	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "AI provider request duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"agent", "provider"},
	)

	auditEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_entries_total",
			Help: "Total number of audit entries created",
		},
	)

	notificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of notifications sent",
		},
		[]string{"channel", "status"},
	)

	documentsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "documents_processed_total",
			Help: "Total number of documents processed",
		},
		[]string{"type", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath normalizes URL paths for metrics to avoid cardinality explosion
func normalizePath(path string) string {
	if len(path) > 100 {
		return "/api/..."
	}
	return path
}

// --- Business metric helpers ---

// RecordReferralReceived records a referral intake
func RecordReferralReceived(source, urgency string) {
	referralsReceived.WithLabelValues(source, urgency).Inc()
}

// RecordReferralStatusChange records a referral status transition
func RecordReferralStatusChange(fromStatus, toStatus string) {
	referralStatusChanged.WithLabelValues(fromStatus, toStatus).Inc()
}

// RecordNoteSigned records a SOAP note signature
func RecordNoteSigned(visitType string) {
	soapNotesSigned.WithLabelValues(visitType).Inc()
}

// RecordClaimSubmitted records a claim submission
func RecordClaimSubmitted(payer string) {
	claimsSubmitted.WithLabelValues(payer).Inc()
}

// RecordPrescriptionTransmitted records a prescription transmission
func RecordPrescriptionTransmitted(method, status string) {
	prescriptionsTransmitted.WithLabelValues(method, status).Inc()
}

// RecordAIRequest records an AI agent invocation
func RecordAIRequest(agent, provider, status string, duration time.Duration) {
	aiRequestsTotal.WithLabelValues(agent, provider, status).Inc()
	aiRequestDuration.WithLabelValues(agent, provider).Observe(duration.Seconds())
}

// RecordAuditEntry records an audit entry creation
func RecordAuditEntry() {
	auditEntriesTotal.Inc()
}

// RecordNotificationSent records a notification delivery attempt
func RecordNotificationSent(channel, status string) {
	notificationsSent.WithLabelValues(channel, status).Inc()
}

// RecordDocumentProcessed records a document processing outcome
func RecordDocumentProcessed(docType, status string) {
	documentsProcessed.WithLabelValues(docType, status).Inc()
}
