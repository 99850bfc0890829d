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
	remindersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminders_created_total",
			Help: "Total number of reminders created",
		},
		[]string{"frequency"},
	)

	dosesMarked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doses_marked_total",
			Help: "Total number of mark-taken calls by outcome",
		},
		[]string{"outcome"},
	)

	dosesUndone = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "doses_undone_total",
			Help: "Total number of taken doses undone",
		},
	)

	lowSupplyPredictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "refill_low_supply_total",
			Help: "Total number of refill predictions below the low-supply threshold",
		},
	)

	notificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_dispatched_total",
			Help: "Total number of due-dose notifications handed to providers",
		},
		[]string{"provider", "status"},
	)

	restocksApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "restocks_applied_total",
			Help: "Total number of fulfillment restocks applied to reminders",
		},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
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

		// Wrap response writer to capture status code
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

// RecordReminderCreated records a reminder creation
func RecordReminderCreated(frequency string) {
	remindersCreated.WithLabelValues(frequency).Inc()
}

// RecordDoseMarked records a mark-taken call; outcome is "taken" for a fresh
// decrement or "duplicate" for an idempotent repeat.
func RecordDoseMarked(outcome string) {
	dosesMarked.WithLabelValues(outcome).Inc()
}

// RecordDoseUndone records an undo of a taken dose
func RecordDoseUndone() {
	dosesUndone.Inc()
}

// RecordLowSupply records a refill prediction under the low-supply threshold
func RecordLowSupply() {
	lowSupplyPredictions.Inc()
}

// RecordNotificationDispatched records a due-dose notification delivery attempt
func RecordNotificationDispatched(provider, status string) {
	notificationsDispatched.WithLabelValues(provider, status).Inc()
}

// RecordRestockApplied records a fulfillment restock
func RecordRestockApplied() {
	restocksApplied.Inc()
}

// RecordDBQuery records a database query duration
func RecordDBQuery(operation string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
