package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hangar",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hangar",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hangar",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	compilationOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hangar",
			Subsystem: "compilations",
			Name:      "operations_total",
			Help:      "Total number of compilation lifecycle operations.",
		},
		[]string{"operation", "status"},
	)

	downloadsIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hangar",
			Subsystem: "compilations",
			Name:      "downloads_issued_total",
			Help:      "Total number of download URLs and manifests issued.",
		},
		[]string{"platform"},
	)

	notificationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hangar",
			Subsystem: "notifications",
			Name:      "dispatch_failures_total",
			Help:      "Total number of failed notification dispatches.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		compilationOps,
		downloadsIssued,
		notificationFailures,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// IncrementInFlight marks an HTTP request as started.
func IncrementInFlight() { httpInFlight.Inc() }

// DecrementInFlight marks an HTTP request as finished.
func DecrementInFlight() { httpInFlight.Dec() }

// RecordHTTPRequest records a completed HTTP request.
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequests.WithLabelValues(method, path, status).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCompilationOp records the outcome of a compilation lifecycle
// operation (create, delete, update, download, uploadAck, plist).
func RecordCompilationOp(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	compilationOps.WithLabelValues(operation, status).Inc()
}

// RecordDownloadIssued records an issued download URL or manifest.
func RecordDownloadIssued(platform string) {
	if platform == "" {
		platform = "unknown"
	}
	downloadsIssued.WithLabelValues(platform).Inc()
}

// RecordNotificationFailure records a failed notification dispatch.
func RecordNotificationFailure() {
	notificationFailures.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")

	// Collapse /api/v1/... paths to their resource shape so identifiers do
	// not explode the label cardinality.
	if len(parts) >= 2 && parts[0] == "api" {
		parts = parts[2:]
	}
	if len(parts) == 0 {
		return "/"
	}
	switch parts[0] {
	case "product":
		switch {
		case len(parts) == 1:
			return "/product"
		case len(parts) == 2:
			return "/product/:id"
		case len(parts) >= 4 && parts[2] == "compilation":
			suffix := ""
			if len(parts) > 4 {
				suffix = "/" + parts[4]
			}
			return "/product/:id/compilation/:cid" + suffix
		default:
			return "/product/:id/" + parts[2]
		}
	case "feature":
		if len(parts) == 1 {
			return "/feature"
		}
		return "/feature/:id"
	default:
		if len(parts) == 1 {
			return "/" + parts[0]
		}
		return "/" + parts[0] + "/:id"
	}
}
