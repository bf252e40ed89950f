package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	printJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "posprint",
			Subsystem: "printer",
			Name:      "jobs_total",
			Help:      "Print jobs by kind and result.",
		},
		[]string{"kind", "result"},
	)
	printBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "posprint",
			Subsystem: "printer",
			Name:      "bytes_total",
			Help:      "Bytes written to the printer.",
		},
	)
	printErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "posprint",
			Subsystem: "printer",
			Name:      "errors_total",
			Help:      "Printer failures by error kind.",
		},
		[]string{"kind"},
	)
	printerConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "posprint",
			Subsystem: "printer",
			Name:      "connected",
			Help:      "1 while a printer session is open.",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "posprint",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "posprint",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(printJobs, printBytes, printErrors, printerConnected, httpRequests, httpDuration)
	})
}

// RecordPrintJob counts one job; errKind is empty on success.
func RecordPrintJob(kind string, bytes int, errKind string) {
	RegisterMetrics()
	if errKind != "" {
		printJobs.WithLabelValues(kind, "failed").Inc()
		printErrors.WithLabelValues(errKind).Inc()
		return
	}
	printJobs.WithLabelValues(kind, "ok").Inc()
	printBytes.Add(float64(bytes))
}

func SetPrinterConnected(connected bool) {
	RegisterMetrics()
	if connected {
		printerConnected.Set(1)
		return
	}
	printerConnected.Set(0)
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
