package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service.
	Registry = prometheus.NewRegistry()

	// HTTPRequests counts requests by method, path, and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// DeviceReports counts processed device records by outcome.
	DeviceReports = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "device_reports_total", Help: "Device telemetry records by outcome."},
		[]string{"outcome"},
	)
	// ColorumFlagged counts devices flipping into colorum state.
	ColorumFlagged = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "colorum_flagged_total", Help: "Devices newly flagged as colorum."},
	)
	// RouteChanges counts routes created/deleted by reconciliation.
	RouteChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "route_reconcile_changes_total", Help: "Route records created or deleted by reconciliation."},
		[]string{"change"},
	)
	// SessionOps counts northbound session operations by result.
	SessionOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "northbound_session_ops_total", Help: "Northbound session operations by result."},
		[]string{"op", "result"},
	)
)

// RegisterDefault registers collectors on the service registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(DeviceReports)
		Registry.MustRegister(ColorumFlagged)
		Registry.MustRegister(RouteChanges)
		Registry.MustRegister(SessionOps)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
