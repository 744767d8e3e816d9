package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EndpointResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpuarray_endpoint_responses_total",
		Help: "The total number of endpoint responses",
	}, []string{"endpoint", "status_code"})

	EndpointDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gpuarray_endpoint_duration_seconds",
		Help:    "Time spent serving endpoint requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	// Runtime metrics
	RuntimeCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpuarray_runtime_calls_total",
		Help: "Total number of runtime calls by operation and resulting status",
	}, []string{"runtime", "op", "status"})

	RuntimeCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gpuarray_runtime_call_duration_seconds",
		Help:    "Duration of runtime calls in seconds",
		Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12), // 1us to ~4s
	}, []string{"runtime", "op"})

	DeviceBytesAllocated = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gpuarray_device_bytes_allocated",
		Help: "Device memory currently held by successful allocations in bytes",
	})

	TransferBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpuarray_transfer_bytes_total",
		Help: "Total bytes copied between host and device by direction",
	}, []string{"direction"})

	// Array metrics
	SkippedOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpuarray_skipped_operations_total",
		Help: "Array operations skipped because their precondition was not met",
	}, []string{"op"})

	LiveArrays = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gpuarray_live_arrays",
		Help: "Arrays constructed and not yet closed",
	})
)

// Handler serves the registered metrics, counting its own responses.
func Handler() http.Handler {
	return Middleware(promhttp.Handler(), "/metrics")
}
