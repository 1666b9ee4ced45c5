package metrics

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	EndpointResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vibevoice_endpoint_responses_total",
		Help: "The total number of responses served by the launcher's diagnostics listener",
	}, []string{"endpoint", "status_code"})

	EndpointSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vibevoice_endpoint_seconds",
		Help:    "Latency of the diagnostics endpoints",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	// Device resolution metrics
	DeviceProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vibevoice_device_probes_total",
		Help: "Backend probes by outcome (available, unavailable, not_installed, error)",
	}, []string{"backend", "outcome"})

	DeviceSelected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vibevoice_device_selected",
		Help: "Set to 1 for the device resolved for this process",
	}, []string{"backend", "label"})

	// Server process metrics
	ServerUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vibevoice_server_up",
		Help: "Whether the speech server child process is running",
	})

	ServerExitCode = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vibevoice_server_exit_code",
		Help: "Exit code of the last speech server process",
	})

	// Smoke test metrics
	SmokeFramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vibevoice_smoke_frames_received_total",
		Help: "WebSocket frames received by the test client by frame type",
	}, []string{"type"})

	SmokeBytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vibevoice_smoke_audio_bytes_received_total",
		Help: "Audio bytes received by the test client",
	})

	SmokeFirstChunkSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vibevoice_smoke_first_chunk_seconds",
		Help:    "Latency between sending a request and receiving the first audio chunk",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
	})

	// Benchmark metrics
	BenchmarkIterationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vibevoice_benchmark_iteration_seconds",
		Help:    "Duration of one benchmark matrix multiplication by device",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
	}, []string{"device"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Push replaces the metrics group of job on the Pushgateway at gatewayURL with the default registry.
// Short-lived commands use it since nothing scrapes them.
func Push(ctx context.Context, gatewayURL, job string) error {
	pusher := push.New(gatewayURL, job).Gatherer(prometheus.DefaultGatherer)
	if host, err := os.Hostname(); err == nil {
		pusher = pusher.Grouping("instance", host)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
