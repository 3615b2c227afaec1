package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 压缩任务
var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vcompressor_jobs_total",
			Help: "Total number of finished compression jobs",
		},
		[]string{"outcome"}, // completed, failed, cancelled, retry
	)

	JobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vcompressor_jobs_enqueued_total",
			Help: "Total number of compression jobs added to the queue",
		},
		[]string{"origin"}, // api, watcher
	)

	CompressDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vcompressor_compress_duration_seconds",
			Help:    "Time spent in the transcode engine per job",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"policy"},
	)

	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vcompressor_jobs_in_flight",
			Help: "Number of compression jobs currently running",
		},
	)

	OutputBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vcompressor_output_bytes_total",
			Help: "Total bytes written by successful compressions",
		},
	)
)

// 媒体检测
var (
	ProbeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vcompressor_probe_total",
			Help: "Total number of media inspections",
		},
		[]string{"status"},
	)
)

// ObserveJob 记录任务结束
func ObserveJob(outcome, policy string, elapsed time.Duration) {
	JobsTotal.WithLabelValues(outcome).Inc()
	if elapsed > 0 {
		CompressDuration.WithLabelValues(policy).Observe(elapsed.Seconds())
	}
}

// Handler 暴露 prometheus 指标
func Handler() http.Handler {
	return promhttp.Handler()
}
