// Package metrics exposes the pipeline's Prometheus collectors: queue
// depth and frame-rate gauges updated by the threaded queue connector
// (§4.5) and jitter buffer (§4.6), all labeled by the owning node's
// name so a single process hosting several pipelines stays
// distinguishable in one registry. Grounded on
// other_examples' warpcomdev-asicamera2 jpeg pool, which registers its
// own HistogramVec/CounterVec pairs via promauto at package init instead
// of threading a registry handle through every caller.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "svpipe_queue_depth",
			Help: "Frames currently buffered in a threaded queue connector",
		},
		[]string{"node"},
	)

	framesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "svpipe_frames_dropped_total",
			Help: "Frames dropped by a threaded queue connector's lossy policy",
		},
		[]string{"node"},
	)

	readFPS = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "svpipe_read_fps",
			Help: "Measured read-side frame rate of a threaded queue connector",
		},
		[]string{"node"},
	)

	writeFPS = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "svpipe_write_fps",
			Help: "Measured write-side frame rate of a threaded queue connector",
		},
		[]string{"node"},
	)

	readInterval = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "svpipe_read_interval_ms",
			Help:    "Milliseconds between consecutive video frame reads",
			Buckets: []float64{1, 5, 10, 20, 33, 50, 100, 250, 500},
		},
		[]string{"node"},
	)

	writeInterval = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "svpipe_write_interval_ms",
			Help:    "Milliseconds between consecutive video frame writes",
			Buckets: []float64{1, 5, 10, 20, 33, 50, 100, 250, 500},
		},
		[]string{"node"},
	)

	jitterBufferDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "svpipe_jitter_buffer_depth",
			Help: "Frames currently held in a jitter buffer's future window",
		},
		[]string{"node"},
	)

	jitterGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "svpipe_jitter_generated_frames_total",
			Help: "Frames synthesized by a jitter buffer to cover a gap",
		},
		[]string{"node"},
	)
)

// SetQueueDepth records the current frame count queued inside a
// threaded queue connector.
func SetQueueDepth(node string, depth int) {
	queueDepth.WithLabelValues(node).Set(float64(depth))
}

// IncFramesDropped counts a single frame dropped by a connector's lossy
// policy.
func IncFramesDropped(node string) {
	framesDropped.WithLabelValues(node).Inc()
}

// SetReadFPS records a connector's measured read-side frame rate.
func SetReadFPS(node string, fps float64) {
	readFPS.WithLabelValues(node).Set(fps)
}

// SetWriteFPS records a connector's measured write-side frame rate.
func SetWriteFPS(node string, fps float64) {
	writeFPS.WithLabelValues(node).Set(fps)
}

// ObserveReadInterval records the elapsed time between two consecutive
// video frame reads.
func ObserveReadInterval(node string, ms float64) {
	readInterval.WithLabelValues(node).Observe(ms)
}

// ObserveWriteInterval records the elapsed time between two consecutive
// video frame writes.
func ObserveWriteInterval(node string, ms float64) {
	writeInterval.WithLabelValues(node).Observe(ms)
}

// SetJitterBufferDepth records the number of frames currently held in a
// jitter buffer's future window.
func SetJitterBufferDepth(node string, depth int) {
	jitterBufferDepth.WithLabelValues(node).Set(float64(depth))
}

// IncJitterGenerated counts a single frame synthesized by a jitter
// buffer to smooth over a gap in its input.
func IncJitterGenerated(node string) {
	jitterGenerated.WithLabelValues(node).Inc()
}
