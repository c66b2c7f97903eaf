package observability

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/edgewire/internal/protocol/stream"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgewire",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edgewire",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)
	streamBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "edgewire",
			Subsystem: "stream",
			Name:      "received_bytes_total",
			Help:      "Bytes fed to stream decoders.",
		},
	)
	streamDecoded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "edgewire",
			Subsystem: "stream",
			Name:      "decoded_messages_total",
			Help:      "Messages fully decoded from connection streams.",
		},
	)
	streamPending = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "edgewire",
			Subsystem: "stream",
			Name:      "pending_bytes",
			Help:      "Bytes left pending decode after each chunk.",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 8),
		},
	)
	streamFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgewire",
			Subsystem: "stream",
			Name:      "failures_total",
			Help:      "Connection-fatal stream decode failures.",
		},
		[]string{"reason"},
	)
	connections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "edgewire",
			Subsystem: "transport",
			Name:      "connections",
			Help:      "Open connections per transport.",
		},
		[]string{"transport"},
	)
	sinkEmits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgewire",
			Subsystem: "sink",
			Name:      "emits_total",
			Help:      "Decoded messages handed to sinks.",
		},
		[]string{"sink", "success"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			streamBytes, streamDecoded, streamPending, streamFailures,
			connections, sinkEmits,
		)
	})
}

func RecordHTTPRequest(service, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(service, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(service, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordConnOpened(transport string) {
	RegisterMetrics()
	connections.WithLabelValues(transport).Inc()
}

func RecordConnClosed(transport string) {
	RegisterMetrics()
	connections.WithLabelValues(transport).Dec()
}

func RecordSinkEmit(sink string, err error) {
	RegisterMetrics()
	sinkEmits.WithLabelValues(sink, strconv.FormatBool(err == nil)).Inc()
}

// StreamObserver feeds stream.Decoder activity into the stream metrics.
type StreamObserver struct{}

var _ stream.Observer = StreamObserver{}

func NewStreamObserver() StreamObserver {
	RegisterMetrics()
	return StreamObserver{}
}

func (StreamObserver) Received(n int) { streamBytes.Add(float64(n)) }
func (StreamObserver) Decoded(n int)  { streamDecoded.Add(float64(n)) }
func (StreamObserver) Pending(n int)  { streamPending.Observe(float64(n)) }

func (StreamObserver) Failed(err error) {
	streamFailures.WithLabelValues(FailureReason(err)).Inc()
}

// FailureReason maps a decode failure onto a bounded label value.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, stream.ErrBufferLimit):
		return "buffer_limit"
	case errors.Is(err, stream.ErrNoProgress):
		return "no_progress"
	case errors.Is(err, stream.ErrClosed):
		return "closed"
	default:
		return "malformed"
	}
}
