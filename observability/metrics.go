package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for recorded calls.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeRateLimited = "rate_limited"
	OutcomeTimeout     = "timeout"
)

var (
	registerOnce sync.Once

	callsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spectro",
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Remote calls handled, by call name and outcome.",
		},
		[]string{"call", "outcome"},
	)
	callDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "spectro",
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "Remote call duration in seconds, including device acquisition.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"call", "outcome"},
	)
	connectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spectro",
			Subsystem: "rpc",
			Name:      "connections_total",
			Help:      "Accepted connections, by framing discipline.",
		},
		[]string{"mode"},
	)
	protocolErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "spectro",
			Subsystem: "rpc",
			Name:      "protocol_errors_total",
			Help:      "Frames that could not be decoded into a call.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(callsTotal, callDuration, connectionsTotal, protocolErrors)
	})
}

func RecordCall(call, outcome string, duration time.Duration) {
	RegisterMetrics()
	callsTotal.WithLabelValues(call, outcome).Inc()
	callDuration.WithLabelValues(call, outcome).Observe(duration.Seconds())
}

func RecordConnection(mode string) {
	RegisterMetrics()
	connectionsTotal.WithLabelValues(mode).Inc()
}

func RecordProtocolError() {
	RegisterMetrics()
	protocolErrors.Inc()
}
