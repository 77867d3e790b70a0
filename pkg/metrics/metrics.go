package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "lorekeep", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "lorekeep", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	AuthAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "lorekeep", Name: "auth_attempts_total", Help: "Number of authentication attempts by operation and outcome."},
		[]string{"operation", "outcome"},
	)
	StreamSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "lorekeep", Name: "stream_subscribers", Help: "Currently connected sync progress stream subscribers."},
	)
	SyncsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "lorekeep", Name: "syncs_finished_total", Help: "Number of finished syncs by terminal status."},
		[]string{"status"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(AuthAttempts)
	reg.MustRegister(StreamSubscribers)
	reg.MustRegister(SyncsFinished)
}
