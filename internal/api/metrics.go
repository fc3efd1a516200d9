package api

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rewards_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "status"})

	redemptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rewards_redemptions_total",
		Help: "Redemption attempts by result.",
	}, []string{"result"})

	sideEffectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rewards_side_effect_failures_total",
		Help: "Post-commit event publishing and cache failures.",
	}, []string{"kind"})
)

func observeRequest(route string, status int, elapsed time.Duration) {
	requestDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
