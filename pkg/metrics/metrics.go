package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	LoginsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "appvault", Name: "logins_started_total", Help: "Number of login redirects issued."},
	)
	LoginsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "appvault", Name: "logins_completed_total", Help: "Number of successful callback exchanges."},
	)
	AuthFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "appvault", Name: "auth_failures_total", Help: "Number of rejected authentication attempts by stage."},
		[]string{"stage"},
	)
	DocumentsSaved = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "appvault", Name: "documents_saved_total", Help: "Number of successful document upserts."},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "appvault", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "appvault", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(LoginsStarted)
	reg.MustRegister(LoginsCompleted)
	reg.MustRegister(AuthFailures)
	reg.MustRegister(DocumentsSaved)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}
