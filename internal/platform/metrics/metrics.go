package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	TokensIssued           prometheus.Counter
	VerificationsStarted   prometheus.Counter
	VerificationsCompleted prometheus.Counter
	Approvals              prometheus.Counter
	NotifyFailures         prometheus.Counter
	BroadcastSent          prometheus.Counter
	BroadcastFailed        prometheus.Counter
	UpdatesRateLimited     prometheus.Counter
}

// New creates and registers all Prometheus metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TokensIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "trivigil_tokens_issued_total",
			Help: "Total number of purchase tokens issued",
		}),
		VerificationsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "trivigil_verifications_started_total",
			Help: "Total number of /verify conversations opened",
		}),
		VerificationsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "trivigil_verifications_completed_total",
			Help: "Total number of transaction references received",
		}),
		Approvals: factory.NewCounter(prometheus.CounterOpts{
			Name: "trivigil_approvals_total",
			Help: "Total number of administrator approvals",
		}),
		NotifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "trivigil_notify_failures_total",
			Help: "Total number of failed outbound notifications",
		}),
		BroadcastSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "trivigil_broadcast_sent_total",
			Help: "Total number of broadcast messages delivered",
		}),
		BroadcastFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "trivigil_broadcast_failed_total",
			Help: "Total number of broadcast deliveries that failed",
		}),
		UpdatesRateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "trivigil_updates_rate_limited_total",
			Help: "Total number of inbound updates dropped by the rate limiter",
		}),
	}
}
