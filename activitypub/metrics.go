package activitypub

import "github.com/prometheus/client_golang/prometheus"

var (
	inboxActivities = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stegofed_inbox_activities_total",
			Help: "Incoming activities by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stegofed_deliveries_total",
			Help: "Outgoing delivery attempts by result.",
		},
		[]string{"result"},
	)

	remoteFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stegofed_remote_fetches_total",
			Help: "Remote object fetches by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(inboxActivities)
	prometheus.MustRegister(deliveries)
	prometheus.MustRegister(remoteFetches)
}

// outcome labels
const (
	outcomeSuccess    = "success"
	outcomeNoop       = "noop"
	outcomeDisallowed = "disallowed"
	outcomeError      = "error"
	outcomeUnhandled  = "unhandled"
)

func countInbox(typ, outcome string) {
	inboxActivities.WithLabelValues(typ, outcome).Inc()
}
