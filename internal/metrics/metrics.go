package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mathchat_messages_appended_total",
			Help: "Messages committed to the durable log",
		},
		[]string{"scope_type", "role"},
	)

	DuplicateSubmissions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mathchat_duplicate_submissions_total",
			Help: "Appends resolved by client token dedup",
		},
	)

	BroadcastsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mathchat_broadcasts_delivered_total",
			Help: "Per-channel deliveries of broadcast payloads",
		},
	)

	BroadcastsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mathchat_broadcasts_dropped_total",
			Help: "Channels removed after a failed delivery",
		},
	)

	CompletionRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mathchat_completion_requests_total",
			Help: "Upstream completion requests by terminal state",
		},
		[]string{"outcome"}, // committed, timed_out, failed
	)

	CompletionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mathchat_completion_duration_seconds",
			Help:    "Wall time of upstream completion requests",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)
)
