// Package metrics holds the Prometheus collectors served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// OutcomeAccepted labels a claim that produced a ledger record.
const OutcomeAccepted = "accepted"

var (
	SessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classroll",
		Name:      "sessions_started_total",
		Help:      "Attendance sessions started, by verification method.",
	}, []string{"method"})

	SessionsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classroll",
		Name:      "sessions_ended_total",
		Help:      "Attendance sessions ended, by how they ended.",
	}, []string{"reason"})

	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classroll",
		Name:      "verifications_total",
		Help:      "Attendance claims by method and outcome (accepted or rejection kind).",
	}, []string{"method", "outcome"})

	ClaimDistance = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "classroll",
		Name:      "claim_distance_meters",
		Help:      "Distance between LOCATION claims and the session anchor.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 1000, 10000},
	})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "classroll",
		Name:      "http_rate_limited_total",
		Help:      "Requests rejected by the rate limiter.",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classroll",
		Name:      "events_published_total",
		Help:      "Domain events handed to the queue, by type and result.",
	}, []string{"type", "result"})

	QueueMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "classroll",
		Name:      "queue_malformed_total",
		Help:      "Queue entries dropped because they did not decode.",
	})

	EventLag = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "classroll",
		Name:      "event_lag_seconds",
		Help:      "Time from publish to worker handling, by event type.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
	}, []string{"type"})
)
