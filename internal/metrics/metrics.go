// Package metrics provides Prometheus instrumentation for the orchestrator.
// It exposes gauges for queue and room counts, counters for relay and
// moderation activity, and a histogram for match wait time.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QueueSize tracks the current number of waiting participants.
	QueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "anonychat_queue_size",
		Help: "Current number of participants in the waiting queue",
	})

	// ActiveRooms tracks the current number of paired rooms.
	ActiveRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "anonychat_active_rooms",
		Help: "Current number of active chat rooms",
	})

	// MessagesTotal counts processed in-session messages, labeled by
	// outcome: "relayed", "blocked", or "media".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anonychat_messages_total",
		Help: "Total number of in-session messages processed",
	}, []string{"outcome"})

	// ViolationsTotal counts recorded violations by kind.
	ViolationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anonychat_violations_total",
		Help: "Total number of recorded violations",
	}, []string{"kind"})

	// MatchWait records the time from enqueue to pairing.
	MatchWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "anonychat_match_wait_seconds",
		Help:    "Time from enqueue to pairing",
		Buckets: []float64{1, 2, 5, 10, 15, 20},
	})

	// QuizAnswersTotal counts quiz outcomes: "correct", "wrong", "timeout".
	QuizAnswersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anonychat_quiz_answers_total",
		Help: "Total number of quiz question outcomes",
	}, []string{"outcome"})

	// BroadcastsTotal counts accepted broadcast runs.
	BroadcastsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "anonychat_broadcasts_total",
		Help: "Total number of accepted broadcast runs",
	})
)

func init() {
	prometheus.MustRegister(
		QueueSize,
		ActiveRooms,
		MessagesTotal,
		ViolationsTotal,
		MatchWait,
		QuizAnswersTotal,
		BroadcastsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
