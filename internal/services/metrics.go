package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// transitions counts successful state changes by entity and edge,
	// e.g. request/accepted or session/ended.
	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutrichat_transitions_total",
			Help: "Successful request and session state transitions.",
		},
		[]string{"entity", "transition"},
	)

	// notificationsSent counts notification writes by type and outcome
	// (ok|error).
	notificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutrichat_notifications_total",
			Help: "Notification writes by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	// eventsPublished counts domain event deliveries by outcome.
	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutrichat_events_published_total",
			Help: "Domain events handed to the publisher by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(transitions, notificationsSent, eventsPublished)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
