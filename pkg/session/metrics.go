package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var stateTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "corevox",
	Subsystem: "session",
	Name:      "state_transitions_total",
	Help:      "Session state machine transitions, by source and destination state.",
}, []string{"from", "to"})
