package srtp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	authFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "corevox",
		Subsystem: "srtp",
		Name:      "auth_failures_total",
		Help:      "SRTP/SRTCP packets dropped for failing HMAC authentication.",
	})

	replayRejectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "corevox",
		Subsystem: "srtp",
		Name:      "replay_rejects_total",
		Help:      "SRTP/SRTCP packets dropped by the replay window.",
	})
)
