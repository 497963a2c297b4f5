package transaction

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var timerFiresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "corevox",
	Subsystem: "transaction",
	Name:      "timer_fires_total",
	Help:      "SIP transaction timers that have fired, by timer name.",
}, []string{"timer"})
