package rtpcore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var jitterBufferDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "corevox",
	Subsystem: "rtpcore",
	Name:      "jitter_buffer_depth",
	Help:      "Packets currently buffered across jitter buffers.",
})
