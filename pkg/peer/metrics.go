package peer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "netplay",
		Subsystem: "peer",
		Name:      "connections_total",
		Help:      "Peer links by negotiation outcome.",
	}, []string{"outcome"})
	disconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "netplay",
		Subsystem: "peer",
		Name:      "disconnects_total",
		Help:      "Peers lost after a failed or closed transport.",
	})
	malformed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "netplay",
		Subsystem: "peer",
		Name:      "malformed_frames_total",
		Help:      "Dropped data channel frames that could not be decoded.",
	})
)
