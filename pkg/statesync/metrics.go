package statesync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	snapshotsSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "netplay",
		Subsystem: "sync",
		Name:      "snapshots_sent_total",
		Help:      "Snapshots produced by the host.",
	})
	snapshotsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "netplay",
		Subsystem: "sync",
		Name:      "snapshots_received_total",
		Help:      "Snapshots seen by a client, by outcome.",
	}, []string{"outcome"})
	gridSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "netplay",
		Subsystem: "sync",
		Name:      "grid_updates_total",
		Help:      "Grid updates sent, by kind.",
	}, []string{"kind"})
)
