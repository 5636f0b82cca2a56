package watcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "httpgate_watch_events_total",
		Help: "Events delivered to watch handlers by watcher and event type.",
	}, []string{"watcher", "type"})

	restartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "httpgate_watcher_restarts_total",
		Help: "Number of times a watcher was restarted after a failure.",
	}, []string{"watcher"})
)
