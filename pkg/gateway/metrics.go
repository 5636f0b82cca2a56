package gateway

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeRouted     = "routed"
	outcomeNotFound   = "not_found"
	outcomeNotRunning = "not_running"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "httpgate_requests_total",
		Help: "Requests by routing outcome.",
	}, []string{"outcome"})

	proxyErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "httpgate_proxy_errors_total",
		Help: "Failed proxy attempts by attributed source and response code. Code 0 means no response was sent.",
	}, []string{"source", "code"})
)

func countProxyError(source Source, code int) {
	proxyErrorsTotal.WithLabelValues(source.String(), strconv.Itoa(code)).Inc()
}
