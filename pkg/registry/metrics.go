package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tenantEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "httpgate_registry_tenants",
		Help: "Number of tenant ids currently registered.",
	})
	podAddressEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "httpgate_registry_pod_addresses",
		Help: "Number of Devbox pod addresses currently known.",
	})
	podAddressChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpgate_registry_pod_address_changes_total",
			Help: "Pod address changes by operation (set or clear). Redundant updates are not counted.",
		},
		[]string{"op"},
	)
)
