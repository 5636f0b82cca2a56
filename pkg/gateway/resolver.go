package gateway

import (
	"log/slog"

	"github.com/labring/httpgate/pkg/registry"
)

// Result is the outcome of a backend lookup.
type Result int

const (
	// ResultOK means the tenant is known and has a pod address.
	ResultOK Result = iota
	// ResultNotFound means the tenant id is not registered.
	ResultNotFound
	// ResultNotRunning means the tenant is registered but has no pod address.
	ResultNotRunning
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultNotFound:
		return "not_found"
	case ResultNotRunning:
		return "not_running"
	default:
		return "unknown"
	}
}

// Backend is a resolved upstream address.
type Backend struct {
	IP   string
	Port uint16
}

// Resolver maps a tenant id to the address of its pod using the registry.
type Resolver struct {
	registry *registry.Registry
	logger   *slog.Logger
}

// NewResolver creates a Resolver reading from reg.
func NewResolver(reg *registry.Registry, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{registry: reg, logger: logger}
}

// Resolve performs the two-step lookup tenant id -> Devbox -> pod IP.
func (r *Resolver) Resolve(tenantID string, port uint16) (Backend, Result) {
	info, ok := r.registry.GetTenant(tenantID)
	if !ok {
		return Backend{}, ResultNotFound
	}

	ip, ok := r.registry.GetPodAddress(info.Namespace, info.DevboxName)
	if !ok {
		return Backend{}, ResultNotRunning
	}

	r.logger.Debug("resolved backend",
		"tenantID", tenantID,
		"namespace", info.Namespace,
		"devboxName", info.DevboxName,
		"podIP", ip,
		"port", port,
	)
	return Backend{IP: ip, Port: port}, ResultOK
}
