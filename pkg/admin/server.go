// Package admin serves health, readiness and metrics endpoints on a listener
// separate from proxied traffic.
package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/labring/httpgate/pkg/registry"
)

// SyncReporter is implemented by the cluster watchers.
type SyncReporter interface {
	Name() string
	Synced() bool
}

// Server exposes /livez, /healthz, /readyz and /metrics.
type Server struct {
	registry  *registry.Registry
	watchers  []SyncReporter
	startedAt time.Time
	logger    *slog.Logger
}

// NewServer creates an admin Server. Readiness requires every watcher to
// have completed its initial sync.
func NewServer(reg *registry.Registry, watchers []SyncReporter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		registry:  reg,
		watchers:  watchers,
		startedAt: time.Now(),
		logger:    logger,
	}
}

// Routes returns the admin router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthHandler)
	r.Get("/livez", s.healthHandler)
	r.Get("/readyz", s.readyHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	uptime := time.Since(s.startedAt).Round(time.Second).String()

	response := map[string]string{
		"status": "alive",
		"uptime": uptime,
	}

	_ = json.NewEncoder(w).Encode(response)
}

// readyHandler reports ready once every watcher has synced.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	allReady := true

	watchers := make(map[string]string, len(s.watchers))
	for _, wt := range s.watchers {
		if wt.Synced() {
			watchers[wt.Name()] = "synced"
		} else {
			watchers[wt.Name()] = "syncing"
			allReady = false
		}
	}

	components := map[string]any{
		"watchers": watchers,
		"registry": map[string]int{
			"tenants":      s.registry.TenantCount(),
			"podAddresses": s.registry.PodAddressCount(),
		},
	}

	status := "ready"
	if !allReady {
		status = "not_ready"
		s.logger.Debug("readiness check failed", "watchers", watchers, "requestID", middleware.GetReqID(r.Context()))
	}

	w.Header().Set("Content-Type", "application/json")

	if allReady {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	response := map[string]any{
		"status":     status,
		"components": components,
	}

	_ = json.NewEncoder(w).Encode(response)
}
