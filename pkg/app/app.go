// Package app assembles httpgate: the registry, both cluster watchers, the
// proxy listener and the admin listener, and runs them until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/labring/httpgate/pkg/accesslog"
	"github.com/labring/httpgate/pkg/admin"
	"github.com/labring/httpgate/pkg/config"
	"github.com/labring/httpgate/pkg/gateway"
	"github.com/labring/httpgate/pkg/kube"
	"github.com/labring/httpgate/pkg/registry"
	"github.com/labring/httpgate/pkg/watcher"
)

// App is a fully wired httpgate instance.
type App struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *registry.Registry
	gateway  *gateway.Gateway

	devboxWatcher *watcher.Watcher[*unstructured.Unstructured]
	podWatcher    *watcher.Watcher[*corev1.Pod]

	proxyServer *http.Server
	adminServer *http.Server

	mu            sync.Mutex
	proxyListener net.Listener
	adminListener net.Listener
}

// New wires an App from cfg and the cluster clients.
func New(cfg config.Config, clients *kube.Clients, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if clients == nil || clients.Dynamic == nil || clients.Kubernetes == nil {
		return nil, errors.New("app: cluster clients are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	reg := registry.New(logger.With("component", "registry"))

	gw, err := gateway.New(reg, cfg.GatewayConfig(), logger.With("component", "gateway"))
	if err != nil {
		return nil, fmt.Errorf("creating gateway: %w", err)
	}

	watchLogger := logger.With("component", "watcher")
	devboxWatcher := watcher.NewDevboxWatcher(clients.Dynamic, cfg.DevboxGVR(), reg, watchLogger)
	podWatcher := watcher.NewPodWatcher(clients.Kubernetes, cfg.PodLabelSelector, cfg.DevboxKind, reg, watchLogger)

	accessCfg := accesslog.DefaultConfig()
	accessCfg.Enabled = cfg.AccessLog
	handler := accesslog.Middleware(accessCfg, logger.With("component", "access"))(gw)

	adminSrv := admin.NewServer(reg, []admin.SyncReporter{devboxWatcher, podWatcher}, logger.With("component", "admin"))

	return &App{
		cfg:           cfg,
		logger:        logger,
		registry:      reg,
		gateway:       gw,
		devboxWatcher: devboxWatcher,
		podWatcher:    podWatcher,
		proxyServer:   gateway.NewServer(cfg.ListenAddress, handler, cfg.ReadHeaderTimeout),
		adminServer: &http.Server{
			Addr:              cfg.AdminAddress,
			Handler:           adminSrv.Routes(),
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		},
	}, nil
}

// Registry returns the routing registry.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Listen binds the proxy and admin listeners. Run calls it when needed.
func (a *App) Listen() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.proxyListener == nil {
		l, err := net.Listen("tcp", a.cfg.ListenAddress)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", a.cfg.ListenAddress, err)
		}
		a.proxyListener = l
	}
	if a.adminListener == nil {
		l, err := net.Listen("tcp", a.cfg.AdminAddress)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", a.cfg.AdminAddress, err)
		}
		a.adminListener = l
	}
	return nil
}

// ProxyAddr returns the bound proxy address, or nil before Listen.
func (a *App) ProxyAddr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.proxyListener == nil {
		return nil
	}
	return a.proxyListener.Addr()
}

// AdminAddr returns the bound admin address, or nil before Listen.
func (a *App) AdminAddr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.adminListener == nil {
		return nil
	}
	return a.adminListener.Addr()
}

// Run serves traffic and keeps both watchers running until ctx is cancelled
// or a listener fails. Watcher failures never end Run.
func (a *App) Run(ctx context.Context) error {
	if err := a.Listen(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		watcher.Supervise(ctx, a.logger, a.devboxWatcher.Name(), a.cfg.WatcherRestartDelay, a.devboxWatcher.Run)
		return nil
	})
	g.Go(func() error {
		watcher.Supervise(ctx, a.logger, a.podWatcher.Name(), a.cfg.WatcherRestartDelay, a.podWatcher.Run)
		return nil
	})
	g.Go(func() error {
		a.logger.Info("proxy listening", "address", a.proxyListener.Addr().String())
		return serve(a.proxyServer, a.proxyListener)
	})
	g.Go(func() error {
		a.logger.Info("admin listening", "address", a.adminListener.Addr().String())
		return serve(a.adminServer, a.adminListener)
	})
	g.Go(func() error {
		<-ctx.Done()
		a.shutdown()
		return nil
	})

	return g.Wait()
}

func serve(srv *http.Server, l net.Listener) error {
	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving %s: %w", l.Addr(), err)
	}
	return nil
}

func (a *App) shutdown() {
	a.logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for name, srv := range map[string]*http.Server{"proxy": a.proxyServer, "admin": a.adminServer} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("server shutdown error", "server", name, "error", err)
				_ = srv.Close()
				return
			}
			a.logger.Debug("server stopped", "server", name, "duration", time.Since(start).String())
		}()
	}
	wg.Wait()
	a.gateway.Close()
}
