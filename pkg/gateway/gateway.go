// Package gateway routes inbound requests to devbox pods. A request's Host
// names the tenant and port, the registry supplies the pod IP, and the
// request is forwarded over HTTP/1.1 or h2c depending on its protocol.
package gateway

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/labring/httpgate/pkg/registry"
	"github.com/labring/httpgate/pkg/tenancy"
)

// DefaultErrorTag prefixes the body of proxy failure responses.
const DefaultErrorTag = "httpgate"

// Config holds the routing and upstream settings of a Gateway.
type Config struct {
	Host        tenancy.HostConfig
	ErrorTag    string
	DialTimeout time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Host:        tenancy.DefaultHostConfig(),
		ErrorTag:    DefaultErrorTag,
		DialTimeout: DefaultDialTimeout,
	}
}

// Gateway is the http.Handler for proxied traffic.
type Gateway struct {
	parser    *tenancy.HostParser
	resolver  *Resolver
	transport *upstreamTransport
	httpProxy *httputil.ReverseProxy
	grpcProxy *httputil.ReverseProxy
	errorTag  string
	logger    *slog.Logger
}

// New creates a Gateway reading routes from reg.
func New(reg *registry.Registry, cfg Config, logger *slog.Logger) (*Gateway, error) {
	if reg == nil {
		return nil, errors.New("gateway: registry is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	parser, err := tenancy.NewHostParser(cfg.Host)
	if err != nil {
		return nil, err
	}
	if cfg.ErrorTag == "" {
		cfg.ErrorTag = DefaultErrorTag
	}

	g := &Gateway{
		parser:    parser,
		resolver:  NewResolver(reg, logger),
		transport: newUpstreamTransport(cfg.DialTimeout),
		errorTag:  cfg.ErrorTag,
		logger:    logger,
	}
	g.httpProxy = g.newReverseProxy(0)
	// gRPC streams are flushed as soon as data arrives.
	g.grpcProxy = g.newReverseProxy(-1)
	return g, nil
}

func (g *Gateway) newReverseProxy(flushInterval time.Duration) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite:       rewrite,
		Transport:     g.transport,
		FlushInterval: flushInterval,
		ErrorHandler:  g.handleProxyError,
		ErrorLog:      slog.NewLogLogger(g.logger.Handler(), slog.LevelWarn),
	}
}

// rewrite points the outbound request at the routed pod and keeps the
// original Host header.
func rewrite(pr *httputil.ProxyRequest) {
	route, _ := RouteFromContext(pr.In.Context())
	pr.Out.URL.Scheme = "http"
	pr.Out.URL.Host = route.Address()
	pr.Out.Host = pr.In.Host
	if xff, ok := pr.In.Header["X-Forwarded-For"]; ok {
		pr.Out.Header["X-Forwarded-For"] = xff
	}
	pr.SetXForwarded()
}

// ServeHTTP parses the host, classifies the protocol, resolves the backend
// and either answers directly or forwards the request.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	target, err := g.parser.Parse(r.Host)
	if err != nil {
		g.logger.Warn("unroutable host", "host", r.Host, "path", r.URL.Path)
		requestsTotal.WithLabelValues(outcomeNotFound).Inc()
		writeNotFound(w)
		return
	}

	protocol := tenancy.ClassifyProtocol(r)

	backend, result := g.resolver.Resolve(target.TenantID, target.Port)
	switch result {
	case ResultNotFound:
		g.logger.Warn("devbox not found", "host", r.Host, "tenantID", target.TenantID)
		requestsTotal.WithLabelValues(outcomeNotFound).Inc()
		writeNotFound(w)
		return
	case ResultNotRunning:
		g.logger.Warn("devbox not running", "host", r.Host, "tenantID", target.TenantID)
		requestsTotal.WithLabelValues(outcomeNotRunning).Inc()
		writeNotRunning(w)
		return
	}

	route := Route{
		TenantID:    target.TenantID,
		BackendIP:   backend.IP,
		BackendPort: backend.Port,
		Protocol:    protocol,
	}
	g.logger.Info("routing request",
		"host", r.Host,
		"tenantID", route.TenantID,
		"backend", route.Address(),
		"protocol", route.Protocol.String(),
	)
	requestsTotal.WithLabelValues(outcomeRouted).Inc()

	r = r.WithContext(WithRoute(r.Context(), route))
	if protocol == tenancy.ProtocolGRPC {
		g.grpcProxy.ServeHTTP(w, r)
		return
	}
	g.httpProxy.ServeHTTP(w, r)
}

func (g *Gateway) handleProxyError(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusCode(err)
	source := SourceUnset
	var f *Failure
	if errors.As(err, &f) {
		source = f.Source
	}
	countProxyError(source, code)

	route, _ := RouteFromContext(r.Context())
	if code == 0 {
		g.logger.Debug("downstream gone, dropping response",
			"tenantID", route.TenantID,
			"backend", route.Address(),
			"error", err,
		)
		panic(http.ErrAbortHandler)
	}

	g.logger.Error("proxy failed",
		"tenantID", route.TenantID,
		"backend", route.Address(),
		"protocol", route.Protocol.String(),
		"source", source.String(),
		"code", code,
		"error", err,
	)
	writeFailure(w, code, g.errorTag, err)
}

// Close releases idle upstream connections.
func (g *Gateway) Close() {
	g.transport.CloseIdleConnections()
}
