package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"github.com/labring/httpgate/pkg/tenancy"
)

// DefaultDialTimeout bounds connection establishment to a backend pod.
const DefaultDialTimeout = 10 * time.Second

// upstreamTransport dispatches each routed request to a plaintext HTTP/1.1
// transport or to an h2c transport depending on the classified protocol.
type upstreamTransport struct {
	http1 *http.Transport
	h2c   *http2.Transport
}

func newUpstreamTransport(dialTimeout time.Duration) *upstreamTransport {
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}
	dialer := &net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: 30 * time.Second,
	}

	return &upstreamTransport{
		http1: &http.Transport{
			DialContext:         dialer.DialContext,
			ForceAttemptHTTP2:   false,
			TLSNextProto:        map[string]func(string, *tls.Conn) http.RoundTripper{},
			MaxIdleConns:        1024,
			MaxIdleConnsPerHost: 64,
			IdleConnTimeout:     90 * time.Second,
		},
		h2c: &http2.Transport{
			AllowHTTP: true,
			// Prior knowledge h2c: dial plaintext even though the transport
			// asks for TLS.
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return dialer.DialContext(ctx, network, addr)
			},
			ReadIdleTimeout: 30 * time.Second,
			PingTimeout:     15 * time.Second,
		},
	}
}

func (t *upstreamTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	route, ok := RouteFromContext(req.Context())
	if !ok {
		return nil, &Failure{Source: SourceInternal, Err: errors.New("request has no route")}
	}

	if req.Body != nil && req.Body != http.NoBody {
		req.Body = downstreamBody{ReadCloser: req.Body}
	}

	var (
		resp *http.Response
		err  error
	)
	if route.Protocol == tenancy.ProtocolGRPC {
		resp, err = t.h2c.RoundTrip(req)
	} else {
		resp, err = t.http1.RoundTrip(req)
	}
	if err != nil {
		return nil, upstreamFailure(req, err)
	}
	return resp, nil
}

// CloseIdleConnections closes idle connections on both transports.
func (t *upstreamTransport) CloseIdleConnections() {
	t.http1.CloseIdleConnections()
	t.h2c.CloseIdleConnections()
}
