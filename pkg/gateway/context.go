package gateway

import (
	"context"
	"net"
	"strconv"

	"github.com/labring/httpgate/pkg/tenancy"
)

// ctxKey is an unexported type used as the context key for Route.
type ctxKey struct{}

// Route is the routing decision for a single request.
type Route struct {
	TenantID    string
	BackendIP   string
	BackendPort uint16
	Protocol    tenancy.Protocol
}

// Address returns the backend as host:port.
func (r Route) Address() string {
	return net.JoinHostPort(r.BackendIP, strconv.Itoa(int(r.BackendPort)))
}

// WithRoute returns a new context carrying the given Route.
func WithRoute(ctx context.Context, route Route) context.Context {
	return context.WithValue(ctx, ctxKey{}, route)
}

// RouteFromContext retrieves the Route from the context.
// Returns the zero value and false if no route is set.
func RouteFromContext(ctx context.Context) (Route, bool) {
	route, ok := ctx.Value(ctxKey{}).(Route)
	return route, ok
}
