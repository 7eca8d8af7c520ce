// Package router holds the WS event table, HTTP route table, special
// (connect/disconnect) handler lists, and the onion-style middleware
// composition around each. Registration uses a builder API
// (OnEvent/OnHTTP/OnConnect/OnDisconnect) rather than reflection over
// controller structs, which composes more cleanly in Go.
package router

import (
	"encoding/json"

	"github.com/duplexsock/duplexsock/httpproto"
)

// WSHandlerFunc handles one decoded WebSocket event for clientID.
type WSHandlerFunc func(clientID string, data json.RawMessage) (any, error)

// WSMiddleware wraps a WSHandlerFunc with additional behavior; it must
// call next to continue the chain.
type WSMiddleware func(next WSHandlerFunc) WSHandlerFunc

// HTTPHandlerFunc handles one matched HTTP request.
type HTTPHandlerFunc func(req *httpproto.Request) (any, error)

// HTTPMiddleware wraps an HTTPHandlerFunc.
type HTTPMiddleware func(next HTTPHandlerFunc) HTTPHandlerFunc

// SpecialHandlerFunc handles a connect/disconnect lifecycle event.
type SpecialHandlerFunc func(clientID string) error

// SpecialMiddleware wraps a SpecialHandlerFunc.
type SpecialMiddleware func(next SpecialHandlerFunc) SpecialHandlerFunc

type wsRoute struct {
	handler     WSHandlerFunc
	middlewares []string
	exclusions  map[string]struct{}
}

type httpRoute struct {
	method      string
	pattern     string
	handler     HTTPHandlerFunc
	middlewares []string
	exclusions  map[string]struct{}
}

type specialEntry struct {
	handler     SpecialHandlerFunc
	middlewares []string
	exclusions  map[string]struct{}
}

// RouteOption customizes a single registration's middleware behavior.
type RouteOption func(*routeOpts)

type routeOpts struct {
	middlewares []string
	exclusions  map[string]struct{}
}

// WithMiddlewares appends named per-route middlewares, applied
// innermost-last in the effective chain.
func WithMiddlewares(names ...string) RouteOption {
	return func(o *routeOpts) { o.middlewares = append(o.middlewares, names...) }
}

// ExcludeGlobal excludes named global middlewares from this route's
// effective chain.
func ExcludeGlobal(names ...string) RouteOption {
	return func(o *routeOpts) {
		if o.exclusions == nil {
			o.exclusions = make(map[string]struct{}, len(names))
		}
		for _, n := range names {
			o.exclusions[n] = struct{}{}
		}
	}
}

func collectOpts(opts []RouteOption) routeOpts {
	var o routeOpts
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
