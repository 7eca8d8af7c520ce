package router

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/duplexsock/duplexsock/httpproto"
	"github.com/duplexsock/duplexsock/logging"
	"github.com/duplexsock/duplexsock/wserr"
)

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Router holds the three route tables and the global middleware
// stacks, and composes the onion chain around every dispatch.
type Router struct {
	mu sync.RWMutex

	log logging.Logger

	wsGlobals   []string
	wsNamed     map[string]WSMiddleware
	wsRoutes    map[string]wsRoute
	wsOrder     []string

	httpGlobals []string
	httpNamed   map[string]HTTPMiddleware
	httpRoutes  []httpRoute // registration order; exact match checked first in Dispatch

	specialGlobals map[string][]string
	specialNamed   map[string]SpecialMiddleware
	connect        []specialEntry
	disconnect     []specialEntry

	compiled map[string]*regexp.Regexp // pattern -> compiled regex, memoized
}

// New builds an empty Router.
func New(log logging.Logger) *Router {
	return &Router{
		log:            log,
		wsNamed:        make(map[string]WSMiddleware),
		wsRoutes:       make(map[string]wsRoute),
		httpNamed:      make(map[string]HTTPMiddleware),
		specialGlobals: make(map[string][]string),
		specialNamed:   make(map[string]SpecialMiddleware),
		compiled:       make(map[string]*regexp.Regexp),
	}
}

// UseWS registers a named global WS middleware, appended to the global
// stack in call order.
func (r *Router) UseWS(name string, mw WSMiddleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wsNamed[name] = mw
	r.wsGlobals = append(r.wsGlobals, name)
}

// UseHTTP registers a named global HTTP middleware.
func (r *Router) UseHTTP(name string, mw HTTPMiddleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.httpNamed[name] = mw
	r.httpGlobals = append(r.httpGlobals, name)
}

// UseSpecial registers a named global middleware applied to both
// connect and disconnect dispatch.
func (r *Router) UseSpecial(name string, mw SpecialMiddleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specialNamed[name] = mw
	r.specialGlobals["connect"] = append(r.specialGlobals["connect"], name)
	r.specialGlobals["disconnect"] = append(r.specialGlobals["disconnect"], name)
}

// OnEvent registers a WS handler for event. Later registrations
// overwrite earlier ones for the same event name.
func (r *Router) OnEvent(event string, h WSHandlerFunc, opts ...RouteOption) {
	o := collectOpts(opts)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.wsRoutes[event]; !exists {
		r.wsOrder = append(r.wsOrder, event)
	}
	r.wsRoutes[event] = wsRoute{handler: h, middlewares: o.middlewares, exclusions: o.exclusions}
}

// Events returns the registered WS event names in registration order.
func (r *Router) Events() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.wsOrder))
	copy(out, r.wsOrder)
	return out
}

// OnHTTP registers an HTTP handler for method+pattern. pattern may
// contain {name} placeholders matched against a single path segment.
func (r *Router) OnHTTP(method, pattern string, h HTTPHandlerFunc, opts ...RouteOption) {
	o := collectOpts(opts)
	method = strings.ToUpper(method)
	r.mu.Lock()
	defer r.mu.Unlock()
	route := httpRoute{method: method, pattern: pattern, handler: h, middlewares: o.middlewares, exclusions: o.exclusions}
	for i, existing := range r.httpRoutes {
		if existing.method == method && existing.pattern == pattern {
			r.httpRoutes[i] = route
			return
		}
	}
	r.httpRoutes = append(r.httpRoutes, route)
}

// Routes returns the registered "METHOD pattern" strings in
// registration order.
func (r *Router) Routes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.httpRoutes))
	for _, rt := range r.httpRoutes {
		out = append(out, rt.method+" "+rt.pattern)
	}
	return out
}

// OnConnect appends a connect special handler.
func (r *Router) OnConnect(h SpecialHandlerFunc, opts ...RouteOption) {
	o := collectOpts(opts)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connect = append(r.connect, specialEntry{handler: h, middlewares: o.middlewares, exclusions: o.exclusions})
}

// OnDisconnect appends a disconnect special handler.
func (r *Router) OnDisconnect(h SpecialHandlerFunc, opts ...RouteOption) {
	o := collectOpts(opts)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnect = append(r.disconnect, specialEntry{handler: h, middlewares: o.middlewares, exclusions: o.exclusions})
}

// effectiveWS computes (globals ∖ exclusions) ++ perRoute for WS.
func (r *Router) effectiveWS(exclusions map[string]struct{}, perRoute []string) []WSMiddleware {
	chain := make([]WSMiddleware, 0, len(r.wsGlobals)+len(perRoute))
	for _, name := range r.wsGlobals {
		if _, excluded := exclusions[name]; excluded {
			continue
		}
		chain = append(chain, r.wsNamed[name])
	}
	for _, name := range perRoute {
		chain = append(chain, r.wsNamed[name])
	}
	return chain
}

func (r *Router) effectiveHTTP(exclusions map[string]struct{}, perRoute []string) []HTTPMiddleware {
	chain := make([]HTTPMiddleware, 0, len(r.httpGlobals)+len(perRoute))
	for _, name := range r.httpGlobals {
		if _, excluded := exclusions[name]; excluded {
			continue
		}
		chain = append(chain, r.httpNamed[name])
	}
	for _, name := range perRoute {
		chain = append(chain, r.httpNamed[name])
	}
	return chain
}

func (r *Router) effectiveSpecial(kind string, exclusions map[string]struct{}, perRoute []string) []SpecialMiddleware {
	globals := r.specialGlobals[kind]
	chain := make([]SpecialMiddleware, 0, len(globals)+len(perRoute))
	for _, name := range globals {
		if _, excluded := exclusions[name]; excluded {
			continue
		}
		chain = append(chain, r.specialNamed[name])
	}
	for _, name := range perRoute {
		chain = append(chain, r.specialNamed[name])
	}
	return chain
}

// composeWS builds m1(m2(m3(handler))) from chain applied onion-style:
// the first middleware in chain is outermost.
func composeWS(chain []WSMiddleware, handler WSHandlerFunc) WSHandlerFunc {
	h := handler
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	return h
}

func composeHTTP(chain []HTTPMiddleware, handler HTTPHandlerFunc) HTTPHandlerFunc {
	h := handler
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	return h
}

func composeSpecial(chain []SpecialMiddleware, handler SpecialHandlerFunc) SpecialHandlerFunc {
	h := handler
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	return h
}

// DispatchWS looks up event and invokes its composed middleware chain.
// A missing route is a no-op. Handler errors and panics are recovered,
// logged with clientID/route context, and returned as a handler-class
// error; a panic never propagates into the caller's event loop.
func (r *Router) DispatchWS(clientID, event string, data json.RawMessage) (result any, err error) {
	r.mu.RLock()
	route, ok := r.wsRoutes[event]
	if !ok {
		r.mu.RUnlock()
		return nil, nil
	}
	chain := r.effectiveWS(route.exclusions, route.middlewares)
	handler := route.handler
	r.mu.RUnlock()

	defer func() {
		if p := recover(); p != nil {
			werr := wserr.Handler(clientID, event, fmt.Errorf("panic: %v", p))
			r.log.With(clientID).Error().Err(werr).Str("route", event).Msg("ws handler panic recovered")
			err = werr
		}
	}()

	composed := composeWS(chain, handler)
	result, err = composed(clientID, data)
	if err != nil {
		werr := wserr.Handler(clientID, event, err)
		r.log.With(clientID).Error().Err(werr).Str("route", event).Msg("ws handler error")
		return nil, werr
	}
	return result, nil
}

// matchHTTP finds the route for method+path: exact "METHOD path" first,
// else first registration-order pattern match for the same method with
// {name} placeholders bound.
func (r *Router) matchHTTP(method, path string) (httpRoute, map[string]string, bool) {
	method = strings.ToUpper(method)

	for _, rt := range r.httpRoutes {
		if rt.method == method && rt.pattern == path {
			return rt, nil, true
		}
	}

	for _, rt := range r.httpRoutes {
		if rt.method != method {
			continue
		}
		if !strings.Contains(rt.pattern, "{") {
			continue
		}
		re := r.compilePattern(rt.pattern)
		m := re.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		params := make(map[string]string, len(m)-1)
		for i, name := range re.SubexpNames() {
			if i == 0 || name == "" {
				continue
			}
			params[name] = m[i]
		}
		return rt, params, true
	}

	return httpRoute{}, nil, false
}

// compilePattern returns the memoized regex for pattern. The caller
// must hold r.mu for writing.
func (r *Router) compilePattern(pattern string) *regexp.Regexp {
	if re, ok := r.compiled[pattern]; ok {
		return re
	}

	expr := "^" + placeholderRe.ReplaceAllStringFunc(pattern, func(tok string) string {
		name := placeholderRe.FindStringSubmatch(tok)[1]
		return "(?P<" + name + ">[^/]+)"
	}) + "$"
	re := regexp.MustCompile(expr)
	r.compiled[pattern] = re
	return re
}

// DispatchHTTP matches req to a route and invokes its composed
// middleware chain. A nil return (including "no match") is the
// caller's cue to respond 404.
func (r *Router) DispatchHTTP(req *httpproto.Request) (result any, err error) {
	r.mu.Lock() // matchHTTP may memoize a compiled pattern
	rt, params, ok := r.matchHTTP(req.Method, req.Path)
	if !ok {
		r.mu.Unlock()
		return nil, nil
	}
	chain := r.effectiveHTTP(rt.exclusions, rt.middlewares)
	handler := rt.handler
	r.mu.Unlock()

	if params != nil {
		req.Params = params
	}

	defer func() {
		if p := recover(); p != nil {
			werr := wserr.Handler("", req.Method+" "+req.Path, fmt.Errorf("panic: %v", p))
			r.log.Error().Err(werr).Msg("http handler panic recovered")
			err = werr
		}
	}()

	composed := composeHTTP(chain, handler)
	result, err = composed(req)
	if err != nil {
		werr := wserr.Handler("", req.Method+" "+req.Path, err)
		r.log.Error().Err(werr).Msg("http handler error")
		return nil, werr
	}
	return result, nil
}

// DispatchSpecial invokes every connect or disconnect handler in
// registration order. Per-handler errors (including recovered panics)
// are logged and never abort the enumeration.
func (r *Router) DispatchSpecial(kind, clientID string) {
	r.mu.RLock()
	var entries []specialEntry
	switch kind {
	case "connect":
		entries = append(entries, r.connect...)
	case "disconnect":
		entries = append(entries, r.disconnect...)
	}
	r.mu.RUnlock()

	for _, entry := range entries {
		r.mu.RLock()
		chain := r.effectiveSpecial(kind, entry.exclusions, entry.middlewares)
		r.mu.RUnlock()
		r.invokeSpecial(kind, clientID, chain, entry.handler)
	}
}

func (r *Router) invokeSpecial(kind, clientID string, chain []SpecialMiddleware, handler SpecialHandlerFunc) {
	defer func() {
		if p := recover(); p != nil {
			werr := wserr.Handler(clientID, kind, fmt.Errorf("panic: %v", p))
			r.log.With(clientID).Error().Err(werr).Str("route", kind).Msg("special handler panic recovered")
		}
	}()
	composed := composeSpecial(chain, handler)
	if err := composed(clientID); err != nil {
		werr := wserr.Handler(clientID, kind, err)
		r.log.With(clientID).Error().Err(werr).Str("route", kind).Msg("special handler error")
	}
}
