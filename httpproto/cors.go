// File: httpproto/cors.go
// CORS preflight and response-header logic.
package httpproto

import (
	"fmt"
	"net/http"
	"strings"
)

// CORSPolicy is the subset of config.CORS the HTTP engine needs.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAgeSeconds    int
}

// OriginAllowed reports whether origin is permitted, honoring the "*"
// wildcard.
func (p CORSPolicy) OriginAllowed(origin string) bool {
	if origin == "" {
		return false
	}
	for _, o := range p.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// Preflight builds the 204 response for an OPTIONS preflight request.
func (p CORSPolicy) Preflight(origin string) *Response {
	if !p.OriginAllowed(origin) {
		return NewResponse(http.StatusNoContent, "", nil)
	}
	resp := NewResponse(http.StatusNoContent, "", nil)
	resp.Header.Set("Access-Control-Allow-Origin", origin)
	resp.Header.Set("Access-Control-Allow-Methods", strings.Join(p.AllowedMethods, ", "))
	resp.Header.Set("Access-Control-Allow-Headers", strings.Join(p.AllowedHeaders, ", "))
	resp.Header.Set("Access-Control-Max-Age", fmt.Sprintf("%d", p.MaxAgeSeconds))
	if p.AllowCredentials {
		resp.Header.Set("Access-Control-Allow-Credentials", "true")
	}
	return resp
}

// ApplyHeaders adds CORS headers to a non-preflight response when
// origin is permitted.
func (p CORSPolicy) ApplyHeaders(resp *Response, origin string) {
	if !p.OriginAllowed(origin) {
		return
	}
	resp.Header.Set("Access-Control-Allow-Origin", origin)
	if p.AllowCredentials {
		resp.Header.Set("Access-Control-Allow-Credentials", "true")
	}
}
