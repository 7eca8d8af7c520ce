package router_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/duplexsock/duplexsock/httpproto"
	"github.com/duplexsock/duplexsock/logging"
	"github.com/duplexsock/duplexsock/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchWSMissingRouteIsNoop(t *testing.T) {
	r := router.New(logging.Nop())
	result, err := r.DispatchWS("c1", "nope", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestDispatchWSBasic(t *testing.T) {
	r := router.New(logging.Nop())
	r.OnEvent("echo", func(clientID string, data json.RawMessage) (any, error) {
		return string(data), nil
	})
	result, err := r.DispatchWS("c1", "echo", json.RawMessage(`{"x":1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"x":1}`, result)
}

func TestDispatchWSMiddlewareOnionOrder(t *testing.T) {
	r := router.New(logging.Nop())
	var order []string
	mw := func(tag string) router.WSMiddleware {
		return func(next router.WSHandlerFunc) router.WSHandlerFunc {
			return func(clientID string, data json.RawMessage) (any, error) {
				order = append(order, tag+":before")
				v, err := next(clientID, data)
				order = append(order, tag+":after")
				return v, err
			}
		}
	}
	r.UseWS("m1", mw("m1"))
	r.UseWS("m2", mw("m2"))
	r.OnEvent("e", func(clientID string, data json.RawMessage) (any, error) {
		order = append(order, "handler")
		return nil, nil
	})
	_, err := r.DispatchWS("c1", "e", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1:before", "m2:before", "handler", "m2:after", "m1:after"}, order)
}

func TestDispatchWSExclusion(t *testing.T) {
	r := router.New(logging.Nop())
	var called []string
	r.UseWS("audit", func(next router.WSHandlerFunc) router.WSHandlerFunc {
		return func(clientID string, data json.RawMessage) (any, error) {
			called = append(called, "audit")
			return next(clientID, data)
		}
	})
	r.OnEvent("e", func(clientID string, data json.RawMessage) (any, error) {
		called = append(called, "handler")
		return nil, nil
	}, router.ExcludeGlobal("audit"))
	_, err := r.DispatchWS("c1", "e", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"handler"}, called)
}

func TestDispatchWSRecoversPanic(t *testing.T) {
	r := router.New(logging.Nop())
	r.OnEvent("boom", func(clientID string, data json.RawMessage) (any, error) {
		panic("kaboom")
	})
	result, err := r.DispatchWS("c1", "boom", nil)
	assert.Nil(t, result)
	assert.Error(t, err)
}

func TestDispatchWSHandlerErrorWrapped(t *testing.T) {
	r := router.New(logging.Nop())
	sentinel := errors.New("bad input")
	r.OnEvent("e", func(clientID string, data json.RawMessage) (any, error) {
		return nil, sentinel
	})
	_, err := r.DispatchWS("c1", "e", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
}

func TestDispatchHTTPExactMatchWinsOverPattern(t *testing.T) {
	r := router.New(logging.Nop())
	r.OnHTTP("GET", "/users/{id}", func(req *httpproto.Request) (any, error) {
		return "pattern", nil
	})
	r.OnHTTP("GET", "/users/me", func(req *httpproto.Request) (any, error) {
		return "exact", nil
	})
	result, err := r.DispatchHTTP(&httpproto.Request{Method: "GET", Path: "/users/me"})
	require.NoError(t, err)
	assert.Equal(t, "exact", result)
}

func TestDispatchHTTPPatternParams(t *testing.T) {
	r := router.New(logging.Nop())
	r.OnHTTP("GET", "/users/{id}", func(req *httpproto.Request) (any, error) {
		return map[string]string{"id": req.Param("id")}, nil
	})
	req := &httpproto.Request{Method: "GET", Path: "/users/42"}
	result, err := r.DispatchHTTP(req)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"id": "42"}, result)
	assert.Equal(t, "42", req.Param("id"))
}

func TestDispatchHTTPNoMatchReturnsNil(t *testing.T) {
	r := router.New(logging.Nop())
	result, err := r.DispatchHTTP(&httpproto.Request{Method: http.MethodGet, Path: "/nope"})
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestDispatchSpecialOrderAndIsolation(t *testing.T) {
	r := router.New(logging.Nop())
	var fired []string
	r.OnConnect(func(clientID string) error {
		fired = append(fired, "first")
		return errors.New("boom")
	})
	r.OnConnect(func(clientID string) error {
		fired = append(fired, "second")
		return nil
	})
	r.DispatchSpecial("connect", "c1")
	assert.Equal(t, []string{"first", "second"}, fired)
}

func TestRoutesAndEventsIntrospection(t *testing.T) {
	r := router.New(logging.Nop())
	r.OnEvent("echo", func(string, json.RawMessage) (any, error) { return nil, nil })
	r.OnHTTP("GET", "/x", func(*httpproto.Request) (any, error) { return nil, nil })
	assert.Equal(t, []string{"echo"}, r.Events())
	assert.Equal(t, []string{"GET /x"}, r.Routes())
}
