// File: httpproto/response.go
// Response construction rules: a string handler return becomes an HTML
// body; a struct becomes JSON; a pre-built Response is emitted
// verbatim; nil becomes 404.
package httpproto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// Response is a fully built HTTP response ready to serialize to the
// wire.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// NewResponse builds a Response with the given status and body,
// defaulting Content-Type to contentType if set.
func NewResponse(status int, contentType string, body []byte) *Response {
	h := make(http.Header)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &Response{Status: status, Header: h, Body: body}
}

// NotFound is the canned 404 response used when no route matches or a
// handler returns nil.
func NotFound() *Response {
	return NewResponse(http.StatusNotFound, "text/plain; charset=utf-8", []byte("404 not found"))
}

// FromHandlerResult converts a handler's return value into a Response.
func FromHandlerResult(v any) (*Response, error) {
	switch t := v.(type) {
	case nil:
		return NotFound(), nil
	case *Response:
		return t, nil
	case string:
		return NewResponse(http.StatusOK, "text/html; charset=utf-8", []byte(t)), nil
	default:
		body, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		return NewResponse(http.StatusOK, "application/json", body), nil
	}
}

// Write serializes resp as "status line + headers + blank line + body"
// onto w.
func (resp *Response) Write(w *bytes.Buffer) {
	fmt.Fprintf(w, "HTTP/1.1 %d %s\r\n", resp.Status, http.StatusText(resp.Status))
	if resp.Header.Get("Content-Length") == "" {
		resp.Header.Set("Content-Length", fmt.Sprintf("%d", len(resp.Body)))
	}
	if resp.Header.Get("Connection") == "" {
		resp.Header.Set("Connection", "close")
	}
	for k, vs := range resp.Header {
		for _, v := range vs {
			fmt.Fprintf(w, "%s: %s\r\n", k, v)
		}
	}
	w.WriteString("\r\n")
	w.Write(resp.Body)
}

// Bytes renders resp to a byte slice.
func (resp *Response) Bytes() []byte {
	var buf bytes.Buffer
	resp.Write(&buf)
	return buf.Bytes()
}
