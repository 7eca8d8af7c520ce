// File: mux/client.go
// Client is the connection-multiplexer's view of one accepted peer.
package mux

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/duplexsock/duplexsock/wsproto"
)

// Kind is the protocol a Client's stream has been sniffed as.
type Kind int

const (
	KindUnknown Kind = iota
	KindHTTP
	KindWS
)

func (k Kind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindWS:
		return "ws"
	default:
		return "unknown"
	}
}

// Client is a connected peer: an opaque id, its byte-stream handle,
// the sniffed protocol kind, a scratch map for handler-defined state,
// and the remote address (possibly rewritten from trusted-proxy
// headers).
type Client struct {
	ID         string
	Conn       net.Conn
	fd         uintptr
	Kind       Kind
	Scratch    map[string]any
	RemoteAddr string

	residual      []byte
	reassembler   *wsproto.Reassembler
	handshakeDone bool
	connectFired  bool
	acceptedAt    time.Time
}

var clientIDCounter uint64

// newClientID builds a globally unique, stable-for-connection-lifetime
// id: timestamp + monotonic counter + random suffix.
func newClientID() string {
	n := atomic.AddUint64(&clientIDCounter, 1)
	var suffix [4]byte
	_, _ = rand.Read(suffix[:])
	return fmt.Sprintf("%d-%d-%s", time.Now().UnixNano(), n, hex.EncodeToString(suffix[:]))
}

func newClient(conn net.Conn, fd uintptr, maxMessageSize int) *Client {
	return &Client{
		ID:            newClientID(),
		Conn:          conn,
		fd:            fd,
		Kind:          KindUnknown,
		Scratch:       make(map[string]any),
		RemoteAddr:    conn.RemoteAddr().String(),
		reassembler:   wsproto.NewReassembler(maxMessageSize),
		handshakeDone: false,
		acceptedAt:    time.Now(),
	}
}
