// File: mux/multiplexer.go
// Package mux implements the connection multiplexer: a single
// readiness-driven event loop owning the listening socket, every
// accepted client, and the queue poller.
package mux

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/duplexsock/duplexsock/config"
	"github.com/duplexsock/duplexsock/httpproto"
	"github.com/duplexsock/duplexsock/logging"
	"github.com/duplexsock/duplexsock/mux/reactor"
	"github.com/duplexsock/duplexsock/registry"
	"github.com/duplexsock/duplexsock/router"
	"github.com/duplexsock/duplexsock/wserr"
	"github.com/duplexsock/duplexsock/wsproto"
)

const readChunkSize = 8 * 1024

// Multiplexer owns the listener, the live client set, and the queue
// poller, and drives the event loop.
type Multiplexer struct {
	cfg      *config.Config
	log      logging.Logger
	router   *router.Router
	registry *registry.Registry
	queue    *registry.Queue
	cors     httpproto.CORSPolicy

	listener   net.Listener
	listenerFD uintptr
	reactor    reactor.Reactor

	mu        sync.Mutex // guards clients/byFD for Send/Broadcast called from worker goroutines
	clients   map[string]*Client
	byFD      map[uintptr]*Client
	lastPoll  time.Time
	startedAt time.Time
	pool      *workerPool
	bufs      *readBufPool

	// disconnectRequests lets broadcast worker goroutines ask the event
	// loop to disconnect a client, since reactor.Reactor is only safe to
	// touch from the loop goroutine, which owns the reactor and client
	// set exclusively.
	disconnectRequests chan string
}

// New builds a Multiplexer. The listener is not yet bound; call Run to
// bind and start the event loop.
func New(cfg *config.Config, log logging.Logger, rt *router.Router, reg *registry.Registry) *Multiplexer {
	return &Multiplexer{
		cfg:      cfg,
		log:      log,
		router:   rt,
		registry: reg,
		queue:    registry.NewQueue(cfg.QueueFile, log),
		cors: httpproto.CORSPolicy{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   cfg.CORS.AllowedMethods,
			AllowedHeaders:   cfg.CORS.AllowedHeaders,
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAgeSeconds:    cfg.CORS.MaxAge,
		},
		clients:            make(map[string]*Client),
		byFD:               make(map[uintptr]*Client),
		pool:               newWorkerPool(4),
		bufs:               newReadBufPool(readChunkSize),
		disconnectRequests: make(chan string, 256),
	}
}

// requestDisconnect asks the event loop to disconnect clientID on its
// next iteration. Safe to call from any goroutine, including broadcast
// worker-pool tasks.
func (m *Multiplexer) requestDisconnect(clientID string) {
	select {
	case m.disconnectRequests <- clientID:
	default:
		m.log.Warn().Str("client_id", clientID).Msg("mux: disconnect request queue full, dropping")
	}
}

func (m *Multiplexer) drainDisconnectRequests() {
	for {
		select {
		case id := <-m.disconnectRequests:
			m.Disconnect(id)
		default:
			return
		}
	}
}

// sweepHandshakeTimeouts disconnects any connection still sniffing or
// mid-WS-handshake past cfg.HandshakeTimeout, so a peer that opens a
// socket and never completes the upgrade cannot hold a slot forever.
func (m *Multiplexer) sweepHandshakeTimeouts() {
	if m.cfg.HandshakeTimeout <= 0 {
		return
	}
	now := time.Now()
	m.mu.Lock()
	var stale []string
	for id, c := range m.clients {
		if c.Kind == KindHTTP || c.handshakeDone {
			continue
		}
		if now.Sub(c.acceptedAt) >= m.cfg.HandshakeTimeout {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	for _, id := range stale {
		m.log.With(id).Warn().Msg("mux: handshake timeout, disconnecting")
		m.Disconnect(id)
	}
}

func fdOf(syscallConn syscall.Conn) (uintptr, error) {
	raw, err := syscallConn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd uintptr
	ctrlErr := raw.Control(func(f uintptr) { fd = f })
	if ctrlErr != nil {
		return 0, ctrlErr
	}
	return fd, nil
}

// Run binds the listener and drives the event loop until ctx is
// cancelled or a fatal setup error occurs.
func (m *Multiplexer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", m.cfg.Addr())
	if err != nil {
		return wserr.Setup(fmt.Errorf("mux: listen %s: %w", m.cfg.Addr(), err))
	}
	m.listener = ln
	defer ln.Close()

	tcpLn, ok := ln.(syscall.Conn)
	if !ok {
		return wserr.Setup(errors.New("mux: listener does not expose a raw fd on this platform"))
	}
	fd, err := fdOf(tcpLn)
	if err != nil {
		return wserr.Setup(fmt.Errorf("mux: listener fd: %w", err))
	}
	m.listenerFD = fd

	rx, err := reactor.New()
	if err != nil {
		return wserr.Setup(fmt.Errorf("mux: reactor init: %w", err))
	}
	m.reactor = rx
	defer rx.Close()

	if err := m.reactor.Add(m.listenerFD); err != nil {
		return wserr.Setup(fmt.Errorf("mux: register listener: %w", err))
	}

	m.startedAt = time.Now()
	m.lastPoll = time.Now()

	m.log.Info().Str("addr", m.cfg.Addr()).Msg("mux: event loop started")

	timeoutMs := int(m.cfg.ReadinessTimeout / time.Millisecond)
	if timeoutMs <= 0 {
		timeoutMs = 200
	}
	pollInterval := m.cfg.QueuePollInterval
	if pollInterval <= 0 {
		pollInterval = 200 * time.Millisecond
	}

	for {
		select {
		case <-ctx.Done():
			m.shutdownAll()
			m.pool.close()
			return nil
		default:
		}

		m.drainDisconnectRequests()
		m.sweepHandshakeTimeouts()

		if time.Since(m.lastPoll) >= pollInterval {
			if err := m.queue.Poll(m); err != nil {
				m.log.Warn().Err(err).Msg("mux: queue poll failed, backing off")
				time.Sleep(100 * time.Millisecond)
			}
			m.lastPoll = time.Now()
		}

		ready, err := m.reactor.Poll(timeoutMs)
		if err != nil {
			m.log.Warn().Err(err).Msg("mux: reactor poll failed, backing off")
			time.Sleep(100 * time.Millisecond)
			continue
		}

		for _, fd := range ready {
			if fd == m.listenerFD {
				m.acceptOne()
				continue
			}
			m.readOne(fd)
		}
	}
}

func (m *Multiplexer) acceptOne() {
	conn, err := m.listener.Accept()
	if err != nil {
		return
	}
	sc, ok := conn.(syscall.Conn)
	if !ok {
		conn.Close()
		return
	}
	fd, err := fdOf(sc)
	if err != nil {
		conn.Close()
		return
	}
	if err := m.reactor.Add(fd); err != nil {
		conn.Close()
		return
	}

	c := newClient(conn, fd, m.cfg.MaxMessageSize)
	c.RemoteAddr = m.rewriteRemoteAddr(conn.RemoteAddr().String(), nil)
	m.registry.JoinNamespace(c.ID, registry.DefaultNamespace)

	m.mu.Lock()
	m.clients[c.ID] = c
	m.byFD[fd] = c
	m.mu.Unlock()
}

func (m *Multiplexer) rewriteRemoteAddr(remote string, header map[string][]string) string {
	if len(m.cfg.TrustedProxies) == 0 || header == nil {
		return remote
	}
	for _, trusted := range m.cfg.TrustedProxies {
		if trusted != remote {
			continue
		}
		if xff := header["X-Forwarded-For"]; len(xff) > 0 {
			return xff[0]
		}
		if xri := header["X-Real-Ip"]; len(xri) > 0 {
			return xri[0]
		}
	}
	return remote
}

func (m *Multiplexer) readOne(fd uintptr) {
	m.mu.Lock()
	c, ok := m.byFD[fd]
	m.mu.Unlock()
	if !ok {
		return
	}

	buf := m.bufs.get()
	n, err := c.Conn.Read(buf)
	if err != nil || n == 0 {
		m.bufs.put(buf)
		m.Disconnect(c.ID)
		return
	}
	c.residual = append(c.residual, buf[:n]...)
	m.bufs.put(buf)

	if c.Kind == KindUnknown {
		kind := Sniff(c.residual)
		if kind == KindUnknown {
			if len(c.residual) > readChunkSize {
				m.log.With(c.ID).Warn().Msg("mux: unrecognized protocol, disconnecting")
				m.Disconnect(c.ID)
			}
			return
		}
		c.Kind = kind
	}

	switch c.Kind {
	case KindHTTP:
		m.handleHTTP(c)
	case KindWS:
		if !c.handshakeDone {
			m.handleHandshake(c)
			return
		}
		m.handleWSData(c)
	}
}

func (m *Multiplexer) handleHandshake(c *Client) {
	hs, err := wsproto.ParseHandshakeRequest(bufReaderOf(c.residual))
	if err != nil {
		// Incomplete request across multiple reads; wait for more data.
		return
	}
	c.residual = nil
	c.RemoteAddr = m.rewriteRemoteAddr(c.RemoteAddr, hs.Header)

	if !wsproto.OriginAllowed(hs.Origin, m.cfg.CORS.AllowedOrigins) {
		c.Conn.Write(wsproto.BuildErrorResponse(403, "origin not allowed"))
		m.Disconnect(c.ID)
		return
	}
	if !wsproto.CheckAuthKey(hs.Query, m.cfg.AuthKey) {
		c.Conn.Write(wsproto.BuildErrorResponse(401, "invalid or missing auth key"))
		m.Disconnect(c.ID)
		return
	}

	accept := wsproto.AcceptKey(hs.Key)
	originAllowed := wsproto.OriginAllowed(hs.Origin, m.cfg.CORS.AllowedOrigins)
	resp := wsproto.BuildSwitchingProtocolsResponse(accept, hs.Origin, originAllowed)
	if _, err := c.Conn.Write(resp); err != nil {
		m.Disconnect(c.ID)
		return
	}

	c.handshakeDone = true
	c.connectFired = true
	m.router.DispatchSpecial("connect", c.ID)
}

func (m *Multiplexer) handleWSData(c *Client) {
	frames, consumed, residual, err := wsproto.DecodeFrames(c.residual)
	if err != nil {
		m.sendError(c, err.Error())
		m.Disconnect(c.ID)
		return
	}
	_ = consumed
	c.residual = residual

	for _, f := range frames {
		if f.Opcode == wsproto.OpClose {
			m.Disconnect(c.ID)
			return
		}
		if f.Opcode == wsproto.OpPing {
			c.Conn.Write(wsproto.EncodeFrame(wsproto.OpPong, f.Payload))
			continue
		}
		if f.Opcode == wsproto.OpPong {
			continue
		}

		payload, complete, rerr := c.reassembler.Feed(f)
		if rerr != nil {
			m.sendError(c, rerr.Error())
			m.Disconnect(c.ID)
			return
		}
		if !complete {
			continue
		}

		msg, perr := wsproto.ParseMessage(payload)
		if perr != nil {
			m.sendError(c, perr.Error())
			continue
		}

		if _, derr := m.router.DispatchWS(c.ID, msg.Event, msg.Data); derr != nil {
			m.sendError(c, derr.Error())
		}
	}
}

func (m *Multiplexer) sendError(c *Client, message string) {
	env, err := wsproto.EncodeEnvelope("error", httpErrorPayload(message))
	if err != nil {
		return
	}
	c.Conn.Write(wsproto.EncodeFrame(wsproto.OpText, env))
}

func httpErrorPayload(message string) map[string]any {
	return map[string]any{"message": message, "timestamp": time.Now().Unix()}
}

func (m *Multiplexer) handleHTTP(c *Client) {
	br := bufReaderOf(c.residual)
	req, err := httpproto.ParseRequest(br)
	if err != nil {
		return // incomplete request; wait for more bytes
	}
	c.residual = nil
	req.RemoteAddr = m.rewriteRemoteAddr(c.RemoteAddr, req.Header)

	var resp *httpproto.Response
	origin := req.Header.Get("Origin")

	switch {
	case m.cfg.HealthCheckPath != "" && req.Path == m.cfg.HealthCheckPath:
		resp = m.healthResponse(req.Method)
	case req.Method == "OPTIONS":
		resp = m.cors.Preflight(origin)
	default:
		result, derr := m.router.DispatchHTTP(req)
		if derr != nil {
			resp = httpproto.NewResponse(500, "text/plain; charset=utf-8", []byte("internal server error"))
		} else {
			resp, err = httpproto.FromHandlerResult(result)
			if err != nil {
				resp = httpproto.NewResponse(500, "text/plain; charset=utf-8", []byte("internal server error"))
			}
		}
		m.cors.ApplyHeaders(resp, origin)
	}

	c.Conn.Write(resp.Bytes())
	m.Disconnect(c.ID)
}

func (m *Multiplexer) healthResponse(method string) *httpproto.Response {
	if method != "GET" && method != "HEAD" {
		return httpproto.NotFound()
	}
	m.mu.Lock()
	clientCount := len(m.clients)
	m.mu.Unlock()
	uptime := time.Since(m.startedAt)
	body, _ := json.Marshal(map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"server": map[string]any{
			"clients":      clientCount,
			"uptime":       uptime.Seconds(),
			"uptime_human": uptime.String(),
		},
	})
	return httpproto.NewResponse(200, "application/json", body)
}

// Disconnect closes clientID's socket, removes it from every index,
// and fires the disconnect special event if it was a WebSocket client.
func (m *Multiplexer) Disconnect(clientID string) {
	m.mu.Lock()
	c, ok := m.clients[clientID]
	if ok {
		delete(m.clients, clientID)
		delete(m.byFD, c.fd)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	if m.reactor != nil {
		m.reactor.Remove(c.fd)
	}
	c.Conn.Close()
	m.registry.LeaveNamespace(clientID)

	if c.Kind == KindWS && c.connectFired {
		m.router.DispatchSpecial("disconnect", clientID)
	}
}

// Send serializes data as a text WebSocket frame for the named event
// and writes it to clientID. It is a no-op if the client is not a
// WebSocket, and disconnects the client on write failure. Safe to call
// from any handler or the queue poller.
func (m *Multiplexer) Send(clientID, event string, data json.RawMessage) error {
	m.mu.Lock()
	c, ok := m.clients[clientID]
	m.mu.Unlock()
	if !ok || c.Kind != KindWS {
		return nil
	}

	env, err := wsproto.EncodeEnvelope(event, data)
	if err != nil {
		return err
	}
	if _, err := c.Conn.Write(wsproto.EncodeFrame(wsproto.OpText, env)); err != nil {
		m.Disconnect(clientID)
		return wserr.TransientIO(clientID, err)
	}
	return nil
}

// Broadcast computes the recipient set (all WS clients, optionally
// filtered by namespace and/or room) and submits one send per recipient
// to the bounded worker pool, so a slow or dead recipient cannot stall
// the event loop or the caller. A failed write requests that
// recipient's disconnect, which the event loop carries out on its next
// iteration (the Multiplexer owns the reactor and client maps from
// that single goroutine).
func (m *Multiplexer) Broadcast(event string, data json.RawMessage, namespace, room *string) error {
	recipients := m.broadcastRecipients(namespace, room)

	env, err := wsproto.EncodeEnvelope(event, data)
	if err != nil {
		return err
	}
	frame := wsproto.EncodeFrame(wsproto.OpText, env)

	for _, id := range recipients {
		id := id
		m.pool.submit(func() {
			m.mu.Lock()
			c, ok := m.clients[id]
			m.mu.Unlock()
			if !ok || c.Kind != KindWS {
				return
			}
			if _, err := c.Conn.Write(frame); err != nil {
				m.requestDisconnect(id)
			}
		})
	}
	return nil
}

func (m *Multiplexer) broadcastRecipients(namespace, room *string) []string {
	if namespace != nil && room != nil {
		return m.registry.GetClientsInRoom(*namespace, *room)
	}
	if namespace != nil {
		return m.registry.GetClientsInNamespace(*namespace)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.clients))
	for id, c := range m.clients {
		if c.Kind == KindWS {
			out = append(out, id)
		}
	}
	return out
}

func (m *Multiplexer) shutdownAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.clients))
	for id := range m.clients {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.mu.Lock()
		c, ok := m.clients[id]
		m.mu.Unlock()
		if ok && c.Kind == KindWS && c.connectFired {
			// On shutdown the disconnect event fires before the socket
			// closes; clearing connectFired stops Disconnect firing it again.
			m.router.DispatchSpecial("disconnect", id)
			c.connectFired = false
		}
		m.Disconnect(id)
	}
}

// bufReaderOf adapts a residual byte buffer to the *bufio.Reader the
// handshake/HTTP parsers expect, without consuming the caller's slice.
func bufReaderOf(data []byte) *bufio.Reader {
	return bufio.NewReader(bytes.NewReader(data))
}
