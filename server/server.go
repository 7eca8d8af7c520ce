// Package server wires configuration, logging, routing, the namespace
// registry, and the connection multiplexer into a single facade with a
// small public surface: New, Run, Send, Broadcast, Disconnect.
package server

import (
	"context"
	"encoding/json"

	"github.com/duplexsock/duplexsock/config"
	"github.com/duplexsock/duplexsock/logging"
	"github.com/duplexsock/duplexsock/mux"
	"github.com/duplexsock/duplexsock/registry"
	"github.com/duplexsock/duplexsock/router"
)

// Server is the top-level facade: configuration, logging, the router,
// the namespace/room registry, and the connection multiplexer.
type Server struct {
	cfg      *config.Config
	log      logging.Logger
	Router   *router.Router
	Registry *registry.Registry
	mux      *mux.Multiplexer
}

// New builds a Server from cfg. The returned Server's Router should be
// populated with OnEvent/OnHTTP/OnConnect/OnDisconnect registrations
// before Run is called.
func New(cfg *config.Config, log logging.Logger) *Server {
	rt := router.New(log)
	reg := registry.New()
	return &Server{
		cfg:      cfg,
		log:      log,
		Router:   rt,
		Registry: reg,
		mux:      mux.New(cfg, log, rt, reg),
	}
}

// Run binds the listener and drives the event loop until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mux.Run(ctx)
}

// Send serializes data for event and writes it to clientID. See
// mux.Multiplexer.Send.
func (s *Server) Send(clientID, event string, data json.RawMessage) error {
	return s.mux.Send(clientID, event, data)
}

// Broadcast fans event out to every WebSocket client, optionally
// filtered by namespace and/or room. See mux.Multiplexer.Broadcast.
func (s *Server) Broadcast(event string, data json.RawMessage, namespace, room *string) error {
	return s.mux.Broadcast(event, data, namespace, room)
}

// Disconnect closes clientID's connection and fires its disconnect
// special event if applicable.
func (s *Server) Disconnect(clientID string) {
	s.mux.Disconnect(clientID)
}
