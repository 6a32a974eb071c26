// Package collab is the sync gateway: connections, rooms, edit relay and the
// bridge to the Workspace Store.
package collab

import (
	"context"
	"net/http"
	"time"

	"PNotepad/logger"
	"PNotepad/middleware"
	"PNotepad/service/account"
	"PNotepad/service/events"
	"PNotepad/tools/errs"
	"PNotepad/tools/ids"
	"PNotepad/tools/safe"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type ServerConf struct {
	NodeID          string
	Gateway         GatewayConf
	Persist         CoordinatorConf
	WriteWait       time.Duration
	MaxMessageBytes int64
	AllowedOrigins  []string
}

// Server wires the gateway, registry, relay and coordinator together and
// exposes them to the websocket and REST handlers.
type Server struct {
	conf     ServerConf
	gw       *Gateway
	reg      *Registry
	relay    *Relay
	coord    *Coordinator
	disp     *Dispatcher
	presence PresenceReader
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewServer(conf ServerConf, verifier account.Verifier, st Store, gen *ids.Generator, pub events.Publisher) *Server {
	if conf.WriteWait <= 0 {
		conf.WriteWait = 10 * time.Second
	}
	if conf.MaxMessageBytes <= 0 {
		conf.MaxMessageBytes = 1 << 20
	}
	coord := NewCoordinator(conf.Persist, st, pub)
	gw := NewGateway(conf.Gateway, verifier, gen)
	relay := NewRelay(gw)
	reg := NewRegistry(coord, coord, relay, pub)
	gw.Bind(reg)

	s := &Server{
		conf:  conf,
		gw:    gw,
		reg:   reg,
		relay: relay,
		coord: coord,
		disp:  NewDispatcher(),
		log:   logger.Named("collab"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return middleware.OriginAllowed(conf.AllowedOrigins, r.Header.Get("Origin"))
		},
	}
	return s
}

func (s *Server) Gateway() *Gateway         { return s.gw }
func (s *Server) Registry() *Registry       { return s.reg }
func (s *Server) Relay() *Relay             { return s.relay }
func (s *Server) Coordinator() *Coordinator { return s.coord }
func (s *Server) Disp() *Dispatcher         { return s.disp }

// WithPresence enables GET /presence.
func (s *Server) WithPresence(p PresenceReader) { s.presence = p }

// Start launches the heartbeat sweeper.
func (s *Server) Start() {
	safe.Go("gateway-sweeper", s.gw.Run)
}

// Shutdown closes every connection, which empties every room, then waits for
// the resulting live flags to reach the store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.gw.Shutdown()
	return s.coord.Flush(ctx)
}

// HandleFrame decodes and dispatches one inbound frame. Failures are
// answered with an error frame on the same connection.
func (s *Server) HandleFrame(ctx context.Context, conn *Conn, raw []byte) {
	f, err := ParseFrame(raw)
	if err == nil {
		err = s.disp.Dispatch(ctx, s, f, conn)
	}
	if err == nil {
		return
	}
	if errs.ErrTransport.Is(err) {
		s.log.Debug("frame on dead connection", zap.String("conn", conn.ID), zap.Error(err))
		return
	}
	s.log.Info("frame rejected", zap.String("conn", conn.ID), zap.Int("code", errs.Code(err)), zap.Error(err))
	if !conn.Send(BuildError(err)) {
		s.gw.kick(conn, errSlowConsumer)
	}
}
