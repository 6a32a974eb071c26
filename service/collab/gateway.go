package collab

import (
	"context"
	"sync"
	"time"

	"PNotepad/logger"
	"PNotepad/service/account"
	"PNotepad/tools/errs"
	"PNotepad/tools/ids"
	"PNotepad/tools/safe"

	"go.uber.org/zap"
)

// ===== 配置 =====

type GatewayConf struct {
	HeartbeatTimeout time.Duration    // no inbound traffic for this long => dead connection
	SweepEvery       time.Duration    // sweeper period; 0 => HeartbeatTimeout/3
	SendQueue        int              // per connection outbound frames
	Clock            func() time.Time // nil => time.Now
}

func (c *GatewayConf) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 30 * time.Second
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = c.HeartbeatTimeout / 3
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 256
	}
}

// Gateway tracks connections and their sessions, and bridges them to the
// registry. It is the relay's Directory.
type Gateway struct {
	conf     GatewayConf
	verifier account.Verifier
	registry *Registry
	ids      *ids.Generator
	log      *zap.Logger

	mu       sync.RWMutex
	conns    map[string]*Conn
	sessions map[string]*ClientSession

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewGateway(conf GatewayConf, verifier account.Verifier, gen *ids.Generator) *Gateway {
	conf.norm()
	safe.MustNotNil(verifier, "verifier")
	safe.MustNotNil(gen, "id generator")
	return &Gateway{
		conf:     conf,
		verifier: verifier,
		ids:      gen,
		log:      logger.Named("gateway"),
		conns:    make(map[string]*Conn),
		sessions: make(map[string]*ClientSession),
		stopCh:   make(chan struct{}),
	}
}

// Bind sets the registry. Registry and gateway reference each other through
// the relay, so one of them has to be wired after construction.
func (g *Gateway) Bind(r *Registry) { g.registry = r }

// Open registers a new transport connection. token is the bearer presented
// during the handshake and may be empty.
func (g *Gateway) Open(remote, token string) *Conn {
	c := newConn(g.ids.NextString(), remote, token, g.conf.SendQueue, g.conf.Clock())
	g.mu.Lock()
	g.conns[c.ID] = c
	g.mu.Unlock()
	return c
}

// Touch records inbound traffic on c.
func (g *Gateway) Touch(c *Conn) { c.touch(g.conf.Clock()) }

// Attach verifies token and joins conn to workspaceID. The state frame is
// queued on conn before any edit of the room. A connection already attached
// elsewhere is detached first; attaching again to the same workspace only
// resends the state.
func (g *Gateway) Attach(ctx context.Context, conn *Conn, token, workspaceID string) (*ClientSession, Snapshot, error) {
	if workspaceID == "" {
		return nil, Snapshot{}, errs.ErrBadRequest.WrapMsg("workspace_id required")
	}
	if token == "" {
		token = conn.Token
	}
	ident, err := g.verifier.Verify(ctx, token)
	if err != nil {
		return nil, Snapshot{}, err
	}

	if cur := conn.Session(); cur != nil {
		if cur.WorkspaceID == workspaceID && cur.UserID == ident.UserID {
			snap, err := g.registry.MemberSnapshot(workspaceID, cur.ID)
			if err == nil {
				conn.Send(BuildState(snap))
				return cur, snap, nil
			}
		}
		g.Detach(cur.ID)
	}

	s := &ClientSession{
		ID:          g.ids.NextString(),
		UserID:      ident.UserID,
		WorkspaceID: workspaceID,
		AttachedAt:  g.conf.Clock(),
		conn:        conn,
	}
	g.mu.Lock()
	if _, ok := g.conns[conn.ID]; !ok {
		g.mu.Unlock()
		return nil, Snapshot{}, errs.ErrTransport.WrapMsg("connection closed", "conn", conn.ID)
	}
	g.sessions[s.ID] = s
	g.mu.Unlock()

	snap, err := g.registry.Join(ctx, workspaceID, s.ID, s.UserID)
	if err != nil {
		g.mu.Lock()
		delete(g.sessions, s.ID)
		g.mu.Unlock()
		return nil, Snapshot{}, err
	}
	conn.setSession(s)
	if cerr := conn.Err(); cerr != nil {
		// closed while joining; Close may not have seen the session
		g.Detach(s.ID)
		return nil, Snapshot{}, cerr
	}
	if !s.open(BuildState(snap)) {
		g.kick(conn, errSlowConsumer)
	}

	g.log.Info("session attached",
		zap.String("session", s.ID),
		zap.String("user", s.UserID),
		zap.String("workspace", workspaceID),
		zap.Int("members", snap.Members))
	return s, snap, nil
}

// Detach removes the session and leaves its room. It reports whether the
// session existed; repeated calls are no-ops.
func (g *Gateway) Detach(sessionID string) bool {
	g.mu.Lock()
	s, ok := g.sessions[sessionID]
	if ok {
		delete(g.sessions, sessionID)
	}
	g.mu.Unlock()
	if !ok {
		return false
	}
	s.conn.clearSession(s)
	remaining := g.registry.Leave(s.WorkspaceID, s.ID)

	g.log.Info("session detached",
		zap.String("session", s.ID),
		zap.String("workspace", s.WorkspaceID),
		zap.Int("remaining", remaining))
	return true
}

// Close detaches whatever session conn holds and forgets the connection.
func (g *Gateway) Close(conn *Conn, reason error) {
	conn.Close(reason)
	if s := conn.Session(); s != nil {
		g.Detach(s.ID)
	}
	g.mu.Lock()
	delete(g.conns, conn.ID)
	g.mu.Unlock()
}

// Deliver implements Directory. A session whose queue is full is kicked; the
// client resynchronises with a fresh join.
func (g *Gateway) Deliver(sessionID string, payload []byte) bool {
	g.mu.RLock()
	s := g.sessions[sessionID]
	g.mu.RUnlock()
	if s == nil {
		return false
	}
	if s.deliver(payload) {
		return true
	}
	g.kick(s.conn, errSlowConsumer)
	return false
}

// kick closes the connection; the transport goroutines notice Done and call
// Close, which detaches.
func (g *Gateway) kick(c *Conn, cause error) {
	g.log.Warn("kicking connection", zap.String("conn", c.ID), zap.Error(cause))
	c.Close(errs.ErrTransport.WrapCause(cause, false, "kicked", "conn", c.ID))
}

// Session looks up an attached session.
func (g *Gateway) Session(id string) (*ClientSession, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.sessions[id]
	return s, ok
}

// Counts returns the number of open connections and attached sessions.
func (g *Gateway) Counts() (conns, sessions int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns), len(g.sessions)
}

// ===== 心跳清理 =====

// Run sweeps connections that stayed silent longer than HeartbeatTimeout
// until Shutdown is called.
func (g *Gateway) Run() {
	t := time.NewTicker(g.conf.SweepEvery)
	defer t.Stop()
	for {
		select {
		case <-g.stopCh:
			return
		case <-t.C:
			g.sweepOnce()
		}
	}
}

func (g *Gateway) sweepOnce() int {
	deadline := g.conf.Clock().Add(-g.conf.HeartbeatTimeout)
	var expired []*Conn
	g.mu.RLock()
	for _, c := range g.conns {
		if c.LastSeen().Before(deadline) {
			expired = append(expired, c)
		}
	}
	g.mu.RUnlock()

	for _, c := range expired {
		g.log.Info("heartbeat timeout", zap.String("conn", c.ID), zap.String("remote", c.Remote))
		g.Close(c, errs.ErrTransport.WrapMsg("heartbeat timeout", "conn", c.ID))
	}
	return len(expired)
}

// Shutdown stops the sweeper and closes every connection, which detaches
// every session and so closes every room.
func (g *Gateway) Shutdown() {
	g.stopOnce.Do(func() { close(g.stopCh) })
	g.mu.RLock()
	all := make([]*Conn, 0, len(g.conns))
	for _, c := range g.conns {
		all = append(all, c)
	}
	g.mu.RUnlock()
	for _, c := range all {
		g.Close(c, errs.ErrTransport.WrapCause(errShuttingDown, false, ""))
	}
}
