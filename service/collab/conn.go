package collab

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"PNotepad/tools/errs"
)

var (
	errSlowConsumer = errors.New("slow consumer")
	errShuttingDown = errors.New("server shutting down")
	errWriteFailed  = errors.New("write failed")
)

// Conn is one client connection as the gateway sees it: an outbound queue,
// a close signal and at most one attached session. The transport goroutines
// (see ws_server.go) drain Outbound and watch Done.
type Conn struct {
	ID        string
	Remote    string
	Token     string // bearer presented at upgrade, if any
	CreatedAt time.Time

	out      chan []byte
	done     chan struct{}
	once     sync.Once
	reason   error
	lastSeen atomic.Int64 // unix nano

	mu      sync.Mutex
	session *ClientSession
}

func newConn(id, remote, token string, queue int, now time.Time) *Conn {
	c := &Conn{
		ID:        id,
		Remote:    remote,
		Token:     token,
		CreatedAt: now,
		out:       make(chan []byte, queue),
		done:      make(chan struct{}),
	}
	c.lastSeen.Store(now.UnixNano())
	return c
}

// Outbound is never closed; stop reading when Done fires.
func (c *Conn) Outbound() <-chan []byte { return c.out }

func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns why the connection was closed, nil while it is open.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.reason
	default:
		return nil
	}
}

// Close marks the connection dead. Only the first reason is kept.
func (c *Conn) Close(reason error) {
	c.once.Do(func() {
		if reason == nil {
			reason = errs.ErrTransport.WrapMsg("closed")
		}
		c.reason = reason
		close(c.done)
	})
}

// Send queues payload without blocking. It fails when the queue is full or
// the connection is closed.
func (c *Conn) Send(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- payload:
		return true
	default:
		return false
	}
}

// drain takes whatever is still queued without waiting.
func (c *Conn) drain() [][]byte {
	var out [][]byte
	for {
		select {
		case p := <-c.out:
			out = append(out, p)
		default:
			return out
		}
	}
}

func (c *Conn) touch(now time.Time) { c.lastSeen.Store(now.UnixNano()) }

func (c *Conn) LastSeen() time.Time { return time.Unix(0, c.lastSeen.Load()) }

// Session returns the attached session, nil when none.
func (c *Conn) Session() *ClientSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Conn) setSession(s *ClientSession) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

// clearSession detaches s only if it is still the current session.
func (c *Conn) clearSession(s *ClientSession) {
	c.mu.Lock()
	if c.session == s {
		c.session = nil
	}
	c.mu.Unlock()
}

// ClientSession is one attachment of a connection to a workspace.
type ClientSession struct {
	ID          string
	UserID      string
	WorkspaceID string
	AttachedAt  time.Time

	conn *Conn

	// deliveries arriving before the initial state frame is queued wait in
	// pending so the client never sees an edit ahead of its state
	mu      sync.Mutex
	ready   bool
	pending [][]byte
}

func (s *ClientSession) Conn() *Conn { return s.conn }

func (s *ClientSession) deliver(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		if len(s.pending) >= cap(s.conn.out) {
			return false
		}
		s.pending = append(s.pending, payload)
		return true
	}
	return s.conn.Send(payload)
}

// open queues the state frame followed by anything relayed meanwhile.
func (s *ClientSession) open(state []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.conn.Send(state)
	for _, p := range s.pending {
		ok = ok && s.conn.Send(p)
	}
	s.pending = nil
	s.ready = true
	return ok
}
