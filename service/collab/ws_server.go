package collab

import (
	"context"
	"errors"
	"net"
	"time"

	midsec "PNotepad/middleware/security"
	"PNotepad/tools/errs"
	"PNotepad/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var tokenOpts = midsec.DefaultOptions(nil)

// HandleWS upgrades the request and runs the connection until either side
// goes away. The token may come from the handshake or from the join frame.
func (s *Server) HandleWS(c *gin.Context) {
	token := midsec.TokenFrom(c, tokenOpts)
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 常见：非 WebSocket 请求/握手失败；Upgrade 已回写 HTTP 错误
		s.log.Info("upgrade websocket failed", zap.Error(err))
		return
	}

	conn := s.gw.Open(ws.RemoteAddr().String(), token)
	s.log.Debug("connection opened", zap.String("conn", conn.ID), zap.String("remote", conn.Remote))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	safe.Go("ws-writer", func() {
		defer close(done)
		s.writePump(ws, conn)
	})

	reason := s.readPump(ctx, ws, conn)
	s.gw.Close(conn, reason)
	<-done
	s.log.Debug("connection closed", zap.String("conn", conn.ID), zap.NamedError("reason", conn.Err()))
}

// readPump only reads; the writer owns every data write and the final close.
func (s *Server) readPump(ctx context.Context, ws *websocket.Conn, conn *Conn) error {
	hb := s.gw.conf.HeartbeatTimeout
	ws.SetReadLimit(s.conf.MaxMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(hb))
	ws.SetPongHandler(func(string) error {
		s.gw.Touch(conn)
		return ws.SetReadDeadline(time.Now().Add(hb))
	})

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			return classifyReadErr(conn, err)
		}
		s.gw.Touch(conn)
		_ = ws.SetReadDeadline(time.Now().Add(hb))
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		s.HandleFrame(ctx, conn, data)
	}
}

func classifyReadErr(conn *Conn, err error) error {
	var ne net.Error
	switch {
	case conn.Err() != nil:
		// writer or gateway closed us first
		return conn.Err()
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		return errs.ErrTransport.WrapCause(err, false, "peer closed")
	case errors.Is(err, websocket.ErrReadLimit):
		return errs.ErrTransport.WrapCause(err, false, "frame too large")
	case errors.As(err, &ne) && ne.Timeout():
		return errs.ErrTransport.WrapCause(err, false, "heartbeat timeout")
	default:
		return errs.ErrTransport.WrapCause(err, false, "read failed")
	}
}

func (s *Server) writePump(ws *websocket.Conn, conn *Conn) {
	wait := s.conf.WriteWait
	pingEvery := s.gw.conf.HeartbeatTimeout * 9 / 10
	ticker := time.NewTicker(pingEvery)
	defer func() {
		ticker.Stop()
		// 统一由写协程发 Close 并关闭底层连接
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(closeCode(conn.Err()), ""), time.Now().Add(wait))
		_ = ws.Close()
	}()

	for {
		select {
		case <-conn.Done():
			s.flushQueued(ws, conn, wait)
			return
		case payload := <-conn.Outbound():
			_ = ws.SetWriteDeadline(time.Now().Add(wait))
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				conn.Close(errs.ErrTransport.WrapCause(errWriteFailed, false, err.Error()))
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wait)); err != nil {
				conn.Close(errs.ErrTransport.WrapCause(errWriteFailed, false, "ping: "+err.Error()))
				return
			}
		}
	}
}

// flushQueued writes the frames queued before the connection was closed,
// such as the error that preceded a kick, within one write deadline. A write
// failure abandons the rest.
func (s *Server) flushQueued(ws *websocket.Conn, conn *Conn, wait time.Duration) {
	if errors.Is(conn.Err(), errWriteFailed) {
		return
	}
	_ = ws.SetWriteDeadline(time.Now().Add(wait))
	for _, payload := range conn.drain() {
		if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func closeCode(reason error) int {
	switch {
	case reason == nil:
		return websocket.CloseNormalClosure
	case errors.Is(reason, errSlowConsumer):
		return websocket.CloseTryAgainLater
	case errors.Is(reason, errShuttingDown):
		return websocket.CloseGoingAway
	default:
		return websocket.CloseNormalClosure
	}
}
