package collab

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"PNotepad/tools/errs"

	"github.com/gorilla/websocket"
)

func TestWriterSendsQueuedFramesBeforeClosing(t *testing.T) {
	s := newTestServer(t, newFakeStore(nil), GatewayConf{})
	conn := s.Gateway().Open("test", "")
	conn.Send(BuildError(errs.ErrBadRequest.WrapMsg("bad frame")))
	conn.Send([]byte(`{"type":"pong"}`))
	conn.Close(errs.ErrTransport.WrapCause(errShuttingDown, false, ""))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.writePump(ws, conn)
	}))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))

	var got []string
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if !errors.As(err, &ce) || ce.Code != websocket.CloseGoingAway {
				t.Fatalf("want close 1001, got %v", err)
			}
			break
		}
		got = append(got, string(data))
	}
	if len(got) != 2 || !strings.Contains(got[0], `"error"`) || !strings.Contains(got[1], `"pong"`) {
		t.Fatalf("frames before close: %q", got)
	}
}

func TestDrainTakesQueuedFramesOnly(t *testing.T) {
	c := newConn("c1", "test", "", 4, time.Now())
	c.Send([]byte("a"))
	c.Send([]byte("b"))
	c.Close(nil)
	if c.Send([]byte("late")) {
		t.Fatal("send after close accepted")
	}
	if got := c.drain(); len(got) != 2 || string(got[0]) != "a" || string(got[1]) != "b" {
		t.Fatalf("drained %q", got)
	}
	if got := c.drain(); len(got) != 0 {
		t.Fatalf("second drain %q", got)
	}
}
