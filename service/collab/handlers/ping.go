package handlers

import (
	"context"

	"PNotepad/service/collab"
)

// PingHandler answers application level pings for clients that cannot see
// websocket control frames (browsers).
type PingHandler struct{}

func NewPingHandler() collab.Handler { return &PingHandler{} }

func (h *PingHandler) Type() string { return collab.FramePing }

func (h *PingHandler) Handle(_ context.Context, _ *collab.Server, _ *collab.Frame, conn *collab.Conn) error {
	conn.Send(collab.BuildPong())
	return nil
}

// All returns one handler per client frame type.
func All() []collab.Handler {
	return []collab.Handler{
		NewJoinHandler(),
		NewEditHandler(),
		NewSaveHandler(),
		NewLeaveHandler(),
		NewPingHandler(),
	}
}
