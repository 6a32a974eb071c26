package handlers

import (
	"context"

	"PNotepad/service/collab"
)

// LeaveHandler detaches without closing the connection. Leaving twice is
// harmless.
type LeaveHandler struct{}

func NewLeaveHandler() collab.Handler { return &LeaveHandler{} }

func (h *LeaveHandler) Type() string { return collab.FrameLeave }

func (h *LeaveHandler) Handle(_ context.Context, s *collab.Server, _ *collab.Frame, conn *collab.Conn) error {
	if sess := conn.Session(); sess != nil {
		s.Gateway().Detach(sess.ID)
	}
	return nil
}
