package handlers

import (
	"context"

	"PNotepad/service/collab"
)

// JoinHandler attaches the connection to a workspace. The gateway queues the
// state frame itself so it always precedes the room's edits.
type JoinHandler struct{}

func NewJoinHandler() collab.Handler { return &JoinHandler{} }

func (h *JoinHandler) Type() string { return collab.FrameJoin }

func (h *JoinHandler) Handle(ctx context.Context, s *collab.Server, f *collab.Frame, conn *collab.Conn) error {
	_, _, err := s.Gateway().Attach(ctx, conn, f.Token, f.WorkspaceID)
	return err
}
