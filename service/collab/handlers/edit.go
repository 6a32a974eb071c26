package handlers

import (
	"context"

	"PNotepad/service/collab"
	"PNotepad/tools/errs"
)

// EditHandler replaces the room text. The author gets no acknowledgement;
// only the other members receive the edit.
type EditHandler struct{}

func NewEditHandler() collab.Handler { return &EditHandler{} }

func (h *EditHandler) Type() string { return collab.FrameEdit }

func (h *EditHandler) Handle(_ context.Context, s *collab.Server, f *collab.Frame, conn *collab.Conn) error {
	sess, err := currentSession(f, conn)
	if err != nil {
		return err
	}
	if f.Text == nil {
		return errs.ErrBadRequest.WrapMsg("edit without text", "workspace", sess.WorkspaceID)
	}
	_, err = s.Registry().ApplyEdit(sess.WorkspaceID, sess.ID, *f.Text)
	return err
}

// currentSession returns the attached session, checking the frame's
// workspace_id when it carries one.
func currentSession(f *collab.Frame, conn *collab.Conn) (*collab.ClientSession, error) {
	sess := conn.Session()
	if sess == nil {
		return nil, errs.ErrNotJoined.WrapMsg("join first", "conn", conn.ID)
	}
	if f.WorkspaceID != "" && f.WorkspaceID != sess.WorkspaceID {
		return nil, errs.ErrNotJoined.WrapMsg("frame for another workspace", "want", sess.WorkspaceID, "got", f.WorkspaceID)
	}
	return sess, nil
}
