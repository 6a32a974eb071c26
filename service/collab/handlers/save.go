package handlers

import (
	"context"

	"PNotepad/service/collab"
	"PNotepad/tools/safe"
)

// SaveHandler persists the room text as of now. The store call runs off the
// read loop so the client can keep editing while it is in flight; the
// coordinator orders concurrent saves of one workspace by revision.
type SaveHandler struct{}

func NewSaveHandler() collab.Handler { return &SaveHandler{} }

func (h *SaveHandler) Type() string { return collab.FrameSave }

func (h *SaveHandler) Handle(ctx context.Context, s *collab.Server, f *collab.Frame, conn *collab.Conn) error {
	sess, err := currentSession(f, conn)
	if err != nil {
		return err
	}
	snap, err := s.Registry().MemberSnapshot(sess.WorkspaceID, sess.ID)
	if err != nil {
		return err
	}
	// a save already accepted finishes even if the client disconnects
	ctx = context.WithoutCancel(ctx)
	safe.Go("save", func() {
		if err := s.Coordinator().Save(ctx, snap.WorkspaceID, snap.Text, snap.Revision()); err != nil {
			conn.Send(collab.BuildError(err))
			return
		}
		conn.Send(collab.BuildSaved(snap.WorkspaceID, snap.Sequence))
	})
	return nil
}
