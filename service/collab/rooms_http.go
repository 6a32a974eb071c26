package collab

import (
	"context"
	"net/http"
	"time"

	"PNotepad/global"
	"PNotepad/middleware"
	midsec "PNotepad/middleware/security"
	"PNotepad/service/storage"
	"PNotepad/tools/errs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PresenceReader lists open workspaces across the cluster.
type PresenceReader interface {
	List(ctx context.Context) ([]storage.Entry, error)
}

type roomView struct {
	WorkspaceID string    `json:"workspace_id"`
	Sequence    uint64    `json:"sequence"`
	Members     int       `json:"members"`
	OpenedAt    time.Time `json:"opened_at"`
}

// Routes mounts the websocket endpoint, health and the room dashboard.
func (s *Server) Routes(r gin.IRoutes, auth *midsec.Options) {
	r.GET("/ws", s.HandleWS)
	r.GET("/healthz", s.Healthz)
	routes := []middleware.Route{
		middleware.GET("/rooms", s.ListRooms),
		middleware.GET("/rooms/:id", s.GetRoom),
	}
	if s.presence != nil {
		routes = append(routes, middleware.GET("/presence", s.ListPresence))
	}
	middleware.Mount(r, middleware.RouteOpt{IsAuth: true, Auth: auth}, routes...)
}

func (s *Server) Healthz(c *gin.Context) {
	conns, sessions := s.gw.Counts()
	c.JSON(http.StatusOK, global.Success(gin.H{
		"node_id":  s.conf.NodeID,
		"rooms":    len(s.reg.Rooms()),
		"conns":    conns,
		"sessions": sessions,
	}))
}

// ListRooms returns every live room without its text.
func (s *Server) ListRooms(c *gin.Context) {
	rooms := s.reg.Rooms()
	out := make([]roomView, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, roomView{WorkspaceID: r.WorkspaceID, Sequence: r.Sequence, Members: r.Members, OpenedAt: r.OpenedAt})
	}
	c.JSON(http.StatusOK, global.Success(gin.H{"node_id": s.conf.NodeID, "rooms": out}))
}

func (s *Server) GetRoom(c *gin.Context) {
	snap, ok := s.reg.Snapshot(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, global.Fail(errs.NotFoundErrorCode, "room not live"))
		return
	}
	c.JSON(http.StatusOK, global.Success(snap))
}

func (s *Server) ListPresence(c *gin.Context) {
	entries, err := s.presence.List(c.Request.Context())
	if err != nil {
		s.log.Warn("presence list failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, global.Fail(errs.StoreErrorCode, "presence unavailable"))
		return
	}
	c.JSON(http.StatusOK, global.Success(gin.H{"rooms": entries}))
}

// PresenceEntries converts the live rooms for a presence refresh.
func (s *Server) PresenceEntries() []storage.Entry {
	rooms := s.reg.Rooms()
	out := make([]storage.Entry, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, storage.Entry{
			WorkspaceID: r.WorkspaceID,
			NodeID:      s.conf.NodeID,
			Members:     r.Members,
			Sequence:    r.Sequence,
			OpenedAt:    r.OpenedAt,
		})
	}
	return out
}
