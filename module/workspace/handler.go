package workspace

import (
	"net/http"
	"strings"
	"time"

	"PNotepad/global"
	"PNotepad/logger"
	"PNotepad/middleware"
	midsec "PNotepad/middleware/security"
	"PNotepad/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type createRequest struct {
	Name string `json:"name" binding:"required"`
}

type saveRequest struct {
	Content *string `json:"content" binding:"required"`
}

type liveRequest struct {
	Live *bool `json:"live" binding:"required"`
}

type Handler struct {
	repo Repository
	now  func() time.Time
	log  *zap.Logger
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo, now: time.Now, log: logger.Named("workspace")}
}

// Routes mounts the store API. Every route needs a bearer token.
func (h *Handler) Routes(r gin.IRoutes, auth *midsec.Options) {
	middleware.Mount(r, middleware.RouteOpt{IsAuth: true, Auth: auth},
		middleware.POST("/workspaces", h.Create),
		middleware.GET("/workspaces", h.List),
		middleware.GET("/workspaces/:id", h.Get),
		middleware.POST("/workspaces/:id/save", h.Save),
		middleware.POST("/workspaces/:id/live", h.SetLive),
	)
}

func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, global.Fail(errs.BadRequestCode, "name required"))
		return
	}
	ident, _ := midsec.IdentityFrom(c)
	now := h.now().UTC()
	w := &Workspace{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		Owner:     ident.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.repo.Create(c.Request.Context(), w); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"workspace": w})
}

// List returns the caller's workspaces.
func (h *Handler) List(c *gin.Context) {
	ident, _ := midsec.IdentityFrom(c)
	ws, err := h.repo.ListByOwner(c.Request.Context(), ident.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workspaces": ws})
}

func (h *Handler) Get(c *gin.Context) {
	w, err := h.repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workspace": w})
}

func (h *Handler) Save(c *gin.Context) {
	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, global.Fail(errs.BadRequestCode, "content required"))
		return
	}
	id := c.Param("id")
	if err := h.repo.SaveContent(c.Request.Context(), id, *req.Content, h.now().UTC()); err != nil {
		h.fail(c, err)
		return
	}
	h.log.Info("content saved", zap.String("workspace", id), zap.Int("bytes", len(*req.Content)))
	c.JSON(http.StatusOK, global.Success(nil))
}

func (h *Handler) SetLive(c *gin.Context) {
	var req liveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, global.Fail(errs.BadRequestCode, "live required"))
		return
	}
	id := c.Param("id")
	if err := h.repo.SetLive(c.Request.Context(), id, *req.Live, h.now().UTC()); err != nil {
		h.fail(c, err)
		return
	}
	h.log.Debug("live flag set", zap.String("workspace", id), zap.Bool("live", *req.Live))
	c.JSON(http.StatusOK, global.Success(nil))
}

func (h *Handler) fail(c *gin.Context, err error) {
	status, msg, known := global.FromError(err)
	if !known {
		h.log.Error("workspace request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, msg)
}
