package main

import (
	"context"
	"net/http"
	"time"

	"PNotepad/data/database"
	"PNotepad/data/database/mgo/mongoutil"
	"PNotepad/data/database/pg"
	"PNotepad/global"
	"PNotepad/logger"
	mid "PNotepad/middleware"
	midsec "PNotepad/middleware/security"
	"PNotepad/module/workspace"
	"PNotepad/service/account"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type storeNode struct {
	engine *gin.Engine
	close  func(ctx context.Context) error
}

func newStoreNode(ctx context.Context, cfg global.AppConfig, verifier *account.JWTVerifier) (*storeNode, error) {
	n := &storeNode{close: func(context.Context) error { return nil }}

	var repo workspace.Repository
	switch cfg.WorkspaceStore.Driver {
	case "postgres":
		pool, err := pg.NewPool(ctx, pg.Config{URL: cfg.WorkspaceStore.PostgresURL})
		if err != nil {
			return nil, err
		}
		pr := workspace.NewPgRepo(pool)
		if err := pr.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		n.close = func(context.Context) error { pool.Close(); return nil }
		repo = pr
	case "sqlite":
		sr, err := workspace.OpenSqlite(cfg.WorkspaceStore.SqlitePath)
		if err != nil {
			return nil, err
		}
		n.close = func(context.Context) error { return sr.Close() }
		repo = sr
	case "mongo":
		cli, err := mongoutil.NewMongoDB(ctx, &mongoutil.Config{
			Uri:      cfg.WorkspaceStore.MongoURI,
			Database: cfg.WorkspaceStore.MongoDatabase,
		})
		if err != nil {
			return nil, err
		}
		mr := workspace.NewMongoRepo(cli.GetDB())
		if err := database.Prepare(ctx, 10*time.Second, mr); err != nil {
			_ = cli.Close(ctx)
			return nil, err
		}
		n.close = cli.Close
		repo = mr
	default:
		repo = workspace.NewMemoryRepo()
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(mid.Recovery(), mid.AccessLog())
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, global.Success(gin.H{"status": "ok"})) })
	workspace.NewHandler(repo).Routes(r, midsec.DefaultOptions(verifier))
	n.engine = r

	logger.Info("workspace store ready", zap.String("driver", cfg.WorkspaceStore.Driver))
	return n, nil
}

func (n *storeNode) Name() string                       { return "notepad.WorkspaceStore" }
func (n *storeNode) Handler() http.Handler              { return n.engine }
func (n *storeNode) Shutdown(ctx context.Context) error { return n.close(ctx) }
