package middleware

import (
	midsec "PNotepad/middleware/security"

	"github.com/gin-gonic/gin"
)

// 路由选项
type RouteOpt struct {
	IsAuth bool
	Auth   *midsec.Options // required when IsAuth
}

// Route is one endpoint mounted by Mount.
type Route struct {
	Method  string
	Path    string
	Handler gin.HandlerFunc
}

func GET(path string, h gin.HandlerFunc) Route  { return Route{"GET", path, h} }
func POST(path string, h gin.HandlerFunc) Route { return Route{"POST", path, h} }

// Mount registers routes on r, each behind the bearer check when opt.IsAuth.
func Mount(r gin.IRoutes, opt RouteOpt, routes ...Route) {
	for _, rt := range routes {
		chain := []gin.HandlerFunc{rt.Handler}
		if opt.IsAuth {
			chain = append([]gin.HandlerFunc{midsec.Middleware(opt.Auth)}, chain...)
		}
		r.Handle(rt.Method, rt.Path, chain...)
	}
}
