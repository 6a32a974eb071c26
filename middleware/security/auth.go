package security

import (
	"net/http"
	"strings"

	"PNotepad/global"
	"PNotepad/service/account"
	"PNotepad/tools/errs"

	"github.com/gin-gonic/gin"
)

// —— context key ——
// handlers read the verified caller with IdentityFrom
const (
	PPCtxAuthKey     = "authorization" // string, raw token
	PPCtxIdentityKey = "identity"      // account.Identity

	HeaderAuthToken = "X-Auth-Token"
)

type Options struct {
	HeaderToken               string // 默认 "X-Auth-Token"
	QueryToken                string // 默认 "token"; websocket clients cannot always set headers
	EnableAuthorizationBearer bool   // 默认 true

	Verifier account.Verifier
}

func DefaultOptions(v account.Verifier) *Options {
	return &Options{
		HeaderToken:               HeaderAuthToken,
		QueryToken:                "token",
		EnableAuthorizationBearer: true,
		Verifier:                  v,
	}
}

// TokenFrom extracts the token from the custom header, the Authorization
// bearer or the query string, in that order.
func TokenFrom(c *gin.Context, opts *Options) string {
	token := strings.TrimSpace(c.GetHeader(opts.HeaderToken))

	// 兼容 Authorization: Bearer xxx
	if token == "" && opts.EnableAuthorizationBearer {
		authz := strings.TrimSpace(c.GetHeader("Authorization"))
		if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			token = strings.TrimSpace(authz[len("bearer "):])
		}
	}
	if token == "" && opts.QueryToken != "" {
		token = strings.TrimSpace(c.Query(opts.QueryToken))
	}
	return token
}

// Middleware rejects requests without a valid token with 401 and stores the
// caller identity in the gin context.
func Middleware(opts *Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFrom(c, opts)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, global.Fail(errs.AuthErrorCode, "missing bearer token"))
			return
		}
		ident, err := opts.Verifier.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, global.Fail(errs.AuthErrorCode, errs.ErrAuth.Msg))
			return
		}
		c.Set(PPCtxAuthKey, token)
		c.Set(PPCtxIdentityKey, ident)
		c.Next()
	}
}

func IdentityFrom(c *gin.Context) (account.Identity, bool) {
	v, ok := c.Get(PPCtxIdentityKey)
	if !ok {
		return account.Identity{}, false
	}
	ident, ok := v.(account.Identity)
	return ident, ok
}
