package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"PNotepad/global"
	"PNotepad/tools/errs"

	"github.com/gin-gonic/gin"
)

// OriginAllowed reports whether origin may open a websocket. An empty allow
// list or a request without Origin (non-browser client) is always allowed.
// Entries match the full origin or, with a leading "*.", any subdomain.
func OriginAllowed(allowed []string, origin string) bool {
	if len(allowed) == 0 || origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		switch {
		case a == "*":
			return true
		case strings.HasPrefix(a, "*."):
			if strings.HasSuffix(strings.ToLower(u.Hostname()), a[1:]) {
				return true
			}
		case a == strings.ToLower(origin):
			return true
		}
	}
	return false
}

// Origin rejects websocket upgrades from origins outside allowed. It does not
// call Next, so it can sit inside a MiddlewareManager.
func Origin(path string, allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet && c.Request.URL.Path == path {
			if !OriginAllowed(allowed, c.GetHeader("Origin")) {
				c.AbortWithStatusJSON(http.StatusForbidden, global.Fail(errs.AuthErrorCode, "origin not allowed"))
				return
			}
		}
	}
}
