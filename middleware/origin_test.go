package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"https://notes.example.com", "*.corp.example"}
	cases := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://notes.example.com", true},
		{"HTTPS://Notes.Example.com", true},
		{"https://evil.example.com", false},
		{"https://a.corp.example", true},
		{"https://corp.example.evil", false},
	}
	for _, tc := range cases {
		if got := OriginAllowed(allowed, tc.origin); got != tc.want {
			t.Errorf("OriginAllowed(%q) = %v, want %v", tc.origin, got, tc.want)
		}
	}
	if !OriginAllowed(nil, "https://anything") {
		t.Error("empty allow list should admit everything")
	}
	if !OriginAllowed([]string{"*"}, "https://anything") {
		t.Error("wildcard should admit everything")
	}
}

func TestManagerRunsOriginBeforeRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewManager()
	m.Add(Origin("/ws", []string{"https://ok.example"}))

	r := gin.New()
	r.Use(m.Use())
	hit := 0
	r.GET("/ws", func(c *gin.Context) { hit++; c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://bad.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden || hit != 0 {
		t.Fatalf("bad origin: status %d, hits %d", w.Code, hit)
	}

	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://ok.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent || hit != 1 {
		t.Fatalf("good origin: status %d, hits %d", w.Code, hit)
	}
}

func TestRecoveryTurnsPanicInto500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status %d", w.Code)
	}
}
