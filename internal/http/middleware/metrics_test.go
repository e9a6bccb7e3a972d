package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountersByRole_NotModified_AndPathFallback(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Identity(), Metrics())
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "hello") })
	r.GET("/cached", func(c *gin.Context) { c.Status(http.StatusNotModified) })

	baseUser := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/ok", "200", "user"))
	baseAnon := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/ok", "200", "anonymous"))
	base404 := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/does-not-exist", "404", "anonymous"))
	base304 := testutil.ToFloat64(notModified.WithLabelValues("/cached"))

	serve := func(path, user string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if user != "" {
			req.Header.Set(HeaderUserID, user)
		}
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := serve("/ok", "u1"); code != http.StatusOK {
		t.Fatalf("GET /ok -> %d", code)
	}
	if code := serve("/ok", ""); code != http.StatusOK {
		t.Fatalf("GET /ok -> %d", code)
	}
	if code := serve("/does-not-exist", ""); code != http.StatusNotFound {
		t.Fatalf("GET /does-not-exist -> %d", code)
	}
	if code := serve("/cached", "u1"); code != http.StatusNotModified {
		t.Fatalf("GET /cached -> %d", code)
	}

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/ok", "200", "user")); got != baseUser+1 {
		t.Fatalf("user counter = %v; want %v", got, baseUser+1)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/ok", "200", "anonymous")); got != baseAnon+1 {
		t.Fatalf("anonymous counter = %v; want %v", got, baseAnon+1)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/does-not-exist", "404", "anonymous")); got != base404+1 {
		t.Fatalf("404 fallback counter = %v; want %v", got, base404+1)
	}
	if got := testutil.ToFloat64(notModified.WithLabelValues("/cached")); got != base304+1 {
		t.Fatalf("304 counter = %v; want %v", got, base304+1)
	}
	if inFlight := testutil.ToFloat64(httpInflight); inFlight != 0 {
		t.Fatalf("httpInflight = %v; want 0", inFlight)
	}
}
