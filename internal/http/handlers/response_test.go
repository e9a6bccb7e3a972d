package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func serveOne(h gin.HandlerFunc, mw ...gin.HandlerFunc) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/x", h)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w
}

func TestFail_ServerErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	w := serveOne(
		func(c *gin.Context) { fail(c, http.StatusServiceUnavailable, ErrCodeStorageUnavailable, "database unavailable") },
		func(c *gin.Context) {
			c.Writer.Header().Set("X-Request-ID", "rid-503")
			c.Set("logger", &logger)
			c.Next()
		},
	)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.RequestID != "rid-503" || resp.Code != ErrCodeStorageUnavailable {
		t.Fatalf("unexpected body: %+v", resp)
	}
	if !strings.Contains(buf.String(), `"code":"storage_unavailable"`) {
		t.Fatalf("expected error log, got: %s", buf.String())
	}
}

func TestFail_ClientErrorNotLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	w := serveOne(
		func(c *gin.Context) { Fail(c, http.StatusConflict, ErrCodeSessionNotActive, "session is not active") },
		func(c *gin.Context) {
			c.Set("requestID", "rid-ctx")
			c.Set("logger", &logger)
			c.Next()
		},
	)

	if w.Code != http.StatusConflict {
		t.Fatalf("status=%d", w.Code)
	}
	var resp ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	// falls back to the context value when the header was not set
	if resp.RequestID != "rid-ctx" {
		t.Fatalf("request id = %q", resp.RequestID)
	}
	if buf.Len() != 0 {
		t.Fatalf("4xx should not be logged here: %s", buf.String())
	}
}

func TestReplayed_MarksHeaderAndReturns200(t *testing.T) {
	w := serveOne(func(c *gin.Context) { replayed(c, gin.H{"id": "m1"}) })

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if w.Header().Get(HeaderReplayed) != "true" {
		t.Fatalf("missing %s header", HeaderReplayed)
	}
	if !strings.Contains(w.Body.String(), `"id":"m1"`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestNonNil_EncodesEmptyList(t *testing.T) {
	var none []string
	b, _ := json.Marshal(gin.H{"items": nonNil(none)})
	if string(b) != `{"items":[]}` {
		t.Fatalf("got %s", b)
	}
	if got := nonNil([]int{1}); len(got) != 1 {
		t.Fatalf("non-empty slice changed: %v", got)
	}
}
