package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tbourn/nutrichat-backend/internal/events"
	"github.com/tbourn/nutrichat-backend/internal/http/middleware"
	"github.com/tbourn/nutrichat-backend/internal/repo"
	"github.com/tbourn/nutrichat-backend/internal/services"
)

// ---------- test DB + app wiring ----------

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), fmt.Sprintf("handlers_%d.db", time.Now().UnixNano())))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	require.NoError(t, repo.AutoMigrate(db))
	return db
}

type testApp struct {
	t  *testing.T
	db *gorm.DB
	r  *gin.Engine
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newHandlerDB(t)

	pub := events.NopPublisher{}
	notes := services.NewNotificationDispatcher(db)
	dir := services.NewDirectory(db)
	ledger := services.NewMessageLedger(db, notes, pub, 50, 2000)
	sessions := services.NewSessionStore(db, notes, pub)
	broker := services.NewRequestBroker(db, dir, notes, ledger, pub, 15*time.Minute)
	idem := NewGormIdempotencyStore(db)

	h := New(Services{
		Directory:     dir,
		Requests:      broker,
		Sessions:      sessions,
		Messages:      ledger,
		Notifications: notes,
		Idempotency:   idem,
	}, Options{PollInterval: 20 * time.Second})

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Identity())
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, idem.Lookup))
	h.Register(r.Group(""))
	return &testApp{t: t, db: db, r: r}
}

type hdr map[string]string

func asUser(id string) hdr         { return hdr{middleware.HeaderUserID: id} }
func asNutritionist(id string) hdr { return hdr{middleware.HeaderNutritionistID: id} }

func (a *testApp) do(method, path string, body any, headers hdr) *httptest.ResponseRecorder {
	a.t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (a *testApp) onboard(id, name string, specialties ...string) {
	a.t.Helper()
	w := a.do(http.MethodPost, "/nutritionists", map[string]any{
		"name":        name,
		"specialties": specialties,
		"available":   true,
	}, asNutritionist(id))
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
}

func (a *testApp) request(userID, nutritionistID, query string) *httptest.ResponseRecorder {
	a.t.Helper()
	return a.do(http.MethodPost, "/session-requests", CreateRequestBody{NutritionistID: nutritionistID, InitialQuery: query}, asUser(userID))
}

// startSession runs request + accept and returns the session id.
func (a *testApp) startSession(userID, nutritionistID, query string) string {
	a.t.Helper()
	w := a.request(userID, nutritionistID, query)
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	reqID := decode[RequestResponse](a.t, w).Request.ID

	w = a.do(http.MethodPost, "/session-requests/"+reqID+"/accept", nil, asNutritionist(nutritionistID))
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[SessionResponse](a.t, w).Session.ID
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[ErrorResponse](t, w).Code
}
