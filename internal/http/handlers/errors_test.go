package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/tbourn/nutrichat-backend/internal/services"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", services.ErrSessionNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"forbidden", services.ErrNotParticipant, http.StatusForbidden, ErrCodeForbidden},
		{"pending exists", services.ErrPendingRequestExists, http.StatusConflict, ErrCodePendingRequestExists},
		{"not pending", services.ErrRequestNotPending, http.StatusConflict, ErrCodeRequestNotPending},
		{"active exists", services.ErrUserHasActiveSession, http.StatusConflict, ErrCodeActiveSessionExists},
		{"session ended", services.ErrSessionNotActive, http.StatusConflict, ErrCodeSessionNotActive},
		{"none available", services.ErrNoNutritionistAvailable, http.StatusBadRequest, ErrCodeNoneAvailable},
		{"too long", services.ErrContentTooLong, http.StatusBadRequest, ErrCodeContentTooLong},
		{"query too long", services.ErrQueryTooLong, http.StatusBadRequest, ErrCodeContentTooLong},
		{"empty", services.ErrEmptyContent, http.StatusBadRequest, ErrCodeEmptyContent},
		{"plain validation", services.ErrNameRequired, http.StatusBadRequest, ErrCodeValidation},
		{"wrapped", fmt.Errorf("accept: %w", services.ErrRequestNotFound), http.StatusNotFound, ErrCodeNotFound},
		{"storage wins", errors.Join(services.ErrStorageUnavailable, services.ErrSessionNotFound), http.StatusServiceUnavailable, ErrCodeStorageUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, code := statusFor(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, code)
		})
	}
}

func TestFailErr_HidesInternalDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/x", nil)

	failErr(c, errors.Join(services.ErrStorageUnavailable, errors.New("dial tcp 10.0.0.7:5432: refused")))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.7")
	assert.Contains(t, w.Body.String(), http.StatusText(http.StatusServiceUnavailable))
	assert.Len(t, c.Errors, 1)
}

func TestFailErr_KeepsClientMessage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/x", nil)

	failErr(c, services.ErrSessionNotActive)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), services.ErrSessionNotActive.Error())
	assert.Empty(t, c.Errors)
}

func TestWeakETag(t *testing.T) {
	assert.Equal(t, `W/"messages:s1:3:0"`, weakETag("messages", "s1", 3, int64(0)))
}

func TestNotModified(t *testing.T) {
	gin.SetMode(gin.TestMode)
	etag := weakETag("x", 1)

	cases := []struct {
		name        string
		ifNoneMatch string
		want        bool
	}{
		{"absent", "", false},
		{"exact", etag, true},
		{"in list", `"other", ` + etag, true},
		{"wildcard", "*", true},
		{"stale", weakETag("x", 2), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/x", nil)
			if tc.ifNoneMatch != "" {
				c.Request.Header.Set("If-None-Match", tc.ifNoneMatch)
			}
			assert.Equal(t, tc.want, notModified(c, etag))
			assert.Equal(t, etag, w.Header().Get("ETag"))
		})
	}
}
