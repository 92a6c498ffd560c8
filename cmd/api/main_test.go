package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeclock/internal/attendance"
	"timeclock/internal/config"
	"timeclock/internal/store"
	"timeclock/internal/web"
)

func testRouter(t *testing.T, cfg config.App) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "timeclock.json"))
	require.NoError(t, err)
	_, err = store.Seed(context.Background(), st, store.DefaultRoster)
	require.NoError(t, err)

	svc := attendance.NewService(attendance.NewLedger(st), nil)
	h := web.New(svc, web.Options{Location: time.UTC, AdminPassword: "123456", SigningKey: "k", Issuer: "timeclock"})
	r, err := newRouter(cfg, h)
	require.NoError(t, err)
	return r
}

func clock(r *gin.Engine, userID, forwardedFor string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/clock", strings.NewReader(`{"userId":"`+userID+`"}`))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.1:40000"
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func recordedIP(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Record attendance.TimeRecord `json:"record"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Record.IPAddress
}

func TestForwardedForIgnoredWithoutTrustedProxies(t *testing.T) {
	r := testRouter(t, config.App{RateLimitPerMin: 1})

	w := clock(r, "1", "203.0.113.7")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "192.0.2.1", recordedIP(t, w))

	w = clock(r, "2", "203.0.113.8")
	assert.Equal(t, http.StatusTooManyRequests, w.Code, "a new forwarded address must not reset the limit")
}

func TestForwardedForHonouredFromTrustedProxy(t *testing.T) {
	r := testRouter(t, config.App{RateLimitPerMin: 1, TrustedProxies: []string{"192.0.2.1"}})

	w := clock(r, "1", "203.0.113.7")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "203.0.113.7", recordedIP(t, w))

	w = clock(r, "2", "203.0.113.8")
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestNewRouterRejectsBadProxy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := attendance.NewService(attendance.NewLedger(nil), nil)
	_, err := newRouter(config.App{TrustedProxies: []string{"not-an-ip"}}, web.New(svc, web.Options{}))
	assert.ErrorContains(t, err, "trusted proxies")
}
