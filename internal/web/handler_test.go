package web

import (
	"bytes"
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
	"timeclock/internal/auth"
	"timeclock/internal/store"
)

const (
	adminPassword = "123456"
	signingKey    = "test-key"
)

type testServer struct {
	router *gin.Engine
	store  *store.FileStore
	h      *Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "timeclock.json"))
	require.NoError(t, err)
	hash, err := auth.HashPassword("1234")
	require.NoError(t, err)
	roster := append([]attendance.User{{ID: "9", Name: "SECRETO", Password: hash}}, store.DefaultRoster...)
	_, err = store.Seed(context.Background(), st, roster)
	require.NoError(t, err)

	svc := attendance.NewService(attendance.NewLedger(st), nil)
	h := New(svc, Options{
		Location:      time.UTC,
		AdminPassword: adminPassword,
		SigningKey:    signingKey,
		Issuer:        "timeclock",
		TokenTTL:      time.Hour,
	})
	h.now = func() time.Time { return time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC) }

	r := gin.New()
	h.Register(r, nil)
	return &testServer{router: r, store: st, h: h}
}

func (s *testServer) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.10:5555"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/admin/login", gin.H{"password": adminPassword}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func decodeUsers(t *testing.T, w *httptest.ResponseRecorder) map[string]attendance.User {
	t.Helper()
	var users []attendance.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &users))
	out := map[string]attendance.User{}
	for _, u := range users {
		out[u.ID] = u
	}
	return out
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	s.h.AddHealthCheck("redis", func(context.Context) bool { return false })
	w = s.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"degraded"`)
}

func TestListUsersHidesPasswords(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/users", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "password")

	users := decodeUsers(t, w)
	assert.Len(t, users, 6)
	assert.Equal(t, "ANA ROSA", users["1"].Name)
	assert.False(t, users["1"].IsClockedIn)
}

func TestClockInThenOut(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/clock", gin.H{"userId": "1", "latitude": 40.4, "longitude": -3.7}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Success bool                  `json:"success"`
		Message string                `json:"message"`
		Record  attendance.TimeRecord `json:"record"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Successfully clocked in!", resp.Message)
	assert.Equal(t, "192.0.2.10", resp.Record.IPAddress)
	require.NotNil(t, resp.Record.Latitude)

	users := decodeUsers(t, s.do(t, http.MethodGet, "/api/users", nil, ""))
	assert.True(t, users["1"].IsClockedIn)
	require.NotNil(t, users["1"].LastClockIn)

	// Make sure the second event has a later timestamp than the first.
	time.Sleep(2 * time.Millisecond)
	w = s.do(t, http.MethodPost, "/api/clock", gin.H{"userId": "1"}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "Successfully clocked out!")

	users = decodeUsers(t, s.do(t, http.MethodGet, "/api/users", nil, ""))
	assert.False(t, users["1"].IsClockedIn)
}

func TestClockErrors(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/clock", gin.H{"userId": "404"}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "User not found")

	w = s.do(t, http.MethodPost, "/api/clock", gin.H{"userId": "9", "password": "nope"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Incorrect password")

	w = s.do(t, http.MethodPost, "/api/clock", gin.H{"userId": "9", "password": "1234"}, "")
	assert.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodPost, "/api/clock", gin.H{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Field 'userId' is required")

	w = s.do(t, http.MethodPost, "/api/clock", gin.H{"userId": "1", "latitude": 123.0, "longitude": 0}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Field 'latitude' must be a valid latitude")
}

func TestClockRequiresBothCoordinates(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/clock", gin.H{"userId": "1", "latitude": 40.4}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Field 'longitude' is required when 'latitude' is set")

	w = s.do(t, http.MethodPost, "/api/clock", gin.H{"userId": "1", "longitude": -3.7}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Field 'latitude' is required when 'longitude' is set")

	records, err := s.store.Records(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAdminLogin(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/admin/login", gin.H{"password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := s.login(t)
	claims, err := auth.Parse(token, signingKey, "timeclock")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, claims.Role)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/api/admin-data", "/api/admin/export"} {
		w := s.do(t, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
	w := s.do(t, http.MethodPost, "/api/admin/records", gin.H{}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestManualEntryAndAdminData(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t)

	w := s.do(t, http.MethodPost, "/api/admin/records", gin.H{
		"userName":  "antonio",
		"type":      "in",
		"timestamp": "2025-03-14T08:00",
	}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "Manual in recorded for ANTONIO")

	w = s.do(t, http.MethodPost, "/api/admin/records", gin.H{
		"userName":  "MANOLO",
		"type":      "out",
		"timestamp": "2025-03-13T17:00:00Z",
	}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/admin-data", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var all struct {
		Records  []attendance.TimeRecord `json:"records"`
		Users    []attendance.User       `json:"users"`
		Filtered bool                    `json:"filtered"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	require.Len(t, all.Records, 2)
	assert.Equal(t, "ANTONIO", all.Records[0].UserName, "newest first")
	assert.Equal(t, attendance.ManualIP, all.Records[0].IPAddress)
	assert.False(t, all.Filtered)
	assert.Len(t, all.Users, 6)

	w = s.do(t, http.MethodGet, "/api/admin-data?from=2025-03-13&user=MANOLO", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var filtered struct {
		Records  []attendance.TimeRecord `json:"records"`
		Filtered bool                    `json:"filtered"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &filtered))
	require.Len(t, filtered.Records, 1)
	assert.Equal(t, "MANOLO", filtered.Records[0].UserName)
	assert.True(t, filtered.Filtered)

	w = s.do(t, http.MethodGet, "/api/admin-data?from=13-03-2025", nil, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestManualEntryValidation(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t)

	w := s.do(t, http.MethodPost, "/api/admin/records", gin.H{"userName": "ANTONIO", "type": "lunch", "timestamp": "2025-03-14T08:00"}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Field 'type' must be one of [in out]")

	w = s.do(t, http.MethodPost, "/api/admin/records", gin.H{"userName": "ANTONIO", "type": "in", "timestamp": "yesterday"}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/admin/records", gin.H{"userName": "NADIE", "type": "in", "timestamp": "2025-03-14T08:00"}, token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExport(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t)
	w := s.do(t, http.MethodPost, "/api/admin/records", gin.H{"userName": "PEPITO", "type": "in", "timestamp": "2025-03-14 08:00"}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/admin/export", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="clockwise_export_2025-03-14.csv"`, w.Header().Get("Content-Disposition"))
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `"PEPITO","in","2025-03-14 08:00:00","manual"`, lines[1])

	w = s.do(t, http.MethodGet, "/api/admin/export?format=xlsx", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")

	w = s.do(t, http.MethodGet, "/api/admin/export?format=pdf", nil, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFormatBindingError(t *testing.T) {
	var req clockRequest
	err := json.Unmarshal([]byte(`{"userId": 5}`), &req)
	assert.Equal(t, "Field 'userId' should be of type string", FormatBindingError(err))
	assert.Equal(t, "", FormatBindingError(nil))
}

func TestParseTimestamp(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	got, err := parseTimestamp("2025-03-14T08:00", loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, 3, 14, 7, 0, 0, 0, time.UTC)))

	got, err = parseTimestamp("2025-03-14T08:00:00Z", loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)))

	_, err = parseTimestamp("14/03/2025", loc)
	assert.Error(t, err)
}
