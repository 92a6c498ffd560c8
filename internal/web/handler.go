package web

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"timeclock/internal/attendance"
	"timeclock/internal/auth"
	"timeclock/internal/report"
)

const msgUnexpected = "An unexpected error occurred."

// Options configures the HTTP layer.
type Options struct {
	Location      *time.Location
	AdminPassword string
	SigningKey    string
	Issuer        string
	TokenTTL      time.Duration
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) bool

type Handler struct {
	svc    *attendance.Service
	ledger *attendance.Ledger
	opts   Options
	checks map[string]HealthCheck
	now    func() time.Time
}

func New(svc *attendance.Service, opts Options) *Handler {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 8 * time.Hour
	}
	return &Handler{
		svc:    svc,
		ledger: svc.Ledger(),
		opts:   opts,
		checks: map[string]HealthCheck{},
		now:    time.Now,
	}
}

// AddHealthCheck includes fn in /healthz under name.
func (h *Handler) AddHealthCheck(name string, fn HealthCheck) {
	h.checks[name] = fn
}

// Register mounts all routes on r. clockLimit guards the clock endpoint and
// may be nil.
func (h *Handler) Register(r gin.IRouter, clockLimit gin.HandlerFunc) {
	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		api.GET("/users", h.ListUsers)
		if clockLimit != nil {
			api.POST("/clock", clockLimit, h.Clock)
		} else {
			api.POST("/clock", h.Clock)
		}
		api.POST("/admin/login", h.AdminLogin)
	}

	admin := api.Group("", auth.AdminAuth(h.opts.SigningKey, h.opts.Issuer))
	{
		admin.GET("/admin-data", h.AdminData)
		admin.POST("/admin/records", h.ManualEntry)
		admin.GET("/admin/export", h.Export)
	}
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// ---------- Clock station ----------

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.ledger.Users(c.Request.Context())
	if err != nil {
		h.fail(c, "list users", err)
		return
	}
	if users == nil {
		users = []attendance.User{}
	}
	c.JSON(http.StatusOK, users)
}

type clockRequest struct {
	UserID    string   `json:"userId" binding:"required"`
	Password  string   `json:"password"`
	Latitude  *float64 `json:"latitude" binding:"required_with=Longitude,omitempty,latitude"`
	Longitude *float64 `json:"longitude" binding:"required_with=Latitude,omitempty,longitude"`
}

// Clock toggles the caller's state between in and out.
func (h *Handler) Clock(c *gin.Context) {
	var req clockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": FormatBindingError(err)})
		return
	}
	var geo *attendance.Geo
	if req.Latitude != nil {
		geo = &attendance.Geo{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}

	res, err := h.svc.Clock(c.Request.Context(), req.UserID, req.Password, clientIP(c), geo)
	switch {
	case errors.Is(err, attendance.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	case errors.Is(err, attendance.ErrWrongPassword):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Incorrect password"})
		return
	case err != nil:
		h.fail(c, "clock "+req.UserID, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": res.Message, "record": res.Record})
}

func clientIP(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "127.0.0.1"
}

// ---------- Admin ----------

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

func (h *Handler) AdminLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": FormatBindingError(err)})
		return
	}
	if !auth.MatchSecret(h.opts.AdminPassword, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Incorrect password"})
		return
	}
	tok, err := auth.Issue("admin", auth.RoleAdmin, h.opts.Issuer, h.opts.SigningKey, h.opts.TokenTTL)
	if err != nil {
		h.fail(c, "issue admin token", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": tok.AccessToken,
		"expires_at":   tok.ExpiresAt.Unix(),
	})
}

// filteredRecords applies the from/to/user query filters to the ledger.
func (h *Handler) filteredRecords(c *gin.Context) ([]attendance.TimeRecord, report.Filter, bool) {
	f, err := report.ParseFilter(c.Query("from"), c.Query("to"), c.Query("user"), h.opts.Location)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Dates must use the YYYY-MM-DD format"})
		return nil, report.Filter{}, false
	}
	records, err := h.ledger.ListRecords(c.Request.Context())
	if err != nil {
		h.fail(c, "list records", err)
		return nil, report.Filter{}, false
	}
	return f.Apply(records, h.opts.Location), f, true
}

func (h *Handler) AdminData(c *gin.Context) {
	records, f, ok := h.filteredRecords(c)
	if !ok {
		return
	}
	users, err := h.ledger.Users(c.Request.Context())
	if err != nil {
		h.fail(c, "list users", err)
		return
	}
	if users == nil {
		users = []attendance.User{}
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "users": users, "filtered": f.Active()})
}

type manualEntryRequest struct {
	UserName  string `json:"userName" binding:"required"`
	Type      string `json:"type" binding:"required,oneof=in out"`
	Timestamp string `json:"timestamp" binding:"required"`
}

// ManualEntry back-fills an event for an employee who forgot to clock.
func (h *Handler) ManualEntry(c *gin.Context) {
	var req manualEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": FormatBindingError(err)})
		return
	}
	ts, err := parseTimestamp(req.Timestamp, h.opts.Location)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Field 'timestamp' must be a date and time"})
		return
	}

	res, err := h.svc.ManualEntry(c.Request.Context(), req.UserName, attendance.EventType(req.Type), ts)
	switch {
	case errors.Is(err, attendance.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	case err != nil:
		h.fail(c, "manual entry for "+req.UserName, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": res.Message, "record": res.Record})
}

func (h *Handler) Export(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	if format != "csv" && format != "xlsx" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be csv or xlsx"})
		return
	}
	records, _, ok := h.filteredRecords(c)
	if !ok {
		return
	}

	var (
		buf         bytes.Buffer
		err         error
		contentType string
	)
	if format == "xlsx" {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		err = report.WriteXLSX(&buf, records, h.opts.Location)
	} else {
		contentType = "text/csv; charset=utf-8"
		err = report.WriteCSV(&buf, records, h.opts.Location)
	}
	if err != nil {
		h.fail(c, "export "+format, err)
		return
	}
	name := report.ExportFilename(h.now().In(h.opts.Location), format)
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

func (h *Handler) fail(c *gin.Context, what string, err error) {
	log.Printf("%s: %v", what, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msgUnexpected})
}
