// Package handler exposes the account, class, session and ledger operations
// over HTTP.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"classroll/internal/account"
	"classroll/internal/apperr"
	"classroll/internal/attendance"
	"classroll/internal/auth"
)

type Handler struct {
	accounts *account.Service
	att      *attendance.Service
	issuer   auth.Issuer
	log      *zap.Logger
}

func New(accounts *account.Service, att *attendance.Service, issuer auth.Issuer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{accounts: accounts, att: att, issuer: issuer, log: logger}
}

// Register mounts the /v1 API on r. limit, when non-nil, runs before the
// public auth routes and after token authentication everywhere else, so
// callers are keyed by IP or by user respectively.
func (h *Handler) Register(r gin.IRouter, limit gin.HandlerFunc) {
	var public, authed []gin.HandlerFunc
	authed = append(authed, auth.Authenticate(h.issuer))
	if limit != nil {
		public = append(public, limit)
		authed = append(authed, limit)
	}
	v1 := r.Group("/v1")

	// ---------- Auth ----------
	pub := v1.Group("/auth", public...)
	pub.POST("/register", h.RegisterUser)
	pub.POST("/login", h.Login)
	pub.POST("/refresh", h.Refresh)

	api := v1.Group("", authed...)
	faculty := auth.RequireRole(auth.RoleFaculty)
	student := auth.RequireRole(auth.RoleStudent)

	api.GET("/auth/me", h.Me)

	// ---------- Classes ----------
	api.POST("/classes", faculty, h.CreateClass)
	api.GET("/classes", h.ListClasses)
	api.POST("/classes/join", student, h.JoinClass)
	api.GET("/classes/:id", h.GetClass)
	api.DELETE("/classes/:id", faculty, h.DeleteClass)
	api.GET("/classes/:id/students", faculty, h.Roster)
	api.GET("/classes/:id/attendance", faculty, h.ClassAttendance)

	// ---------- Sessions ----------
	api.POST("/classes/:id/sessions", faculty, h.StartSession)
	api.GET("/classes/:id/sessions", faculty, h.ListSessions)
	api.GET("/classes/:id/sessions/active", h.ActiveSession)
	api.POST("/classes/:id/sessions/active/end", faculty, h.EndActiveSession)
	api.GET("/sessions/:id", faculty, h.GetSession)
	api.POST("/sessions/:id/end", faculty, h.EndSession)

	// ---------- Ledger ----------
	api.POST("/sessions/:id/attendance/code", student, h.MarkWithCode)
	api.POST("/sessions/:id/attendance/location", student, h.MarkWithLocation)
	api.POST("/sessions/:id/attendance/manual", faculty, h.MarkManual)
	api.GET("/sessions/:id/attendance", faculty, h.SessionAttendance)
	api.GET("/sessions/:id/records", faculty, h.SessionRecords)
	api.GET("/me/attendance", student, h.MyAttendance)
}

var statusByKind = map[apperr.Kind]int{
	apperr.KindUnauthenticated:       http.StatusUnauthorized,
	apperr.KindForbidden:             http.StatusForbidden,
	apperr.KindNotEnrolled:           http.StatusForbidden,
	apperr.KindNotFound:              http.StatusNotFound,
	apperr.KindNoActiveSession:       http.StatusNotFound,
	apperr.KindValidation:            http.StatusBadRequest,
	apperr.KindConflict:              http.StatusConflict,
	apperr.KindConflictActiveSession: http.StatusConflict,
	apperr.KindAlreadyEnrolled:       http.StatusConflict,
	apperr.KindDuplicateAttendance:   http.StatusConflict,
	apperr.KindSessionNotActive:      http.StatusConflict,
	apperr.KindWrongMethod:           http.StatusUnprocessableEntity,
	apperr.KindCodeMismatch:          http.StatusUnprocessableEntity,
	apperr.KindTooFarAway:            http.StatusUnprocessableEntity,
	apperr.KindRateLimited:           http.StatusTooManyRequests,
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	if status, ok := statusByKind[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// fail writes the error envelope. Internal causes are logged, never returned.
func (h *Handler) fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	body := gin.H{"kind": kind}
	if kind == apperr.KindInternal {
		h.log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		body["message"] = "internal error"
	} else {
		body["message"] = message(err)
	}
	var appErr *apperr.Error
	if kind == apperr.KindTooFarAway && errors.As(err, &appErr) {
		body["distance_m"] = appErr.Distance
	}
	c.AbortWithStatusJSON(StatusFor(kind), gin.H{"error": body})
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	h.fail(c, apperr.Wrap(apperr.KindValidation, err.Error(), err))
}

func message(err error) string {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
