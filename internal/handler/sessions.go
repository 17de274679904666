package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"classroll/internal/apperr"
	"classroll/internal/attendance"
	"classroll/internal/auth"
)

type startSessionRequest struct {
	Method  string               `json:"method" binding:"required"`
	Anchor  *attendance.Location `json:"anchor"`
	RadiusM float64              `json:"radius_m"`
}

type codeClaimRequest struct {
	Code string `json:"code" binding:"required"`
}

type locationClaimRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

type manualMarkRequest struct {
	StudentIDs []string `json:"student_ids" binding:"required"`
}

func (h *Handler) StartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	method, ok := attendance.ParseMethod(req.Method)
	if !ok {
		h.fail(c, apperr.Newf(apperr.KindValidation, "method must be one of CODE, LOCATION, MANUAL (got %q)", req.Method))
		return
	}
	sess, err := h.att.StartSession(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"), method, attendance.SessionConfig{
		Anchor:  req.Anchor,
		RadiusM: req.RadiusM,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (h *Handler) ListSessions(c *gin.Context) {
	sessions, err := h.att.ListSessions(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *Handler) ActiveSession(c *gin.Context) {
	sess, err := h.att.GetActiveSession(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) EndActiveSession(c *gin.Context) {
	sess, err := h.att.EndActiveSession(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) GetSession(c *gin.Context) {
	sess, err := h.att.GetSession(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) EndSession(c *gin.Context) {
	sess, err := h.att.EndSession(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) MarkWithCode(c *gin.Context) {
	var req codeClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	rec, err := h.att.MarkWithCode(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"), req.Code)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handler) MarkWithLocation(c *gin.Context) {
	var req locationClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	loc := attendance.Location{Latitude: *req.Latitude, Longitude: *req.Longitude}
	rec, err := h.att.MarkWithLocation(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"), loc)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handler) MarkManual(c *gin.Context) {
	var req manualMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	recs, err := h.att.MarkManual(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"), req.StudentIDs)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}

func (h *Handler) SessionAttendance(c *gin.Context) {
	sum, err := h.att.SessionAttendance(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *Handler) SessionRecords(c *gin.Context) {
	recs, err := h.att.SessionRecords(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}

func (h *Handler) MyAttendance(c *gin.Context) {
	recs, err := h.att.StudentHistory(c.Request.Context(), auth.PrincipalFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}
