package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"classroll/internal/attendance"
	"classroll/internal/auth"
)

const dateLayout = "2006-01-02"

type createClassRequest struct {
	Name string `json:"name" binding:"required"`
}

type joinClassRequest struct {
	JoinCode string `json:"join_code" binding:"required"`
}

func (h *Handler) CreateClass(c *gin.Context) {
	var req createClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	class, err := h.att.CreateClass(c.Request.Context(), auth.PrincipalFrom(c), req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, class)
}

func (h *Handler) ListClasses(c *gin.Context) {
	classes, err := h.att.ListClasses(c.Request.Context(), auth.PrincipalFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	if classes == nil {
		classes = []attendance.Class{}
	}
	c.JSON(http.StatusOK, gin.H{"classes": classes})
}

func (h *Handler) JoinClass(c *gin.Context) {
	var req joinClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	class, err := h.att.JoinClass(c.Request.Context(), auth.PrincipalFrom(c), req.JoinCode)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, class)
}

func (h *Handler) GetClass(c *gin.Context) {
	class, err := h.att.GetClass(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, class)
}

func (h *Handler) DeleteClass(c *gin.Context) {
	if err := h.att.DeleteClass(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Roster(c *gin.Context) {
	ids, err := h.att.Roster(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"student_ids": ids})
}

// ClassAttendance summarizes the sessions started on ?date=YYYY-MM-DD (UTC),
// today when omitted.
func (h *Handler) ClassAttendance(c *gin.Context) {
	day := time.Now().UTC()
	if v := c.Query("date"); v != "" {
		parsed, err := time.Parse(dateLayout, v)
		if err != nil {
			h.badRequest(c, err)
			return
		}
		day = parsed
	}
	sum, err := h.att.ClassAttendanceOn(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"), day)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": day.Format(dateLayout), "summary": sum})
}
