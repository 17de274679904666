package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"classroll/internal/account"
	"classroll/internal/apperr"
	"classroll/internal/auth"
)

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// RegisterUser creates an account and signs it in.
func (h *Handler) RegisterUser(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	u, err := h.accounts.Register(c.Request.Context(), req.Name, req.Email, req.Password, req.Role)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respondWithTokens(c, http.StatusCreated, u)
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	u, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respondWithTokens(c, http.StatusOK, u)
}

// Refresh exchanges a refresh token for a new pair. The account must still exist.
func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	claims, err := h.issuer.Parse(req.RefreshToken, auth.TokenRefresh)
	if err != nil {
		h.fail(c, apperr.Unauthenticated("invalid refresh token"))
		return
	}
	u, err := h.accounts.Get(c.Request.Context(), claims.Subject)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			err = apperr.Unauthenticated("account no longer exists")
		}
		h.fail(c, err)
		return
	}
	h.respondWithTokens(c, http.StatusOK, u)
}

func (h *Handler) Me(c *gin.Context) {
	u, err := h.accounts.Get(c.Request.Context(), auth.PrincipalFrom(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) respondWithTokens(c *gin.Context, status int, u account.User) {
	tokens, err := h.issuer.Issue(u.ID, u.Role)
	if err != nil {
		h.fail(c, apperr.Wrap(apperr.KindInternal, "token issue failed", err))
		return
	}
	c.JSON(status, gin.H{
		"user":          u,
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}
