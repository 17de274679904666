package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"classroll/internal/apperr"
)

const principalKey = "principal"

// Authenticate enforces bearer access tokens and stores the Principal on the context.
func Authenticate(issuer Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			abort(c, http.StatusUnauthorized, apperr.KindUnauthenticated, "missing bearer token")
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := issuer.Parse(tokenStr, TokenAccess)
		if err != nil {
			abort(c, http.StatusUnauthorized, apperr.KindUnauthenticated, "invalid token")
			return
		}
		c.Set(principalKey, claims.Principal())
		c.Next()
	}
}

// RequireRole rejects callers whose role is not role. Must run after Authenticate.
func RequireRole(role Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := Require(PrincipalFrom(c), role); err != nil {
			kind := apperr.KindOf(err)
			status := http.StatusForbidden
			if kind == apperr.KindUnauthenticated {
				status = http.StatusUnauthorized
			}
			abort(c, status, kind, err.Error())
			return
		}
		c.Next()
	}
}

// PrincipalFrom returns the authenticated caller, or the zero Principal.
func PrincipalFrom(c *gin.Context) Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}
	}
	p, _ := v.(Principal)
	return p
}

func abort(c *gin.Context, status int, kind apperr.Kind, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"kind": kind, "message": msg}})
}
