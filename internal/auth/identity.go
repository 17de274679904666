package auth

import (
	"strings"

	"classroll/internal/apperr"
)

// Role is the immutable role of an account.
type Role string

const (
	RoleFaculty Role = "FACULTY"
	RoleStudent Role = "STUDENT"
)

// ParseRole normalizes a role name; ok is false for unknown roles.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleFaculty, RoleStudent:
		return r, true
	}
	return "", false
}

// Principal is the verified caller of an operation.
type Principal struct {
	ID   string
	Role Role
}

// Require fails with Forbidden unless p holds role.
func Require(p Principal, role Role) error {
	if p.ID == "" {
		return apperr.Unauthenticated("not authenticated")
	}
	if p.Role != role {
		return apperr.Newf(apperr.KindForbidden, "requires %s role", strings.ToLower(string(role)))
	}
	return nil
}
