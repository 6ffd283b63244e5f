package auth

import (
	"errors"
	"fmt"
	"slices"
)

// Roles gating the built-in data routes.
const (
	RoleRead  = "READ"
	RoleWrite = "WRITE"
)

// ErrForbidden matches every ForbiddenError via errors.Is.
var ErrForbidden = errors.New("forbidden")

// ForbiddenError is returned when an authenticated caller lacks a required role.
type ForbiddenError struct {
	Role string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("Missing role: %s", e.Role)
}

// Is reports whether target is ErrForbidden.
func (e *ForbiddenError) Is(target error) bool {
	return target == ErrForbidden
}

// RoleHolder is any resolved identity that carries a list of role names.
type RoleHolder interface {
	RoleList() []string
}

// HasRole reports whether holder carries role. Comparison is exact and case-sensitive.
func HasRole(holder RoleHolder, role string) bool {
	if holder == nil {
		return false
	}
	return slices.Contains(holder.RoleList(), role)
}

// RequireRole passes src through unchanged when it carries role, and fails
// with a *ForbiddenError otherwise.
func RequireRole[T RoleHolder](role string, src T) (T, error) {
	if !HasRole(src, role) {
		var zero T
		return zero, &ForbiddenError{Role: role}
	}
	return src, nil
}
