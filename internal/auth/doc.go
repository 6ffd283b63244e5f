// Package auth provides the identity primitives shared by both gateway modes.
//
// This package implements:
//   - Claims, the typed record produced by bearer token verification
//   - the role gate (RequireRole) and its ForbiddenError
//
// Role checks are plain membership tests against the caller's role list.
// There is no role hierarchy, wildcard or scope handling.
package auth
