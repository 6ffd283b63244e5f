package auth

import (
	"maps"
	"slices"
)

// Standard claim names read into the typed fields of Claims.
const (
	ClaimSubject = "sub"
	ClaimName    = "name"
	ClaimEmail   = "email"
	ClaimRoles   = "roles"
)

// Claims is the decoded claim set of a verified token.
// It is built once per request and is read-only afterwards.
type Claims struct {
	Subject string  // sub
	Name    *string // name, nil when absent
	Email   *string // email, nil when absent

	roles []string
	raw   map[string]interface{}
}

// NewClaims builds a Claims record from a decoded claim map. The map is
// copied so later changes by the caller are not visible through Claims.
func NewClaims(raw map[string]interface{}) *Claims {
	c := &Claims{
		raw:   maps.Clone(raw),
		roles: []string{},
	}
	if c.raw == nil {
		c.raw = map[string]interface{}{}
	}

	if sub, ok := c.raw[ClaimSubject].(string); ok {
		c.Subject = sub
	}
	c.Name = optionalString(c.raw, ClaimName)
	c.Email = optionalString(c.raw, ClaimEmail)
	c.roles = stringList(c.raw[ClaimRoles])

	return c
}

// RoleList returns a copy of the roles claim. Absent roles yield an empty list.
func (c *Claims) RoleList() []string {
	if c == nil {
		return nil
	}
	return slices.Clone(c.roles)
}

// Raw returns a shallow copy of every decoded claim.
func (c *Claims) Raw() map[string]interface{} {
	return maps.Clone(c.raw)
}

// Get returns a single raw claim value.
func (c *Claims) Get(name string) (interface{}, bool) {
	v, ok := c.raw[name]
	return v, ok
}

func optionalString(raw map[string]interface{}, key string) *string {
	s, ok := raw[key].(string)
	if !ok {
		return nil
	}
	return &s
}

// stringList accepts either a JSON array of strings or a single string.
// Non-string array members are dropped.
func stringList(v interface{}) []string {
	switch t := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return slices.Clone(t)
	case string:
		return []string{t}
	default:
		return []string{}
	}
}
