// Package principal decodes the client principal that Azure App Service
// authentication injects in front of the application.
//
// The header is trusted as-is. No signature is checked here: only the
// platform (or a reverse proxy that strips the header from client traffic)
// may set it, and the gateway must never be reachable without that layer
// when running in principal mode.
package principal

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// DefaultHeader is the header App Service authentication populates.
const DefaultHeader = "X-MS-CLIENT-PRINCIPAL"

// Claim types read by the helpers in this package.
const (
	ClaimTypeName              = "name"
	ClaimTypePreferredUsername = "preferred_username"
	ClaimTypeRoles             = "roles"
)

var (
	// ErrMissingPrincipal is returned when the principal header is absent or empty
	ErrMissingPrincipal = errors.New("missing client principal header")

	// ErrMalformedPrincipal is returned when the header is not base64 encoded JSON
	ErrMalformedPrincipal = errors.New("malformed client principal header")
)

// Claim is a single (type, value) pair of the principal document.
type Claim struct {
	Type  string `json:"typ"`
	Value string `json:"val"`
}

// Principal is the decoded client principal document.
type Principal struct {
	AuthType string  `json:"auth_typ,omitempty"`
	NameType string  `json:"name_typ,omitempty"`
	RoleType string  `json:"role_typ,omitempty"`
	Claims   []Claim `json:"claims"`

	raw json.RawMessage
}

// Identity is the summary returned by the principal whoami route.
type Identity struct {
	Name  *string  `json:"name"`
	Email *string  `json:"email"`
	Roles []string `json:"roles"`
}

// Source resolves the pre-verified principal for a request.
type Source interface {
	Principal(r *http.Request) (*Principal, error)
}

// HeaderSource reads the principal from a request header set by the platform.
type HeaderSource struct {
	// Header defaults to DefaultHeader when empty.
	Header string
}

// Principal implements Source.
func (s HeaderSource) Principal(r *http.Request) (*Principal, error) {
	header := s.Header
	if header == "" {
		header = DefaultHeader
	}
	return Decode(r.Header.Get(header))
}

// Decode parses a base64 encoded principal document.
func Decode(value string) (*Principal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, ErrMissingPrincipal
	}

	payload, err := decodeBase64(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPrincipal, err)
	}

	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || payload[0] != '{' {
		return nil, fmt.Errorf("%w: payload is not a JSON object", ErrMalformedPrincipal)
	}

	var p Principal
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPrincipal, err)
	}
	p.raw = json.RawMessage(payload)

	return &p, nil
}

// decodeBase64 tries the standard alphabet first, then the unpadded and URL-safe variants.
func decodeBase64(value string) ([]byte, error) {
	var firstErr error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		b, err := enc.DecodeString(value)
		if err == nil {
			return b, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

// MarshalJSON returns the document exactly as it was received.
func (p *Principal) MarshalJSON() ([]byte, error) {
	if len(p.raw) > 0 {
		return p.raw, nil
	}
	type plain Principal
	return json.Marshal((*plain)(p))
}

// FindClaim returns the value of the first claim of type typ.
func FindClaim(claims []Claim, typ string) (string, bool) {
	for _, c := range claims {
		if c.Type == typ {
			return c.Value, true
		}
	}
	return "", false
}

// Roles collects the values of every "roles" claim in document order.
func Roles(claims []Claim) []string {
	roles := []string{}
	for _, c := range claims {
		if c.Type == ClaimTypeRoles {
			roles = append(roles, c.Value)
		}
	}
	return roles
}

// RoleList implements auth.RoleHolder.
func (p *Principal) RoleList() []string {
	if p == nil {
		return nil
	}
	return Roles(p.Claims)
}

// Identity summarises the principal as name, email and roles.
func (p *Principal) Identity() Identity {
	id := Identity{Roles: Roles(p.Claims)}
	if name, ok := FindClaim(p.Claims, ClaimTypeName); ok {
		id.Name = &name
	}
	if email, ok := FindClaim(p.Claims, ClaimTypePreferredUsername); ok {
		id.Email = &email
	}
	return id
}
