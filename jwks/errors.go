package jwks

import "errors"

var (
	// ErrKeyFetch is returned when the signing key set cannot be retrieved
	ErrKeyFetch = errors.New("failed to fetch signing keys")

	// ErrInvalidToken is returned for any token that fails verification
	ErrInvalidToken = errors.New("invalid token")

	// ErrKeyNotFound is returned when no key matches the token's kid.
	// It always travels together with ErrInvalidToken.
	ErrKeyNotFound = errors.New("public key not found")
)

// InvalidTokenError carries the reason a token was rejected.
// errors.Is matches ErrInvalidToken and the wrapped cause.
type InvalidTokenError struct {
	Reason string
	Err    error
}

func (e *InvalidTokenError) Error() string {
	return "invalid token: " + e.Reason
}

func (e *InvalidTokenError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidToken}
	}
	return []error{ErrInvalidToken, e.Err}
}
