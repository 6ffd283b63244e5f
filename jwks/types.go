package jwks

import (
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"strings"
)

// JWKS represents the JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg,omitempty"`
	Use string `json:"use,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// NewRSAJWK encodes an RSA public key as a signing JWK.
func NewRSAJWK(kid string, pub *rsa.PublicKey) JWK {
	return JWK{
		Kid: kid,
		Kty: "RSA",
		Alg: "RS256",
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

// KeySet is an immutable kid → RSA public key index.
type KeySet struct {
	keys map[string]*rsa.PublicKey
}

// NewKeySet indexes the usable RSA signing keys of doc. Entries that cannot
// be used are skipped; the returned error joins the reasons and is
// informational, the set is always usable.
func NewKeySet(doc JWKS) (*KeySet, error) {
	ks := &KeySet{keys: make(map[string]*rsa.PublicKey, len(doc.Keys))}
	var errs []error
	for i := range doc.Keys {
		jwk := &doc.Keys[i]
		if jwk.Kid == "" {
			errs = append(errs, fmt.Errorf("key %d: missing kid", i))
			continue
		}
		if jwk.Use != "" && jwk.Use != "sig" {
			errs = append(errs, fmt.Errorf("key %s: unsupported use %q", jwk.Kid, jwk.Use))
			continue
		}
		pub, err := jwkToRSAPublicKey(jwk)
		if err != nil {
			errs = append(errs, fmt.Errorf("key %s: %w", jwk.Kid, err))
			continue
		}
		ks.keys[jwk.Kid] = pub
	}
	return ks, errors.Join(errs...)
}

// Lookup returns the key published under kid.
func (ks *KeySet) Lookup(kid string) (*rsa.PublicKey, bool) {
	if ks == nil {
		return nil, false
	}
	key, ok := ks.keys[kid]
	return key, ok
}

// Len returns the number of usable keys.
func (ks *KeySet) Len() int {
	if ks == nil {
		return 0
	}
	return len(ks.keys)
}

// KeyIDs returns the sorted key ids.
func (ks *KeySet) KeyIDs() []string {
	if ks == nil {
		return nil
	}
	ids := make([]string, 0, len(ks.keys))
	for kid := range ks.keys {
		ids = append(ids, kid)
	}
	slices.Sort(ids)
	return ids
}

// jwkToRSAPublicKey converts a JWK to an RSA public key
func jwkToRSAPublicKey(jwk *JWK) (*rsa.PublicKey, error) {
	if jwk.Kty != "RSA" {
		return nil, fmt.Errorf("unsupported key type %q", jwk.Kty)
	}

	nBytes, err := decodeSegment(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eBytes, err := decodeSegment(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}
	if len(nBytes) == 0 || len(eBytes) == 0 || len(eBytes) > 4 {
		return nil, errors.New("invalid modulus or exponent")
	}

	var e int
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	if e < 2 {
		return nil, errors.New("invalid exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}

// decodeSegment accepts base64url with or without padding.
func decodeSegment(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
