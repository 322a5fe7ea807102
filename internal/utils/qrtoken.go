package utils // package utils provides helper functions for token creation and code generation

import (
	"errors"
	"time" // time utilities for generating expirations

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// ErrTokenExpired is returned by VerifyQRToken for a well-formed token
// whose expiry has elapsed.
var ErrTokenExpired = errors.New("qr token expired")

// ErrTokenInvalid is returned for tokens that fail signature checks, use
// an unexpected algorithm, or do not carry the QR claim shape. Any
// single-bit mutation of a minted token lands here.
var ErrTokenInvalid = errors.New("qr token invalid")

// MintQRToken builds and signs an HS256 JWT binding a session code to an
// expiry. The JWT carries the session code (sid), a type marker (typ),
// expiration (exp) and issued at (iat). The same service-held key later
// verifies the token, so a QR image stays valid across restarts.
func MintQRToken(secret, sessionCode string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sid": sessionCode,
		"typ": "qr",
		"exp": now.Add(ttl).Unix(),
		"iat": now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(secret))
}

// VerifyQRToken checks a QR token's signature and expiry and returns the
// session code it was minted for. Expired tokens yield ErrTokenExpired;
// every other failure mode yields ErrTokenInvalid.
func VerifyQRToken(secret, token string) (string, error) {
	tok, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		// Type assert the signing method to HMAC; reject others.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenInvalid
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return "", ErrTokenInvalid
	}
	if typ, _ := claims["typ"].(string); typ != "qr" {
		return "", ErrTokenInvalid
	}
	sid, _ := claims["sid"].(string)
	if sid == "" {
		return "", ErrTokenInvalid
	}
	return sid, nil
}
