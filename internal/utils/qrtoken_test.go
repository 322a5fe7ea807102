package utils

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-signing-key"

func TestQRTokenRoundTrip(t *testing.T) {
	tok, err := MintQRToken(testSecret, "A7K2P", time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	sid, err := VerifyQRToken(testSecret, tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if sid != "A7K2P" {
		t.Errorf("session code = %q, want A7K2P", sid)
	}
}

func TestQRTokenExpired(t *testing.T) {
	tok, err := MintQRToken(testSecret, "A7K2P", -time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := VerifyQRToken(testSecret, tok); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("got %v, want ErrTokenExpired", err)
	}
}

func TestQRTokenInvalid(t *testing.T) {
	good, err := MintQRToken(testSecret, "A7K2P", time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	// Flip one character in the signature segment.
	parts := strings.Split(good, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	cases := []struct {
		name   string
		secret string
		token  string
	}{
		{"tampered signature", testSecret, tampered},
		{"wrong secret", "another-key", good},
		{"garbage", testSecret, "not.a.token"},
		{"empty", testSecret, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := VerifyQRToken(tc.secret, tc.token); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("got %v, want ErrTokenInvalid", err)
			}
		})
	}
}

func TestQRTokenRejectsWrongClaims(t *testing.T) {
	now := time.Now().UTC()
	cases := []struct {
		name   string
		claims jwt.MapClaims
	}{
		{"missing typ", jwt.MapClaims{"sid": "A7K2P", "exp": now.Add(time.Hour).Unix()}},
		{"wrong typ", jwt.MapClaims{"sid": "A7K2P", "typ": "refresh", "exp": now.Add(time.Hour).Unix()}},
		{"missing sid", jwt.MapClaims{"typ": "qr", "exp": now.Add(time.Hour).Unix()}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tc.claims).SignedString([]byte(testSecret))
			if err != nil {
				t.Fatalf("sign: %v", err)
			}
			if _, err := VerifyQRToken(testSecret, tok); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("got %v, want ErrTokenInvalid", err)
			}
		})
	}
}

func TestQRTokenRejectsUnsignedAlgorithm(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sid": "A7K2P", "typ": "qr", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := VerifyQRToken(testSecret, tok); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("got %v, want ErrTokenInvalid", err)
	}
}
