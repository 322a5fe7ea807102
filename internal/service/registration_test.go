package service

import (
	"testing"
	"time"

	"github.com/clubrun/run-attendance/internal/utils"
)

func TestResolveSession(t *testing.T) {
	const key = "signing-key"
	engine := &RegistrationEngine{signingKey: key}

	valid, err := utils.MintQRToken(key, "A7K2P", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	expired, err := utils.MintQRToken(key, "A7K2P", -time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	foreign, err := utils.MintQRToken("other-key", "A7K2P", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name       string
		session    string
		wantCode   string
		wantStatus RegisterStatus
	}{
		{"bare code", "A7K2P", "A7K2P", RegisterOK},
		{"lowercase code", "a7k2p", "A7K2P", RegisterOK},
		{"padded code", "  A7K2P ", "A7K2P", RegisterOK},
		{"valid token", valid, "A7K2P", RegisterOK},
		{"expired token", expired, "", RegisterExpiredToken},
		{"foreign signature", foreign, "", RegisterInvalidToken},
		{"garbage token", "a.b.c", "", RegisterInvalidToken},
		{"empty", "", "", RegisterInvalidInput},
		{"whitespace", "   ", "", RegisterInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, status := engine.resolveSession(tc.session)
			if status != tc.wantStatus {
				t.Fatalf("status = %v, want %v", status, tc.wantStatus)
			}
			if code != tc.wantCode {
				t.Errorf("code = %q, want %q", code, tc.wantCode)
			}
		})
	}
}

func TestHintKeyShape(t *testing.T) {
	if got := hintKey(42, "12345678"); got != "attend:42:12345678" {
		t.Errorf("hintKey = %q", got)
	}
}
