package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/clubrun/run-attendance/internal/config"
)

func invoke(mw echo.MiddlewareFunc, header map[string]string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/calendar/configure", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	handler := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	_ = handler(c)
	return rec
}

func TestAdminAuthPlainSecret(t *testing.T) {
	mw := AdminAuth("topsecret", "")

	cases := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"missing header", nil, http.StatusUnauthorized},
		{"wrong secret", map[string]string{"X-Admin-Secret": "nope"}, http.StatusUnauthorized},
		{"correct secret", map[string]string{"X-Admin-Secret": "topsecret"}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := invoke(mw, tc.header); rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestAdminAuthBcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("topsecret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	// Hash takes precedence: the plain secret configured alongside must
	// not be accepted verbatim.
	mw := AdminAuth("othersecret", string(hash))

	if rec := invoke(mw, map[string]string{"X-Admin-Secret": "topsecret"}); rec.Code != http.StatusOK {
		t.Errorf("matching password rejected: %d", rec.Code)
	}
	if rec := invoke(mw, map[string]string{"X-Admin-Secret": "othersecret"}); rec.Code != http.StatusUnauthorized {
		t.Errorf("plain secret accepted despite configured hash: %d", rec.Code)
	}
	if rec := invoke(mw, map[string]string{"X-Admin-Secret": string(hash)}); rec.Code != http.StatusUnauthorized {
		t.Errorf("hash itself accepted as password: %d", rec.Code)
	}
}

func testRateCfg() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:        true,
		Capacity:       3,
		RefillTokens:   1,
		RefillInterval: 50 * time.Millisecond,
		TTL:            time.Minute,
		Prefix:         "rl",
	}
}

func TestLocalBucketExhaustsAndRefills(t *testing.T) {
	l := newLocalBuckets(testRateCfg())

	for i := 0; i < 3; i++ {
		allowed, _, _ := l.take("10.0.0.1")
		if !allowed {
			t.Fatalf("request %d blocked inside burst", i)
		}
	}
	allowed, _, retryMs := l.take("10.0.0.1")
	if allowed {
		t.Fatal("fourth request allowed past the burst")
	}
	if retryMs <= 0 {
		t.Errorf("retry hint = %dms, want > 0", retryMs)
	}

	time.Sleep(60 * time.Millisecond)
	if allowed, _, _ := l.take("10.0.0.1"); !allowed {
		t.Error("request blocked after refill interval elapsed")
	}
}

func TestLocalBucketIsolatesClients(t *testing.T) {
	l := newLocalBuckets(testRateCfg())

	for i := 0; i < 3; i++ {
		l.take("10.0.0.1")
	}
	if allowed, _, _ := l.take("10.0.0.2"); !allowed {
		t.Error("second client penalised for first client's burst")
	}
}

func TestTokenBucketFallsBackWithoutRedis(t *testing.T) {
	mw := NewTokenBucket(testRateCfg(), nil)

	var last *httptest.ResponseRecorder
	for i := 0; i < 4; i++ {
		last = invoke(mw, nil)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 after burst", last.Code)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Error("429 without Retry-After header")
	}
}

func TestTokenBucketDisabledPassesThrough(t *testing.T) {
	cfg := testRateCfg()
	cfg.Enabled = false
	mw := NewTokenBucket(cfg, nil)

	for i := 0; i < 50; i++ {
		if rec := invoke(mw, nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rec.Code)
		}
	}
}

func TestCachePayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": []string{"application/json"}}
	body := []byte(`{"data":[]}`)

	payload, err := encodePayload(http.StatusOK, hdr, body)
	if err != nil {
		t.Fatal(err)
	}
	status, gotHdr, gotBody, ok := decodePayload(payload)
	if !ok {
		t.Fatal("decode failed")
	}
	if status != http.StatusOK {
		t.Errorf("status = %d", status)
	}
	if gotHdr.Get("Content-Type") != "application/json" {
		t.Errorf("header = %v", gotHdr)
	}
	if string(gotBody) != string(body) {
		t.Errorf("body = %q", gotBody)
	}
}

func TestDecodePayloadRejectsTruncated(t *testing.T) {
	for _, bs := range [][]byte{nil, {1, 2, 3}, make([]byte, 8)} {
		if _, _, _, ok := decodePayload(bs); ok && len(bs) < 8 {
			t.Errorf("accepted %d-byte payload", len(bs))
		}
	}
}
