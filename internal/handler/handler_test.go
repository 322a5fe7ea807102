package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/clubrun/run-attendance/internal/utils"
)

type testValidator struct{ v *validator.Validate }

func (tv *testValidator) Validate(i interface{}) error { return tv.v.Struct(i) }

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = &testValidator{v: validator.New()}
	return e
}

func doJSON(e *echo.Echo, method, target, body string, h echo.HandlerFunc, params ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	var names, values []string
	for i := 0; i+1 < len(params); i += 2 {
		names = append(names, params[i])
		values = append(values, params[i+1])
	}
	if len(names) > 0 {
		c.SetParamNames(names...)
		c.SetParamValues(values...)
	}
	_ = h(c)
	return rec
}

func decodeErr(t *testing.T, rec *httptest.ResponseRecorder) errBody {
	t.Helper()
	var body errBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	return body
}

func TestHealth(t *testing.T) {
	rec := doJSON(newEcho(), http.MethodGet, "/health", "", Health)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestRegisterRejectsMalformedRequests(t *testing.T) {
	h := NewRegisterHandler(nil) // rejected before the engine is touched
	e := newEcho()

	cases := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"missing session", `{"runner_name":"12345678"}`},
		{"missing runner", `{"session_id":"A7K2P"}`},
		{"bad timestamp", `{"session_id":"A7K2P","runner_name":"x","timestamp":"yesterday"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(e, http.MethodPost, "/api/register", tc.body, h.Register)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if body := decodeErr(t, rec); body.Error != KindMalformed {
				t.Errorf("error kind = %q, want %q", body.Error, KindMalformed)
			}
		})
	}
}

func TestCalendarMonthValidation(t *testing.T) {
	h := NewCalendarHandler(nil)
	e := newEcho()

	for _, month := range []string{"", "2025", "2025-13", "03-2025", "2025-3"} {
		rec := doJSON(e, http.MethodGet, "/api/calendar?month="+month, "", h.Month)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("month %q: status = %d, want 400", month, rec.Code)
		}
	}
}

func TestCalendarConfigureValidation(t *testing.T) {
	h := NewCalendarHandler(nil)
	e := newEcho()

	cases := []string{
		`{"has_run":true}`,
		`{"date":"10-03-2025","has_run":true}`,
		`{"date":"2025-03-10"}`,
	}
	for _, body := range cases {
		rec := doJSON(e, http.MethodPost, "/api/calendar/configure", body, h.Configure)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestHistoryPaginationValidation(t *testing.T) {
	h := NewAttendanceHandler(nil, nil, nil)
	e := newEcho()

	cases := []string{
		"/api/attendance/history?page=0",
		"/api/attendance/history?page=x",
		"/api/attendance/history?page_size=0",
		"/api/attendance/history?page_size=1001",
		"/api/attendance/history?start_date=March",
		"/api/attendance/history?end_date=2025-3-1",
	}
	for _, target := range cases {
		rec := doJSON(e, http.MethodGet, target, "", h.History)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestRosterValidatesID(t *testing.T) {
	h := NewAttendanceHandler(nil, nil, nil)
	e := newEcho()

	for _, id := range []string{"", "abc", "-1"} {
		rec := doJSON(e, http.MethodGet, "/api/attendance/run/x", "", h.Roster, "id", id)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("id %q: status = %d, want 400", id, rec.Code)
		}
	}
}

func TestDateWindowDefaults(t *testing.T) {
	e := newEcho()
	req := httptest.NewRequest(http.MethodGet, "/api/attendance/history", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	start, end, ok := dateWindow(c)
	if !ok {
		t.Fatal("empty window should be valid")
	}
	if start != "0001-01-01" || end != "9999-12-31" {
		t.Errorf("window = [%s, %s]", start, end)
	}
}

func TestQRValidate(t *testing.T) {
	const key = "signing-key"
	h := NewQRHandler(nil, key, time.Hour, "http://localhost:8080")
	e := newEcho()

	valid, err := utils.MintQRToken(key, "A7K2P", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	expired, err := utils.MintQRToken(key, "A7K2P", -time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name  string
		token string
		want  string
	}{
		{"valid", valid, `"valid":true`},
		{"expired", expired, `"error":"expired"`},
		{"garbage", "nope", `"error":"invalid"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(e, http.MethodGet, "/api/qr/validate/x", "", h.Validate, "token", tc.token)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tc.want) {
				t.Errorf("body %s does not contain %s", rec.Body.String(), tc.want)
			}
		})
	}
}

func TestOverrideRemoveValidatesID(t *testing.T) {
	h := NewOverrideHandler(nil)
	e := newEcho()

	for _, id := range []string{"", "abc", "-4"} {
		rec := doJSON(e, http.MethodDelete, "/api/attendance/override/x", "", h.Remove, "id", id)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("id %q: status = %d, want 400", id, rec.Code)
		}
	}
}

func TestOverrideSearchRequiresRunnerID(t *testing.T) {
	h := NewOverrideHandler(nil)
	rec := doJSON(newEcho(), http.MethodGet, "/api/attendance/override/search", "", h.Search)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
