package handler

import (
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/clubrun/run-attendance/internal/repository"
	"github.com/clubrun/run-attendance/internal/utils"
)

// qrImageSize is the pixel edge of generated QR images, large enough to
// scan from a printed A4 poster.
const qrImageSize = 256

// QRHandler mints QR registration posters and resolves their signed
// tokens.
type QRHandler struct {
	runs       *repository.RunRepo
	signingKey string
	ttl        time.Duration
	baseURL    string
}

// NewQRHandler returns a QRHandler.
func NewQRHandler(runs *repository.RunRepo, signingKey string, ttl time.Duration, baseURL string) *QRHandler {
	return &QRHandler{runs: runs, signingKey: signingKey, ttl: ttl, baseURL: baseURL}
}

// Image handles GET /api/qr/:session_code. The PNG encodes a
// registration link carrying a signed token, so scanning the poster
// lands on the form with the session pre-filled and verified.
func (h *QRHandler) Image(c echo.Context) error {
	code := c.Param("session_code")
	run, err := h.runs.GetByCode(c.Request().Context(), code)
	if errors.Is(err, repository.ErrRunNotFound) {
		return fail(c, http.StatusNotFound, KindNotFound, "unknown session code")
	}
	if err != nil {
		return internalError(c, err)
	}

	token, err := utils.MintQRToken(h.signingKey, run.SessionCode, h.ttl)
	if err != nil {
		return internalError(c, err)
	}
	link := h.baseURL + "/register?token=" + url.QueryEscape(token)
	png, err := qrcode.Encode(link, qrcode.Medium, qrImageSize)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"qr_code":    base64.StdEncoding.EncodeToString(png),
		"session_id": run.SessionCode,
		"expires_at": time.Now().UTC().Add(h.ttl).Format(time.RFC3339),
	})
}

// Validate handles GET /api/qr/validate/:token. Both expired and
// tampered tokens are invalid; the error field tells them apart so the
// client can suggest re-printing versus re-scanning.
func (h *QRHandler) Validate(c echo.Context) error {
	sid, err := utils.VerifyQRToken(h.signingKey, c.Param("token"))
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, map[string]any{"valid": true, "session_id": sid})
	case errors.Is(err, utils.ErrTokenExpired):
		return c.JSON(http.StatusOK, map[string]any{"valid": false, "error": "expired"})
	default:
		return c.JSON(http.StatusOK, map[string]any{"valid": false, "error": "invalid"})
	}
}
