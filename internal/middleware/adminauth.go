// Package middleware contains the echo middleware applied by the
// router: admin authentication, per-IP rate limiting and the Redis
// response cache.
package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clubrun/run-attendance/internal/utils"
)

// AdminAuth guards administrative endpoints with a shared secret passed
// in the X-Admin-Secret header. When a bcrypt hash is configured it is
// checked against the presented secret; otherwise the plain secret is
// compared in constant time. Both a missing header and a wrong secret
// yield the same 401 body.
func AdminAuth(secret, secretHash string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			presented := c.Request().Header.Get("X-Admin-Secret")
			if presented == "" || !adminSecretOK(presented, secret, secretHash) {
				return c.JSON(http.StatusUnauthorized, map[string]any{
					"success": false,
					"error":   "unauthorized",
					"message": "missing or invalid admin secret",
				})
			}
			return next(c)
		}
	}
}

func adminSecretOK(presented, secret, secretHash string) bool {
	if secretHash != "" {
		return utils.VerifyAdminSecret(secretHash, presented)
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) == 1
}
