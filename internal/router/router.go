// Package router assembles the echo instance: global middleware, the
// request validator and every route of the HTTP surface.
package router

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/clubrun/run-attendance/internal/config"
	"github.com/clubrun/run-attendance/internal/handler"
	"github.com/clubrun/run-attendance/internal/middleware"
)

// requestValidator adapts validator/v10 to echo's Validator interface.
type requestValidator struct {
	v *validator.Validate
}

func (rv *requestValidator) Validate(i interface{}) error { return rv.v.Struct(i) }

// Handlers bundles every handler the router mounts.
type Handlers struct {
	Calendar   *handler.CalendarHandler
	Register   *handler.RegisterHandler
	Attendance *handler.AttendanceHandler
	Override   *handler.OverrideHandler
	QR         *handler.QRHandler
	Export     *handler.ExportHandler
	Events     *handler.EventsHandler
}

// New builds the echo instance with logging, panic recovery, CORS and
// body-size limits applied globally.
func New(cfg config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &requestValidator{v: validator.New()}

	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(echomw.BodyLimit("64K"))
	if len(cfg.AllowedOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins: cfg.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowHeaders: []string{echo.HeaderContentType, "X-Admin-Secret"},
		}))
	}
	return e
}

// Register mounts every route. The rate limiter guards only the
// registration hot path; the response cache fronts only the read-only
// calendar and history views; admin routes all share one gate.
func Register(e *echo.Echo, cfg config.Config, h Handlers, rdb *redis.Client) {
	e.GET("/health", handler.Health)
	e.GET("/events", h.Events.Serve)

	api := e.Group("/api")

	limited := api.Group("")
	limited.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	limited.POST("/register", h.Register.Register)

	cached := api.Group("")
	cached.Use(middleware.NewRedisCache(config.LoadCacheConfig(), rdb))
	cached.GET("/calendar", h.Calendar.Month)
	cached.GET("/attendance/history", h.Attendance.History)

	api.GET("/calendar/today", h.Calendar.Today)
	api.GET("/attendance/today", h.Attendance.Today)
	api.GET("/attendance/export", h.Export.Export)
	api.GET("/qr/:session_code", h.QR.Image)
	api.GET("/qr/validate/:token", h.QR.Validate)

	admin := api.Group("")
	admin.Use(middleware.AdminAuth(cfg.AdminSecret, cfg.AdminSecretHash))
	admin.POST("/calendar/configure", h.Calendar.Configure)
	admin.POST("/attendance/override", h.Override.Add)
	admin.DELETE("/attendance/override/:id", h.Override.Remove)
	admin.GET("/attendance/override/search", h.Override.Search)
	admin.GET("/attendance/run/:id", h.Attendance.Roster)
}
