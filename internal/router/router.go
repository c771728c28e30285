// Package router registers the HTTP routes of the booking service.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/config"
	"github.com/iliyamo/cinema-booking/internal/handler"
	"github.com/iliyamo/cinema-booking/internal/metrics"
	"github.com/iliyamo/cinema-booking/internal/middleware"
)

// Options carries what the routes need.  Redis, Metrics, Gatherer and DB
// may be nil; the matching features are then left out.
type Options struct {
	JWTSecret string
	RateLimit config.RateLimitConfig
	Redis     *redis.Client
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	DB        handler.Pinger
	Logger    *zap.Logger
}

// RegisterRoutes installs the middleware chain and every endpoint on e.
func RegisterRoutes(e *echo.Echo, h *handler.BookingHandler, opts Options) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	e.Validator = handler.NewValidator()

	// probes and scraping stay outside the identity and rate limit chain
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(opts.DB))
	if opts.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := e.Group("/v1")
	v1.Use(middleware.RequestLogger(log))
	if opts.Metrics != nil {
		v1.Use(middleware.Prometheus(opts.Metrics))
	}
	v1.Use(middleware.Identity(opts.JWTSecret, log))

	// public seat-map queries
	v1.GET("/showtimes/:id/occupied-seats", h.OccupiedSeats)
	v1.GET("/showtimes/:id/availability", h.Availability)

	// booking operations: the service rejects guests, the limiter keys on user and route
	limited := middleware.RateLimit(opts.RateLimit, opts.Redis, log)
	v1.POST("/bookings", h.BookSeats, limited)
	v1.POST("/events/bookings", h.BookEventTickets, limited)

	me := v1.Group("/users/me", middleware.RequireUser())
	me.GET("/bookings", h.MyBookings)
}
