// Package server assembles the Fiber application.
package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"imgpack/internal/auth"
	"imgpack/internal/config"
	"imgpack/internal/http/handlers"
	"imgpack/internal/http/middleware"
	"imgpack/internal/infra/logging"
	"imgpack/internal/metrics"
	"imgpack/internal/pipeline"
)

// Deps bundles what the HTTP layer needs. Redis, Keys, Storage and Gatherer
// may be nil.
type Deps struct {
	Config   config.Config
	Pipeline *pipeline.Pipeline
	Redis    *redis.Client
	Keys     *auth.Store
	Storage  fiber.Storage
	Gatherer prometheus.Gatherer
}

// New creates and configures a new Fiber app instance.
func New(deps Deps) (*fiber.App, error) {
	cfg := deps.Config
	app := fiber.New(fiber.Config{
		Prefork:               cfg.Server.Prefork,
		DisableStartupMessage: true,
		BodyLimit:             cfg.Server.BodyLimitMB * 1024 * 1024,
		ErrorHandler:          errorHandler,
	})

	middleware.Register(app, cfg, middleware.Deps{
		Keys:    deps.Keys,
		Storage: deps.Storage,
		Ready:   handlers.ReadinessProbe(deps.Redis),
	})

	svc, err := handlers.NewResizeService(cfg, deps.Pipeline, deps.Redis)
	if err != nil {
		return nil, err
	}
	app.Get("/", svc.HandleForm)
	app.Post("/", svc.HandleResize)

	if cfg.Metrics.Enabled && deps.Gatherer != nil {
		app.Get(cfg.Metrics.Path, metrics.Handler(deps.Gatherer))
	}

	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app, nil
}

// errorHandler renders every error as plain text.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal Error: " + err.Error()

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	}

	if code >= fiber.StatusInternalServerError {
		logging.Error("Request failed", "path", c.Path(), "status", code, "message", msg)
	} else {
		logging.Warn("Request failed", "path", c.Path(), "status", code, "message", msg)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Status(code).SendString(msg)
}
