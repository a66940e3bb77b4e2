// Package server assembles the fiber application: middleware, error
// mapping, health check and the account and job routes.
package server

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	auth "github.com/hirelane/jobboard-auth"
	"github.com/hirelane/jobboard-auth/config"
	"go.uber.org/zap"
)

// Pinger is satisfied by *bun.DB and *sql.DB
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Options struct {
	AppName      string
	BodyLimit    int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  string
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		AppName:      "jobboard",
		BodyLimit:    cfg.HTTP.BodyLimit,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		CORSOrigins:  cfg.HTTP.CORSOrigins,
	}
}

// New returns the app with middleware and /healthz installed. Routes are
// added with Mount.
func New(opts Options, logger *zap.Logger, db Pinger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               opts.AppName,
		BodyLimit:             opts.BodyLimit,
		ReadTimeout:           opts.ReadTimeout,
		WriteTimeout:          opts.WriteTimeout,
		ErrorHandler:          ErrorHandler(logger),
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(corsMiddleware(opts.CORSOrigins))
	app.Use(RequestLogger(logger))

	app.Get("/healthz", Health(db))

	return app
}

func corsMiddleware(origins string) fiber.Handler {
	origins = strings.TrimSpace(origins)
	if origins == "" {
		origins = "*"
	}
	return cors.New(cors.Config{
		AllowOrigins: origins,
		// browsers refuse credentialed requests against a wildcard origin
		AllowCredentials: origins != "*",
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	})
}

// ErrorHandler maps rich errors to their status and JSON body. Internal
// errors are logged with their cause and reported without it.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := auth.HTTPStatus(err)
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}

		if status >= fiber.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
		} else {
			logger.Debug("request rejected",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("status", status),
				zap.Error(err),
			)
		}

		return auth.SendError(c, err)
	}
}

// RequestLogger logs one line per request once the response status is known
func RequestLogger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		if err := c.Next(); err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		logger.Info("http request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.IP()),
		)
		return nil
	}
}

// Health reports 503 when the database does not answer a ping
func Health(db Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		if db == nil || db.PingContext(ctx) != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"success": false,
				"status":  "unavailable",
			})
		}

		return c.JSON(fiber.Map{
			"success": true,
			"status":  "ok",
		})
	}
}
