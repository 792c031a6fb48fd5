package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/PuraVida-Technologies/galoy/internal/config"
	"github.com/PuraVida-Technologies/galoy/internal/lock"
	"github.com/PuraVida-Technologies/galoy/internal/routes"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app    *fiber.App
	cfg    config.Config
	locker *lock.Manager
	logger *slog.Logger
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(deps routes.Deps) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:               deps.Cfg.AppName,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	if err := routes.Setup(app, deps); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{app: app, cfg: deps.Cfg, locker: deps.Locker, logger: logger}, nil
}

// App exposes the Fiber application, mostly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	s.logger.Info("http server listening", "addr", s.cfg.Address())
	return s.app.Listen(s.cfg.Address())
}

// Shutdown stops accepting requests, waits for in-flight ones and releases
// every wallet lock still held by this process.
func (s *Server) Shutdown(ctx context.Context) error {
	httpErr := s.app.ShutdownWithContext(ctx)
	var lockErr error
	if s.locker != nil {
		lockErr = s.locker.Close(ctx)
	}
	return errors.Join(httpErr, lockErr)
}

// errorHandler renders fiber errors as the JSON error envelope used by the
// handlers.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "internal error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}
	return c.Status(code).JSON(fiber.Map{"error": fiber.Map{"code": httpCode(code), "message": message}})
}

func httpCode(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusConflict:
		return "CONFLICT"
	case fiber.StatusTooManyRequests:
		return "RATE_LIMITED"
	default:
		if status >= fiber.StatusInternalServerError {
			return "INTERNAL"
		}
		return "REQUEST_FAILED"
	}
}
