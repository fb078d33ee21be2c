// Package http exposes the questlog API over fiber.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"questlog/internal/server/core"
	"questlog/internal/server/metrics"
	"questlog/internal/server/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
)

// Service is the business layer the handlers call into.
type Service interface {
	Register(ctx context.Context, username, email, password string) (int64, error)
	Authenticate(ctx context.Context, email, password string) (*storage.User, error)
	RecordProgress(ctx context.Context, email, questID string, progress float64, data json.RawMessage) (int64, error)
}

// Pinger reports storage reachability for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tunes the fiber app.
type Options struct {
	Dev bool
	// Requests per minute per client IP; 0 disables the limiter.
	RegisterRateLimit int
	LoginRateLimit    int
	// Bound on the storage ping behind /health.
	PingTimeout time.Duration
	// Access log destination, os.Stdout when nil.
	AccessLog io.Writer
	// Parent of every request context; nil means context.Background.
	BaseContext context.Context
}

// HTTPHandler handles HTTP requests and routes them to the service
type HTTPHandler struct {
	svc         Service
	store       Pinger
	metrics     *metrics.Metrics
	logger      *slog.Logger
	pingTimeout time.Duration
}

func NewHTTPHandler(svc Service, store Pinger, m *metrics.Metrics, logger *slog.Logger, pingTimeout time.Duration) *HTTPHandler {
	if pingTimeout <= 0 {
		pingTimeout = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{svc: svc, store: store, metrics: m, logger: logger, pingTimeout: pingTimeout}
}

const (
	corsAllowOrigin  = "*"
	corsAllowMethods = "GET,POST,PUT,DELETE,OPTIONS"
	corsAllowHeaders = "Content-Type,Authorization"
)

// corsHeaders stamps the CORS headers on every response, including those
// to requests without an Origin and error responses. The cors middleware
// still answers preflights.
func corsHeaders(c *fiber.Ctx) error {
	c.Set(fiber.HeaderAccessControlAllowOrigin, corsAllowOrigin)
	c.Set(fiber.HeaderAccessControlAllowMethods, corsAllowMethods)
	c.Set(fiber.HeaderAccessControlAllowHeaders, corsAllowHeaders)
	return c.Next()
}

func NewFiberApp(svc Service, store Pinger, m *metrics.Metrics, log *slog.Logger, opts Options) *fiber.App {
	h := NewHTTPHandler(svc, store, m, log, opts.PingTimeout)

	app := fiber.New(fiber.Config{
		ErrorHandler:          h.errorHandler,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
		IdleTimeout:           60 * time.Second,
		DisableStartupMessage: true,
	})

	accessLog := opts.AccessLog
	if accessLog == nil {
		accessLog = os.Stdout
	}

	// Global middleware (order matters)
	if opts.BaseContext != nil {
		app.Use(func(c *fiber.Ctx) error {
			c.SetUserContext(opts.BaseContext)
			return c.Next()
		})
	}
	app.Use(corsHeaders)
	app.Use(requestid.New(requestid.Config{
		Generator: uuid.NewString,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
		Output: accessLog,
	}))
	app.Use(h.observe)
	app.Use(recover.New(recover.Config{
		EnableStackTrace:  true,
		StackTraceHandler: h.logPanic,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: corsAllowOrigin,
		AllowMethods: corsAllowMethods,
		AllowHeaders: corsAllowHeaders,
	}))

	// Bare OPTIONS requests that are not CORS preflights
	app.Options("/*", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	app.Get("/health", h.Health)
	app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))

	api := app.Group("/api")
	api.Use(contentTypeValidator)
	api.Use(validationMiddleware)

	registerMax, loginMax := opts.RegisterRateLimit, opts.LoginRateLimit
	if opts.Dev {
		registerMax, loginMax = registerMax*2, loginMax*2
	}

	api.Post("/register", rateLimit(registerMax, "registrations"), h.RegisterHandler)
	api.Post("/login", rateLimit(loginMax, "login attempts"), h.LoginHandler)
	api.Post("/progress", h.ProgressHandler)

	return app
}

// rateLimit allows limit requests per minute per client IP. limit <= 0 disables it.
func rateLimit(limit int, what string) fiber.Handler {
	if limit <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return limiter.New(limiter.Config{
		Max:        limit,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(core.ErrorResponse{
				Error:   "rate limit exceeded",
				Code:    core.ErrRateLimitExceeded,
				Details: fmt.Sprintf("%d %s per minute allowed", limit, what),
			})
		},
	})
}

// contentTypeValidator ensures POST and PUT requests carry JSON. A missing
// Content-Type is tolerated.
func contentTypeValidator(c *fiber.Ctx) error {
	method := c.Method()
	if method == fiber.MethodPost || method == fiber.MethodPut {
		if c.Get(fiber.HeaderContentType) != "" && !c.Is("json") {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(core.ErrorResponse{
				Error:   "unsupported media type",
				Code:    core.ErrInvalidContent,
				Details: "Content-Type must be application/json",
			})
		}
	}
	return c.Next()
}

// observe records request metrics. Errors from the chain are rendered
// here so the recorded status matches what the client receives.
func (h *HTTPHandler) observe(c *fiber.Ctx) error {
	start := time.Now()

	if err := c.Next(); err != nil {
		if herr := h.errorHandler(c, err); herr != nil {
			_ = c.SendStatus(fiber.StatusInternalServerError)
		}
	}

	h.metrics.ObserveRequest(c.Method(), c.Route().Path, c.Response().StatusCode(), time.Since(start))
	return nil
}

func (h *HTTPHandler) logPanic(c *fiber.Ctx, e any) {
	h.logger.Error("panic recovered",
		"panic", e,
		"method", c.Method(),
		"path", c.Path(),
		"request_id", requestID(c))
}

// errorHandler provides consistent error responses. Internal details are
// logged and never returned to the client.
func (h *HTTPHandler) errorHandler(c *fiber.Ctx, err error) error {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return c.Status(reqErr.status).JSON(reqErr.body)
	}

	code := fiber.StatusInternalServerError
	response := core.ErrorResponse{
		Error: "internal error",
		Code:  core.ErrInternalError,
	}

	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code < fiber.StatusInternalServerError {
		code = fe.Code
		response.Error = fe.Message

		switch code {
		case fiber.StatusNotFound, fiber.StatusMethodNotAllowed:
			response.Code = core.ErrNotFound
		case fiber.StatusTooManyRequests:
			response.Code = core.ErrRateLimitExceeded
		default:
			response.Code = core.ErrInvalidRequest
		}
	} else {
		h.logger.Error("request failed",
			"error", err,
			"method", c.Method(),
			"path", c.Path(),
			"request_id", requestID(c))
	}

	return c.Status(code).JSON(response)
}

// requestError is a client error with a ready response body.
type requestError struct {
	status int
	body   core.ErrorResponse
}

func (e *requestError) Error() string {
	return e.body.Error
}

func badRequest(message, code, details string) error {
	return &requestError{
		status: fiber.StatusBadRequest,
		body:   core.ErrorResponse{Error: message, Code: code, Details: details},
	}
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals(requestid.ConfigDefault.ContextKey).(string)
	return id
}

// Health check endpoint with storage status
func (h *HTTPHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.pingTimeout)
	defer cancel()

	status := "ok"
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("storage ping failed", "error", err)
		status = "degraded"
	}

	return c.JSON(core.HealthResponse{
		Status:  "healthy",
		Time:    time.Now().Unix(),
		Storage: status,
	})
}
