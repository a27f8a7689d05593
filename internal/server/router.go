package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/dirkv/internal/cache"
)

// AppOptions controls how the Fiber application serves a store.
type AppOptions struct {
	Logger         *logrus.Logger
	Store          cache.Store
	ListenPort     int
	RequestTimeout time.Duration
}

const (
	contextKeyRequestID = "_dirkv_request_id"

	kvRoutePrefix = "/kv"
)

// NewApp builds a Fiber application with request-id middleware and the /kv
// routes bound to opts.Store.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Store == nil {
		return nil, errors.New("cache store is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	// StrictRouting 区分 "/kv"（清空）与 "/kv/"（空 key）
	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		StrictRouting: true,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())

	h := &kvHandler{
		store:   opts.Store,
		logger:  opts.Logger,
		timeout: opts.RequestTimeout,
	}
	app.Delete(kvRoutePrefix, h.clear)
	app.Get(kvRoutePrefix+"/*", h.get)
	app.Head(kvRoutePrefix+"/*", h.has)
	app.Put(kvRoutePrefix+"/*", h.set)
	app.Delete(kvRoutePrefix+"/*", h.delete)

	return app, nil
}

// requestIDMiddleware 复用调用方传入的 X-Request-ID，缺失时生成新的 UUID。
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := strings.TrimSpace(c.Get("X-Request-ID"))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
