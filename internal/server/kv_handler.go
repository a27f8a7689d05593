package server

import (
	"context"
	"errors"
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/dirkv/internal/cache"
	"github.com/any-hub/dirkv/internal/logging"
)

type kvHandler struct {
	store   cache.Store
	logger  *logrus.Logger
	timeout time.Duration
}

func (h *kvHandler) get(c fiber.Ctx) error {
	key, err := keyParam(c)
	if err != nil {
		return renderError(c, fiber.StatusBadRequest, "invalid_key")
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	value, err := h.store.Get(ctx, key)
	if err != nil {
		h.logRequest(c, key, fiber.StatusNotFound, false)
		if errors.Is(err, cache.ErrNotFound) {
			return renderError(c, fiber.StatusNotFound, "not_found")
		}
		return renderError(c, fiber.StatusServiceUnavailable, "request_canceled")
	}

	h.logRequest(c, key, fiber.StatusOK, true)
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Status(fiber.StatusOK).SendString(value)
}

func (h *kvHandler) has(c fiber.Ctx) error {
	key, err := keyParam(c)
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	if h.store.Has(ctx, key) {
		h.logRequest(c, key, fiber.StatusOK, true)
		return c.SendStatus(fiber.StatusOK)
	}
	h.logRequest(c, key, fiber.StatusNotFound, false)
	return c.SendStatus(fiber.StatusNotFound)
}

func (h *kvHandler) set(c fiber.Ctx) error {
	key, err := keyParam(c)
	if err != nil {
		return renderError(c, fiber.StatusBadRequest, "invalid_key")
	}
	ttl, err := parseTTL(c.Query("ttl"))
	if err != nil {
		return renderError(c, fiber.StatusBadRequest, "invalid_ttl")
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	// c.Body() 指向 fasthttp 复用的缓冲区，需复制后再交给存储层
	value := string(c.Body())
	if err := h.store.Set(ctx, key, value, ttl); err != nil {
		fields := logging.StoreFields("cache_set", key, h.store.Path(key))
		fields["request_id"] = RequestID(c)
		h.logger.WithFields(fields).WithError(err).Error("cache write failed")
		return renderError(c, fiber.StatusInternalServerError, "write_failed")
	}
	h.logRequest(c, key, fiber.StatusNoContent, false)
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *kvHandler) delete(c fiber.Ctx) error {
	key, err := keyParam(c)
	if err != nil {
		return renderError(c, fiber.StatusBadRequest, "invalid_key")
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	_ = h.store.Delete(ctx, key)
	h.logRequest(c, key, fiber.StatusNoContent, false)
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *kvHandler) clear(c fiber.Ctx) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	_ = h.store.Clear(ctx)
	h.logger.WithFields(logrus.Fields{
		"action":     "cache_clear",
		"dir":        h.store.Stats().Dir,
		"request_id": RequestID(c),
	}).Info("cache cleared")
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *kvHandler) requestContext(c fiber.Ctx) (context.Context, context.CancelFunc) {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, h.timeout)
}

func (h *kvHandler) logRequest(c fiber.Ctx, key string, status int, hit bool) {
	h.logger.WithFields(logging.RequestFields(c.Method(), key, RequestID(c), status, hit)).Debug("kv request")
}

// keyParam 返回通配段解码后的 key，允许 key 中包含 "/"。
func keyParam(c fiber.Ctx) (string, error) {
	return url.PathUnescape(c.Params("*"))
}

// parseTTL 接受 Go duration（"30s"）或毫秒整数（"-86400000"），空值表示永不过期。
func parseTTL(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if ms > maxTTLMillis || ms < -maxTTLMillis {
			return 0, errTTLOutOfRange
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(raw)
}

// maxTTLMillis 是 time.Duration 能表示的最大毫秒数。
const maxTTLMillis = int64(math.MaxInt64 / int64(time.Millisecond))

var errTTLOutOfRange = errors.New("ttl out of range")

func renderError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}
