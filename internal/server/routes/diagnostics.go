package routes

import (
	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/dirkv/internal/cache"
	"github.com/any-hub/dirkv/internal/version"
)

// RegisterDiagnosticRoutes 暴露 /-/healthz 与 /-/stats 诊断接口，供运维查询目录与内存层状态。
func RegisterDiagnosticRoutes(app *fiber.App, store cache.Store) {
	if app == nil || store == nil {
		return
	}

	app.Get("/-/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/-/stats", func(c fiber.Ctx) error {
		return c.JSON(statsPayload{
			Version: version.Full(),
			Store:   store.Stats(),
		})
	})
}

type statsPayload struct {
	Version string      `json:"version"`
	Store   cache.Stats `json:"store"`
}
