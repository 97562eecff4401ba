package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/settlement/internal/ledger"
)

const healthCheckTimeout = 2 * time.Second

type healthCheck struct {
	name  string
	check func(context.Context) error
}

// RegisterHealthRoutes adds /healthz, which fails when the ledger is
// unreachable or unmigrated or when Redis does not answer.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	var checks []healthCheck
	if c, ok := d.Store.(ledger.Checker); ok {
		checks = append(checks, healthCheck{name: "ledger", check: c.Ready})
	}
	if d.Cache != nil {
		checks = append(checks, healthCheck{name: "redis", check: func(ctx context.Context) error {
			return d.Cache.Ping(ctx).Err()
		}})
	}
	logger := d.Logger.With("component", "health")

	app.Get("/healthz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), healthCheckTimeout)
		defer cancel()

		status := http.StatusOK
		results := make(fiber.Map, len(checks))
		for _, hc := range checks {
			if err := hc.check(ctx); err != nil {
				logger.Warn("health check failed", "check", hc.name, "error", err)
				results[hc.name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[hc.name] = "ok"
		}
		return c.Status(status).JSON(fiber.Map{
			"service":   d.Cfg.AppName,
			"checks":    results,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
