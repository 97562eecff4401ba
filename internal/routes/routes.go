package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/settlement/internal/callbacks"
	"github.com/congo-pay/settlement/internal/config"
	"github.com/congo-pay/settlement/internal/gateway"
	"github.com/congo-pay/settlement/internal/ledger"
	"github.com/congo-pay/settlement/internal/middleware"
	"github.com/congo-pay/settlement/internal/monitor"
	"github.com/congo-pay/settlement/internal/notification"
	"github.com/congo-pay/settlement/internal/participant"
	"github.com/congo-pay/settlement/internal/payin"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	Cache    *redis.Client
	Logger   *slog.Logger
	Store    ledger.Store
	Charger  gateway.Charger
	Fetcher  gateway.ResourceFetcher
	Notifier notification.Notifier
	NewRelic *newrelic.Application
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Store == nil || d.Charger == nil || d.Fetcher == nil {
		return fmt.Errorf("store, charger and fetcher are required")
	}
	if d.Notifier == nil {
		d.Notifier = notification.NewLoggerNotifier(d.Logger)
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.NewRelic(d.NewRelic))
	app.Use(middleware.Metrics())
	app.Use(middleware.Audit(d.Logger.With("component", "http")))

	// Health and metrics
	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Services and handlers
	mon := monitor.NewNewRelic(d.NewRelic, monitor.NewLoggerMonitor(d.Logger.With("component", "monitor")))
	payinSvc, err := payin.NewService(d.Store, d.Charger, mon, d.Cfg.StripePlatformAccount, d.Logger)
	if err != nil {
		return err
	}
	participantSvc := participant.NewService(d.Store)
	reconciler := callbacks.NewReconciler(d.Store, d.Fetcher, notification.NewSender(d.Notifier), d.Logger)

	payinHandler := payin.NewHandler(payinSvc, d.Cfg.StatementDescriptor)
	participantHandler := participant.NewHandler(participantSvc)
	callbackHandler := callbacks.NewHandler(reconciler, d.Logger.With("component", "callbacks"))

	// Gateway notifications carry no Idempotency-Key; they are made
	// idempotent by the exchange status guard instead.
	RegisterCallbackRoutes(app, callbackHandler)

	// API routes
	api := app.Group("/api/v1")
	if d.Cache != nil {
		api.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterParticipantRoutes(api, participantHandler)
	RegisterPayinRoutes(api, payinHandler)

	return nil
}
