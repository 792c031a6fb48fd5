package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// breakerState is implemented by notifiers guarded by a circuit breaker.
type breakerState interface {
	State() string
}

// RegisterHealthRoutes adds liveness/readiness style endpoints. The service
// is unavailable when Postgres, Redis or the lock quorum is unreachable; an
// open notification breaker is reported but does not fail the check.
func RegisterHealthRoutes(app *fiber.App, d Deps, breaker breakerState) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		dbStatus := "ok"
		redisStatus := "ok"

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if d.DB != nil {
			if err := d.DB.Ping(ctx); err != nil {
				dbStatus = err.Error()
			}
		}
		if d.Cache != nil {
			if err := d.Cache.Ping(ctx).Err(); err != nil {
				redisStatus = err.Error()
			}
		}

		nodes := make([]string, len(d.LockNodes))
		var g errgroup.Group
		for i, node := range d.LockNodes {
			g.Go(func() error {
				nodes[i] = "ok"
				if err := node.Ping(ctx).Err(); err != nil {
					nodes[i] = err.Error()
				}
				return nil
			})
		}
		_ = g.Wait()
		reachable := 0
		for _, s := range nodes {
			if s == "ok" {
				reachable++
			}
		}
		quorum := d.Locker.Quorum()

		status := http.StatusOK
		if dbStatus != "ok" || redisStatus != "ok" || (len(nodes) > 0 && reachable < quorum) {
			status = http.StatusServiceUnavailable
		}
		body := fiber.Map{
			"status": fiber.Map{"postgres": dbStatus, "redis": redisStatus},
			"lock": fiber.Map{
				"nodes":     nodes,
				"reachable": reachable,
				"quorum":    quorum,
				"held":      d.Locker.Held(),
			},
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		}
		if breaker != nil {
			body["notifications"] = breaker.State()
		}
		return c.Status(status).JSON(body)
	})
}

// RegisterMetricsRoute exposes the registry in the Prometheus text format.
func RegisterMetricsRoute(app *fiber.App, reg *prometheus.Registry) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
}
