package http

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler returns a basic liveness check.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()

	return func(c *fiber.Ctx) error {
		body := fiber.Map{
			"status":  "healthy",
			"uptime":  time.Since(startedAt).String(),
			"version": "dev",
		}
		if deps.Clusters != nil {
			body["collection"] = deps.Clusters.Collection()
		}
		return c.JSON(body)
	}
}

var errDisconnected = errors.New("disconnected")

// readinessCheck probes one backing service. A failing required check makes
// the instance not ready; optional ones only report.
type readinessCheck struct {
	name     string
	required bool
	probe    func(ctx context.Context) (configured bool, err error)
}

func readinessChecks(deps *Dependencies) []readinessCheck {
	return []readinessCheck{
		{name: "database", required: true, probe: func(ctx context.Context) (bool, error) {
			if deps.DB == nil {
				return false, nil
			}
			return true, deps.DB.Ping(ctx)
		}},
		{name: "nats", probe: func(ctx context.Context) (bool, error) {
			if deps.NATS == nil {
				return false, nil
			}
			if !deps.NATS.Connected() {
				return true, errDisconnected
			}
			return true, nil
		}},
		{name: "cache", probe: func(ctx context.Context) (bool, error) {
			if deps.Cache == nil {
				return false, nil
			}
			return true, deps.Cache.Ping(ctx)
		}},
	}
}

// ReadyHandler checks DB, NATS, and cache connectivity and reports how many
// clusters the served collection holds. A configured service that fails its
// probe makes the instance not ready; an unconfigured database does too.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()

		checks := make(map[string]string)
		ready := true
		for _, chk := range readinessChecks(deps) {
			configured, err := chk.probe(ctx)
			switch {
			case !configured:
				checks[chk.name] = "not configured"
				if chk.required {
					ready = false
				}
			case err != nil:
				checks[chk.name] = "error: " + err.Error()
				ready = false
			default:
				checks[chk.name] = "ok"
			}
		}

		body := fiber.Map{"checks": checks}
		if deps.Clusters != nil && checks["database"] == "ok" {
			if n, err := deps.Clusters.Count(ctx); err == nil {
				body["clusters"] = n
			}
		}

		body["status"] = "ready"
		code := fiber.StatusOK
		if !ready {
			body["status"] = "not ready"
			code = fiber.StatusServiceUnavailable
		}
		return c.Status(code).JSON(body)
	}
}
