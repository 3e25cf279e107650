package tracking

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, m *Machine, authMiddleware fiber.Handler) {
	r.Use(authMiddleware, deviceGuard(m.DeviceID()))

	r.Post("/session/start", func(c *fiber.Ctx) error {
		session, err := m.Start()
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(session)
	})

	r.Post("/session/toggle", func(c *fiber.Ctx) error {
		state, err := m.Toggle()
		if err != nil {
			return httpError(err)
		}
		return c.JSON(fiber.Map{"state": state})
	})

	r.Post("/session/stop", func(c *fiber.Ctx) error {
		route, err := m.Stop(c.Context())
		if err != nil {
			return httpError(err)
		}
		return c.JSON(route)
	})

	r.Post("/session/points", func(c *fiber.Ctx) error {
		var req RoutePoint
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		res, err := m.AppendPoint(req)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	})

	// On a wall-clock machine a tick only brings elapsed time up to date;
	// delta_ms is ignored so the server timer stays the single source.
	r.Post("/session/tick", func(c *fiber.Ctx) error {
		if m.WallClock() {
			elapsed, err := m.Sync()
			if err != nil {
				return httpError(err)
			}
			return c.JSON(fiber.Map{"elapsed_time": elapsed})
		}

		var req struct {
			DeltaMs int64 `json:"delta_ms"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := m.Tick(req.DeltaMs); err != nil {
			return httpError(err)
		}
		return c.JSON(fiber.Map{"elapsed_time": m.ElapsedTime()})
	})

	r.Get("/session", func(c *fiber.Ctx) error {
		return c.JSON(m.Status())
	})

	r.Get("/session/route", func(c *fiber.Ctx) error {
		return c.JSON(m.RouteData())
	})

	r.Get("/backup", func(c *fiber.Ctx) error {
		snap, err := m.CheckForBackup(c.Context())
		if err != nil {
			return httpError(err)
		}
		if snap == nil {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.JSON(snap)
	})

	r.Post("/backup/restore", func(c *fiber.Ctx) error {
		var err error
		if len(c.Body()) == 0 {
			err = m.RestorePending(c.Context())
		} else {
			var snap *Snapshot
			snap, err = DecodeSnapshot(c.Body())
			if err == nil {
				err = m.RestoreFromBackup(snap)
			}
		}
		if err != nil {
			return httpError(err)
		}
		return c.JSON(m.Status())
	})

	r.Delete("/backup", func(c *fiber.Ctx) error {
		if err := m.ClearBackup(c.Context()); err != nil {
			return httpError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

// deviceGuard rejects tokens issued to another device.
func deviceGuard(deviceID string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if id, ok := c.Locals("device_id").(string); ok && id != deviceID {
			return fiber.NewError(fiber.StatusForbidden, "token issued for another device")
		}
		return c.Next()
	}
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrAlreadyActive),
		errors.Is(err, ErrNothingToStop),
		errors.Is(err, ErrNotTracking),
		errors.Is(err, ErrIllegalTransition):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidPoint), errors.Is(err, ErrInvalidTick):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrRestoreFailed):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrPersistenceUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
