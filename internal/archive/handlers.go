package archive

import (
	"errors"
	"strconv"

	"backend-traillog/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Use(authMiddleware)

	r.Get("/", func(c *fiber.Ctx) error {
		deviceID, err := requestDevice(c)
		if err != nil {
			return err
		}
		routes, err := svc.Routes(c.Context(), deviceID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(routes)
	})

	r.Get("/nearby", func(c *fiber.Ctx) error {
		deviceID, err := requestDevice(c)
		if err != nil {
			return err
		}
		lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
		lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
		if errLat != nil || errLng != nil || !geo.ValidCoordinate(lat, lng) {
			return fiber.NewError(fiber.StatusBadRequest, "valid lat and lng required")
		}
		radius, _ := strconv.ParseFloat(c.Query("radius_km"), 64)
		if radius <= 0 {
			radius = 5
		}
		routes, err := svc.Nearby(c.Context(), deviceID, lat, lng, radius)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(routes)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		route, err := loadOwned(c, svc)
		if err != nil {
			return err
		}
		return c.JSON(route)
	})

	r.Get("/:id/geojson", func(c *fiber.Ctx) error {
		route, err := loadOwned(c, svc)
		if err != nil {
			return err
		}
		body, err := FeatureCollection(route).MarshalJSON()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		c.Set(fiber.HeaderContentType, "application/geo+json")
		return c.Send(body)
	})
}

func requestDevice(c *fiber.Ctx) (string, error) {
	deviceID, _ := c.Locals("device_id").(string)
	if deviceID == "" {
		deviceID = c.Query("device_id")
	}
	if deviceID == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "device_id required")
	}
	return deviceID, nil
}

func loadOwned(c *fiber.Ctx, svc *Service) (Route, error) {
	route, err := svc.Route(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Route{}, fiber.NewError(fiber.StatusNotFound, "route not found")
		}
		return Route{}, fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	if deviceID, ok := c.Locals("device_id").(string); ok && deviceID != "" && deviceID != route.DeviceID {
		return Route{}, fiber.NewError(fiber.StatusNotFound, "route not found")
	}
	return route, nil
}
