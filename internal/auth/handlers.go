package auth

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
)

func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Post("/devices", func(c *fiber.Ctx) error {
		var req PairRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		device, tokens, err := svc.PairDevice(c.Context(), req)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"device": device, "tokens": tokens})
	})

	r.Post("/token", func(c *fiber.Ctx) error {
		var req TokenRequest
		if err := c.BodyParser(&req); err != nil || req.DeviceID == "" || req.Secret == "" {
			return fiber.NewError(fiber.StatusBadRequest, "device_id and secret required")
		}
		resp, err := svc.IssueToken(c.Context(), req)
		if err != nil {
			if errors.Is(err, ErrInvalidCredentials) || errors.Is(err, pgx.ErrNoRows) {
				return fiber.NewError(fiber.StatusUnauthorized, ErrInvalidCredentials.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(resp)
	})

	r.Get("/jwt/verify", func(c *fiber.Ctx) error {
		token := bearerFromHeader(c.Get("Authorization"))
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		deviceID, err := svc.ValidateAccessToken(token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}
		return c.JSON(fiber.Map{"device_id": deviceID})
	})
}
