package storage

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"backend-traillog/internal/db"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Photo is a registered capture. Its URL is the reference carried by photo
// route points.
type Photo struct {
	ID          string    `json:"id"`
	DeviceID    string    `json:"device_id"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}

type Service struct {
	db      db.Querier
	baseURL string
}

func NewService(db db.Querier, baseURL string) *Service {
	return &Service{db: db, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *Service) RegisterPhoto(ctx context.Context, deviceID, fileName, contentType string) (Photo, error) {
	id := uuid.NewString()
	photo := Photo{
		ID:          id,
		DeviceID:    deviceID,
		URL:         s.baseURL + "/photos/" + deviceID + "/" + id + path.Ext(fileName),
		ContentType: contentType,
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO photo_objects (id, device_id, url, content_type)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at
	`, photo.ID, photo.DeviceID, photo.URL, photo.ContentType)
	if err := row.Scan(&photo.CreatedAt); err != nil {
		return Photo{}, err
	}
	return photo, nil
}

func (s *Service) Photo(ctx context.Context, id string) (Photo, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, device_id, url, content_type, created_at
		FROM photo_objects WHERE id=$1
	`, id)
	var p Photo
	if err := row.Scan(&p.ID, &p.DeviceID, &p.URL, &p.ContentType, &p.CreatedAt); err != nil {
		return Photo{}, err
	}
	return p, nil
}

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/photos", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			DeviceID    string `json:"device_id"`
			FileName    string `json:"file_name"`
			ContentType string `json:"content_type"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if id, ok := c.Locals("device_id").(string); ok && id != "" {
			body.DeviceID = id
		}
		if body.DeviceID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "device_id required")
		}
		if body.ContentType == "" {
			body.ContentType = "image/jpeg"
		}
		if !strings.HasPrefix(body.ContentType, "image/") {
			return fiber.NewError(fiber.StatusUnsupportedMediaType, "photos must be images")
		}
		photo, err := svc.RegisterPhoto(c.Context(), body.DeviceID, body.FileName, body.ContentType)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(photo)
	})

	r.Get("/photos/:id", authMiddleware, func(c *fiber.Ctx) error {
		photo, err := svc.Photo(c.Context(), c.Params("id"))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fiber.NewError(fiber.StatusNotFound, "photo not found")
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(photo)
	})
}
