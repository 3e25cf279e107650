package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
)

func TestRegisterPhoto(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	createdAt := time.Now()
	mock.ExpectQuery(`INSERT INTO photo_objects`).
		WithArgs(pgxmock.AnyArg(), "device-1", pgxmock.AnyArg(), "image/png").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(createdAt))

	svc := NewService(mock, "https://storage.example/")
	photo, err := svc.RegisterPhoto(context.Background(), "device-1", "summit.png", "image/png")
	if err != nil {
		t.Fatalf("register photo: %v", err)
	}
	if photo.ID == "" {
		t.Fatalf("expected id")
	}
	want := "https://storage.example/photos/device-1/" + photo.ID + ".png"
	if photo.URL != want {
		t.Fatalf("expected url %q, got %q", want, photo.URL)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRegisterPhotoWithoutExtension(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO photo_objects`).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	photo, err := NewService(mock, "https://storage.example").RegisterPhoto(context.Background(), "device-1", "", "image/jpeg")
	if err != nil {
		t.Fatalf("register photo: %v", err)
	}
	if !strings.HasSuffix(photo.URL, "/"+photo.ID) {
		t.Fatalf("unexpected url %q", photo.URL)
	}
}

func TestRegisterPhotoError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO photo_objects`).
		WithArgs(pgxmock.AnyArg(), "device-1", pgxmock.AnyArg(), "image/jpeg").
		WillReturnError(errSave)

	svc := NewService(mock, "https://storage.example")
	if _, err := svc.RegisterPhoto(context.Background(), "device-1", "a.jpg", "image/jpeg"); !errors.Is(err, errSave) {
		t.Fatalf("expected save error, got %v", err)
	}
}

func TestPhotoLookup(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT id, device_id, url, content_type, created_at`).
		WithArgs("photo-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "device_id", "url", "content_type", "created_at"}).
			AddRow("photo-1", "device-1", "https://storage.example/photos/device-1/photo-1.jpg", "image/jpeg", time.Now()))

	photo, err := NewService(mock, "https://storage.example").Photo(context.Background(), "photo-1")
	if err != nil {
		t.Fatalf("photo: %v", err)
	}
	if photo.DeviceID != "device-1" {
		t.Fatalf("unexpected photo %+v", photo)
	}
}

var errSave = errors.New("save error")
