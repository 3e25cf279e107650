package archive

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"backend-traillog/internal/tracking"

	"github.com/pashagolub/pgxmock/v3"
)

var routeColumns = []string{"id", "device_id", "session_id", "started_at", "ended_at", "total_distance_km", "elapsed_ms", "point_count", "path", "created_at"}

func TestArchiveInsertsRoute(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	createdAt := time.Now()
	mock.ExpectQuery(`INSERT INTO routes`).
		WithArgs(pgxmock.AnyArg(), "device-1", "session-1", t0, t0.Add(time.Hour), 2.5, int64(3600000), 5, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(createdAt))

	svc := NewService(mock)
	route, err := svc.Save(context.Background(), tracking.FinishedRoute{
		SessionID:     "session-1",
		DeviceID:      "device-1",
		StartedAt:     t0,
		EndedAt:       t0.Add(time.Hour),
		Points:        samplePoints(),
		TotalDistance: 2.5,
		ElapsedTime:   3600000,
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if route.ID == "" || route.PointCount != 5 || !route.CreatedAt.Equal(createdAt) {
		t.Fatalf("unexpected route %+v", route)
	}
	if route.PathWKT == "" {
		t.Fatalf("expected path wkt")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestArchiveWithoutPath(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO routes`).
		WithArgs(pgxmock.AnyArg(), "device-1", "session-1", pgxmock.AnyArg(), pgxmock.AnyArg(), 0.0, int64(0), 0, pgxmock.AnyArg(), "[]").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	err = NewService(mock).Archive(context.Background(), tracking.FinishedRoute{
		SessionID: "session-1",
		DeviceID:  "device-1",
		Points:    []tracking.RoutePoint{},
	})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestArchiveFailure(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	boom := errors.New("db down")
	mock.ExpectQuery(`INSERT INTO routes`).WillReturnError(boom)

	if err := NewService(mock).Archive(context.Background(), tracking.FinishedRoute{DeviceID: "device-1"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestRoutesAndRoute(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	svc := NewService(mock)
	createdAt := time.Now()

	mock.ExpectQuery(`SELECT id, device_id, session_id, started_at, ended_at, total_distance_km, elapsed_ms, point_count`).
		WithArgs("device-1").
		WillReturnRows(pgxmock.NewRows(routeColumns).
			AddRow("route-2", "device-1", "s-2", t0, t0.Add(time.Hour), 1.2, int64(60000), 3, "", createdAt).
			AddRow("route-1", "device-1", "s-1", t0, t0.Add(time.Hour), 2.5, int64(90000), 5, "LINESTRING(7.9 46.5,8 46.7)", createdAt))

	routes, err := svc.Routes(context.Background(), "device-1")
	if err != nil {
		t.Fatalf("routes: %v", err)
	}
	if len(routes) != 2 || routes[1].PathWKT == "" {
		t.Fatalf("unexpected routes %+v", routes)
	}

	points, _ := json.Marshal(samplePoints())
	mock.ExpectQuery(`SELECT id, device_id, session_id, started_at, ended_at, total_distance_km, elapsed_ms, point_count`).
		WithArgs("route-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "device_id", "session_id", "started_at", "ended_at", "total_distance_km", "elapsed_ms", "point_count", "path", "points", "created_at"}).
			AddRow("route-1", "device-1", "s-1", t0, t0.Add(time.Hour), 2.5, int64(90000), 5, "LINESTRING(7.9 46.5,8 46.7)", points, createdAt))

	route, err := svc.Route(context.Background(), "route-1")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if len(route.Points) != 5 || route.Points[1].PhotoRef != "photos/a.jpg" {
		t.Fatalf("unexpected points %+v", route.Points)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
