package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"backend-traillog/internal/archive"
	"backend-traillog/internal/auth"
	"backend-traillog/internal/backup"
	"backend-traillog/internal/config"
	"backend-traillog/internal/db"
	"backend-traillog/internal/storage"
	"backend-traillog/internal/stream"
	"backend-traillog/internal/tracking"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

const (
	defaultTickInterval       = time.Second
	defaultCheckpointInterval = 30 * time.Second
)

type Server struct {
	App     *fiber.App
	Cfg     config.Config
	DB      *pgxpool.Pool
	Redis   *redis.Client
	SQLite  *sqlx.DB
	Stream  *stream.Hub
	Backups *tracking.Checkpointer
	Machine *tracking.Machine

	unsubscribe func()
}

func NewServer(cfg config.Config, pg *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     pg,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient),
	}

	slot, err := s.newSlot()
	if err != nil {
		// the machine still tracks; every checkpoint reports the failure
		log.Printf("backup slot unavailable, running without crash safety: %v", err)
	}
	s.Backups = tracking.NewCheckpointer(slot)

	var opts []tracking.Option
	if cfg.TimeSource != "ticks" {
		opts = append(opts, tracking.WithWallClock())
	}
	if pg != nil {
		opts = append(opts, tracking.WithArchiver(archive.NewService(pg)))
	}
	s.Machine = tracking.NewMachine(cfg.DeviceID, tracking.NewRouteStore(), s.Backups, opts...)
	s.unsubscribe = s.Machine.Store().Subscribe(s.Stream.Observer(cfg.DeviceID))

	registerRoutes(s)
	return s
}

func (s *Server) newSlot() (tracking.Slot, error) {
	switch s.Cfg.BackupDriver {
	case "sqlite":
		conn, err := db.OpenSQLite(s.Cfg.BackupPath)
		if err != nil {
			return nil, err
		}
		slot, err := backup.NewSQLiteSlot(conn, s.Cfg.DeviceID)
		if err != nil {
			conn.Close()
			return nil, err
		}
		s.SQLite = conn
		return slot, nil
	case "redis":
		if s.Redis == nil {
			return nil, fmt.Errorf("backup driver redis needs REDIS_ADDR")
		}
		return backup.NewRedisSlot(s.Redis, s.Cfg.DeviceID), nil
	case "postgres":
		if s.DB == nil {
			return nil, fmt.Errorf("backup driver postgres needs a database connection")
		}
		return backup.NewPostgresSlot(s.DB, s.Cfg.DeviceID), nil
	case "memory":
		return backup.NewMemorySlot(), nil
	default:
		return nil, fmt.Errorf("unknown backup driver %q", s.Cfg.BackupDriver)
	}
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		st := s.Machine.Status()
		return c.JSON(fiber.Map{"status": "ok", "state": st.State, "backup_healthy": st.BackupHealthy})
	})

	var deviceMiddleware fiber.Handler
	if s.Cfg.JWTSecret != "" {
		deviceMiddleware = auth.JWTMiddleware(s.Cfg.JWTSecret)
	} else {
		deviceMiddleware = auth.DeviceMiddleware(s.Cfg.DeviceID)
	}

	tracking.RegisterRoutes(s.App.Group("/tracking"), s.Machine, deviceMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, deviceMiddleware)

	if s.DB == nil {
		log.Printf("no database connection, archive, storage and device pairing routes disabled")
		return
	}
	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, s.DB))
	archive.RegisterRoutes(s.App.Group("/routes"), archive.NewService(s.DB), deviceMiddleware)
	storage.RegisterRoutes(s.App.Group("/storage"), storage.NewService(s.DB, s.Cfg.StorageBaseURL), deviceMiddleware)
}

// Start offers any unfinished session found in the backup slot and starts
// the tick and checkpoint timers. They stop when ctx is done.
func (s *Server) Start(ctx context.Context) {
	snap, err := s.Machine.CheckForBackup(ctx)
	switch {
	case err != nil:
		log.Printf("check for backup on launch: %v", err)
	case snap != nil:
		log.Printf("unfinished session found, restore with POST /tracking/backup/restore: %s", snap)
	}

	tick := s.Cfg.TickInterval
	if tick <= 0 {
		tick = defaultTickInterval
	}
	checkpoint := s.Cfg.CheckpointInterval
	if checkpoint <= 0 {
		checkpoint = defaultCheckpointInterval
	}
	go s.Machine.Run(ctx, tick, checkpoint)
}

// Close writes a last checkpoint and releases what NewServer opened. The
// postgres and redis clients belong to the caller.
func (s *Server) Close() {
	s.Machine.Checkpoint()
	s.Backups.Close()
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.Stream.Close()
	if s.SQLite != nil {
		if err := s.SQLite.Close(); err != nil {
			log.Printf("close sqlite: %v", err)
		}
		s.SQLite = nil
	}
}
