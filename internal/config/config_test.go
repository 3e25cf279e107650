package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.ServerPort == "" {
		t.Fatalf("expected default server port")
	}
	if cfg.PostgresURL == "" {
		t.Fatalf("expected default postgres url")
	}
	if cfg.BackupDriver != "sqlite" {
		t.Fatalf("expected sqlite backup driver, got %q", cfg.BackupDriver)
	}
	if cfg.CheckpointInterval != 30*time.Second {
		t.Fatalf("expected 30s checkpoint interval, got %v", cfg.CheckpointInterval)
	}
	if cfg.TickInterval != time.Second {
		t.Fatalf("expected 1s tick interval, got %v", cfg.TickInterval)
	}
	if cfg.TimeSource != "clock" {
		t.Fatalf("expected clock time source, got %q", cfg.TimeSource)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9000")
	t.Setenv("POSTGRES_URL", "postgres://example")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DEVICE_ID", "phone-7")
	t.Setenv("BACKUP_DRIVER", "redis")
	t.Setenv("CHECKPOINT_INTERVAL", "45s")

	cfg := Load()
	if cfg.ServerPort != ":9000" {
		t.Fatalf("expected override port")
	}
	if cfg.PostgresURL != "postgres://example" {
		t.Fatalf("expected override postgres")
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Fatalf("expected override redis")
	}
	if cfg.JWTSecret != "secret" {
		t.Fatalf("expected override secret")
	}
	if cfg.DeviceID != "phone-7" {
		t.Fatalf("expected override device id")
	}
	if cfg.BackupDriver != "redis" {
		t.Fatalf("expected override backup driver")
	}
	if cfg.CheckpointInterval != 45*time.Second {
		t.Fatalf("expected override checkpoint interval")
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("DEVICE_ID=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	old := envFiles
	envFiles = []string{path}
	defer func() { envFiles = old }()

	// godotenv does not override existing variables; register cleanup for the one it sets.
	t.Setenv("DEVICE_ID", "")
	os.Unsetenv("DEVICE_ID")

	cfg := Load()
	if cfg.DeviceID != "from-dotenv" {
		t.Fatalf("expected device id from .env, got %q", cfg.DeviceID)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Load()
	cfg.BackupDriver = "floppy"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unknown backup driver to fail")
	}

	cfg = Load()
	cfg.CheckpointInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected zero checkpoint interval to fail")
	}

	cfg = Load()
	cfg.BackupPath = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected missing sqlite path to fail")
	}

	cfg = Load()
	cfg.TimeSource = "sundial"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unknown time source to fail")
	}

	cfg = Load()
	cfg.BackupDriver = "memory"
	cfg.BackupPath = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("memory driver needs no path: %v", err)
	}
}
