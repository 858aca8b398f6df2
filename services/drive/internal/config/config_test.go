package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "databaseURL: postgres://localhost/drivex\njwtSecret: "+testSecret+"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "3001" || cfg.UploadDir != "uploads" || cfg.MaxUploadBytes != 10<<20 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.StorageBackend != StorageLocal || cfg.SweepCron != "*/30 * * * *" {
		t.Fatalf("unexpected storage/sweep defaults: %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Fatalf("expected deployment origins by default, got %v", cfg.AllowedOrigins)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, strings.Join([]string{
		"port: \"8080\"",
		"databaseURL: postgres://file/drivex",
		"jwtSecret: " + testSecret,
		"storageBackend: minio",
		"minio:",
		"  endpoint: localhost:9000",
		"  bucket: drivex",
	}, "\n"))
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://env/drivex")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com,")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("UPLOAD_RATE_LIMIT_PER_MINUTE", "5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" || cfg.DatabaseURL != "postgres://env/drivex" {
		t.Fatalf("env did not override file: %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("unexpected origins: %v", cfg.AllowedOrigins)
	}
	if !cfg.Minio.UseSSL || cfg.Minio.Bucket != "drivex" || cfg.UploadRateLimitPerMinute != 5 {
		t.Fatalf("unexpected minio/limit config: %+v", cfg)
	}
}

func TestLoadMissingFileUsesEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/drivex")
	t.Setenv("JWT_SECRET", testSecret)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://env/drivex" {
		t.Fatalf("unexpected database url %q", cfg.DatabaseURL)
	}
}

func TestLoadReadsDRIVEXConfig(t *testing.T) {
	path := writeConfig(t, "port: \"7000\"\ndatabaseURL: postgres://x/y\njwtSecret: "+testSecret+"\n")
	t.Setenv("DRIVEX_CONFIG", path)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "7000" {
		t.Fatalf("expected port from DRIVEX_CONFIG file, got %q", cfg.Port)
	}
}

func TestValidateConfig(t *testing.T) {
	base := defaults()
	base.DatabaseURL = "postgres://localhost/drivex"
	base.JWTSecret = testSecret

	tests := []struct {
		name   string
		mutate func(*FileConfig)
		want   string
	}{
		{"valid", func(*FileConfig) {}, ""},
		{"database", func(c *FileConfig) { c.DatabaseURL = "" }, "databaseURL is required"},
		{"short secret", func(c *FileConfig) { c.JWTSecret = "short" }, "jwtSecret"},
		{"seal key", func(c *FileConfig) { c.TokenSealKey = "bm90LTMyLWJ5dGVz" }, "tokenSealKey"},
		{"backend", func(c *FileConfig) { c.StorageBackend = "ftp" }, "unknown storageBackend"},
		{"minio bucket", func(c *FileConfig) { c.StorageBackend = StorageMinio; c.Minio.Endpoint = "localhost:9000" }, "minio.bucket"},
		{"negative limit", func(c *FileConfig) { c.AuthRateLimitPerMinute = -1 }, "rate limits"},
		{"bad duration", func(c *FileConfig) { c.SweepGrace = "soon" }, "sweepGrace"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			cfg.AllowedOrigins = append([]string(nil), base.AllowedOrigins...)
			tc.mutate(&cfg)
			err := validateConfig(cfg)
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	if d, err := ParseDuration("sweepGrace", ""); err != nil || d != 0 {
		t.Fatalf("empty duration: %v %v", d, err)
	}
	if d, err := ParseDuration("sweepGrace", "15m"); err != nil || d != 15*time.Minute {
		t.Fatalf("15m: %v %v", d, err)
	}
	if _, err := ParseDuration("sweepGrace", "-1s"); err == nil {
		t.Fatalf("expected negative duration error")
	}
}
