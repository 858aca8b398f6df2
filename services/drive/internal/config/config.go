package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file, overridable by DRIVEX_CONFIG.
var ConfigPath = "config.yaml"

// Storage backends.
const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port           string   `yaml:"port"`
	DatabaseURL    string   `yaml:"databaseURL"`
	RedisAddr      string   `yaml:"redisAddr"`
	RedisPassword  string   `yaml:"redisPassword"`
	LogLevel       string   `yaml:"logLevel"`
	LogFile        string   `yaml:"logFile"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
	TrustedProxies []string `yaml:"trustedProxies"`

	JWTSecret   string `yaml:"jwtSecret"`
	JWTIssuer   string `yaml:"jwtIssuer"`
	JWTAudience string `yaml:"jwtAudience"`
	JWTLeeway   string `yaml:"jwtLeeway"`
	SessionTTL  string `yaml:"sessionTTL"`

	GoogleUserInfoURL string `yaml:"googleUserInfoURL"`
	TokenSealKey      string `yaml:"tokenSealKey"`

	StorageBackend string      `yaml:"storageBackend"`
	UploadDir      string      `yaml:"uploadDir"`
	MaxUploadBytes int64       `yaml:"maxUploadBytes"`
	Minio          MinioConfig `yaml:"minio"`

	SweepCron      string `yaml:"sweepCron"`
	SweepGrace     string `yaml:"sweepGrace"`
	TrashRetention string `yaml:"trashRetention"`

	AuthRateLimitPerMinute   int `yaml:"authRateLimitPerMinute"`
	UploadRateLimitPerMinute int `yaml:"uploadRateLimitPerMinute"`
}

// MinioConfig holds S3-compatible object storage settings.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"useSSL"`
	Prefix    string `yaml:"prefix"`
}

func defaults() FileConfig {
	return FileConfig{
		Port:     "3001",
		LogLevel: "info",
		AllowedOrigins: []string{
			"https://main.dlronecmuj8qf.amplifyapp.com",
			"https://drivex2-0-server.onrender.com",
		},
		JWTIssuer:                "drivex-auth",
		JWTAudience:              "drivex-api",
		SessionTTL:               "24h",
		StorageBackend:           StorageLocal,
		UploadDir:                "uploads",
		MaxUploadBytes:           10 << 20,
		SweepCron:                "*/30 * * * *",
		SweepGrace:               "15m",
		TrashRetention:           "720h",
		AuthRateLimitPerMinute:   20,
		UploadRateLimitPerMinute: 60,
	}
}

// Load reads config from path (defaults to DRIVEX_CONFIG, then config.yaml).
// A missing file is fine as long as the environment supplies the required
// settings. A .env file in the working directory is loaded first and never
// overrides variables that are already set.
func Load(path string) (FileConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return FileConfig{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := defaults()
	if path == "" {
		path = os.Getenv("DRIVEX_CONFIG")
	}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	applyEnv(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setList := func(key string, dst *[]string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = splitList(v)
		}
	}

	setString("PORT", &cfg.Port)
	setString("DATABASE_URL", &cfg.DatabaseURL)
	setString("REDIS_ADDR", &cfg.RedisAddr)
	setString("REDIS_PASSWORD", &cfg.RedisPassword)
	setString("LOG_LEVEL", &cfg.LogLevel)
	setString("LOG_FILE", &cfg.LogFile)
	setList("ALLOWED_ORIGINS", &cfg.AllowedOrigins)
	setList("TRUSTED_PROXIES", &cfg.TrustedProxies)
	setString("JWT_SECRET", &cfg.JWTSecret)
	setString("JWT_ISSUER", &cfg.JWTIssuer)
	setString("JWT_AUDIENCE", &cfg.JWTAudience)
	setString("JWT_LEEWAY", &cfg.JWTLeeway)
	setString("SESSION_TTL", &cfg.SessionTTL)
	setString("GOOGLE_USERINFO_URL", &cfg.GoogleUserInfoURL)
	setString("TOKEN_SEAL_KEY", &cfg.TokenSealKey)
	setString("STORAGE_BACKEND", &cfg.StorageBackend)
	setString("UPLOAD_DIR", &cfg.UploadDir)
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	setString("MINIO_ENDPOINT", &cfg.Minio.Endpoint)
	setString("MINIO_ACCESS_KEY", &cfg.Minio.AccessKey)
	setString("MINIO_SECRET_KEY", &cfg.Minio.SecretKey)
	setString("MINIO_BUCKET", &cfg.Minio.Bucket)
	setString("MINIO_PREFIX", &cfg.Minio.Prefix)
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Minio.UseSSL = b
		}
	}
	setString("SWEEP_CRON", &cfg.SweepCron)
	setString("SWEEP_GRACE", &cfg.SweepGrace)
	setString("TRASH_RETENTION", &cfg.TrashRetention)
	setInt("AUTH_RATE_LIMIT_PER_MINUTE", &cfg.AuthRateLimitPerMinute)
	setInt("UPLOAD_RATE_LIMIT_PER_MINUTE", &cfg.UploadRateLimitPerMinute)
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml)")
	}
	if len(cfg.JWTSecret) < 32 {
		return errors.New("config: jwtSecret is required and must be at least 32 bytes (set JWT_SECRET)")
	}
	if cfg.TokenSealKey != "" {
		key, err := base64.StdEncoding.DecodeString(cfg.TokenSealKey)
		if err != nil || len(key) != 32 {
			return errors.New("config: tokenSealKey must be 32 bytes, base64 encoded")
		}
	}
	if cfg.MaxUploadBytes <= 0 {
		return errors.New("config: maxUploadBytes must be > 0")
	}
	switch cfg.StorageBackend {
	case StorageLocal:
		if strings.TrimSpace(cfg.UploadDir) == "" {
			return errors.New("config: uploadDir is required (set in config.yaml)")
		}
	case StorageMinio:
		if cfg.Minio.Endpoint == "" || cfg.Minio.Bucket == "" {
			return errors.New("config: minio.endpoint and minio.bucket are required (set in config.yaml)")
		}
	default:
		return fmt.Errorf("config: unknown storageBackend %q", cfg.StorageBackend)
	}
	if cfg.SweepCron == "" {
		return errors.New("config: sweepCron is required (set in config.yaml)")
	}
	if cfg.AuthRateLimitPerMinute < 0 || cfg.UploadRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	for name, raw := range map[string]string{
		"jwtLeeway":      cfg.JWTLeeway,
		"sessionTTL":     cfg.SessionTTL,
		"sweepGrace":     cfg.SweepGrace,
		"trashRetention": cfg.TrashRetention,
	} {
		if _, err := ParseDuration(name, raw); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

// ParseDuration parses an optional duration setting; empty means zero.
func ParseDuration(name, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", name, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("invalid %s duration: must not be negative", name)
	}
	return dur, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
