// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fruitsalade/uploader/internal/media"
)

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Storage backend ("s3", "local" or "memory", default: "s3")
	StorageBackend string

	// S3 storage
	S3Endpoint       string
	S3PublicEndpoint string // host used in public URLs, defaults to S3Endpoint
	S3AccessKey      string
	S3SecretKey      string
	S3Region         string
	S3UseSSL         bool
	S3PathStyle      bool

	// Local storage
	LocalStoragePath string
	LocalPublicURL   string

	// Uploads
	MaxFiles       int
	StoreTimeout   time.Duration
	ProcessTimeout time.Duration

	// Auth (optional: uploads are open when empty)
	JWTSecret string

	// Rate limiting, 0 = unlimited
	UploadsPerMinute int

	// Pipeline defaults
	Service Service
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	svc := DefaultService()
	svc.S3Bucket = envOr("S3_BUCKET", svc.S3Bucket)
	svc.ThumbWidth = envInt("THUMB_WIDTH", svc.ThumbWidth)
	svc.MaxFileSize = envInt64("MAX_FILE_SIZE", svc.MaxFileSize)
	svc.UploadDir = envOr("UPLOAD_DIR", svc.UploadDir)

	cfg := &Config{
		ListenAddr:       envOr("LISTEN_ADDR", ":3300"),
		MetricsAddr:      envOr("METRICS_ADDR", ":9090"),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		LogFormat:        envOr("LOG_FORMAT", "json"),
		StorageBackend:   envOr("STORAGE_BACKEND", "s3"),
		S3Endpoint:       envOr("S3_ENDPOINT", "https://s3.amazonaws.com"),
		S3PublicEndpoint: envOr("S3_PUBLIC_ENDPOINT", ""),
		S3AccessKey:      envOr("S3_ACCESS_KEY", ""),
		S3SecretKey:      envOr("S3_SECRET_KEY", ""),
		S3Region:         envOr("S3_REGION", "us-east-1"),
		S3UseSSL:         envBool("S3_USE_SSL", true),
		S3PathStyle:      envBool("S3_PATH_STYLE", false),
		LocalStoragePath: envOr("LOCAL_STORAGE_PATH", "/data/storage"),
		LocalPublicURL:   envOr("LOCAL_PUBLIC_URL", "http://localhost:3300/files"),
		MaxFiles:         envInt("MAX_FILES", 7),
		StoreTimeout:     envDuration("STORE_TIMEOUT", 30*time.Second),
		ProcessTimeout:   envDuration("PROCESS_TIMEOUT", 20*time.Second),
		JWTSecret:        envOr("JWT_SECRET", ""),
		UploadsPerMinute: envInt("UPLOADS_PER_MINUTE", 0),
		Service:          svc,
	}

	switch cfg.StorageBackend {
	case "s3", "local", "memory":
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
	if cfg.MaxFiles <= 0 {
		return nil, fmt.Errorf("MAX_FILES must be positive")
	}
	if err := cfg.Service.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Service is the process-wide configuration of the upload pipeline. It is a
// value: With returns a modified copy and never changes the receiver, so a
// pipeline that captured a Service is unaffected by later reconfiguration.
type Service struct {
	S3Bucket    string
	ThumbWidth  int
	MaxFileSize int64
	UploadDir   string
}

// DefaultService returns the built-in defaults.
func DefaultService() Service {
	return Service{
		S3Bucket:    "file-bucket-01",
		ThumbWidth:  media.DefaultThumbWidth,
		MaxFileSize: 20 * 1024 * 1024,
		UploadDir:   os.TempDir(),
	}
}

// With returns a copy of s with overrides applied. Only s3Bucket, thumbWidth,
// maxFileSize and uploadDir are recognized; other keys are ignored.
func (s Service) With(overrides map[string]any) Service {
	if v, ok := overrides["s3Bucket"].(string); ok && v != "" {
		s.S3Bucket = v
	}
	if v, ok := media.IntValue(overrides["thumbWidth"]); ok && v > 0 {
		s.ThumbWidth = v
	}
	if v, ok := media.IntValue(overrides["maxFileSize"]); ok && v > 0 {
		s.MaxFileSize = int64(v)
	}
	if v, ok := overrides["uploadDir"].(string); ok && v != "" {
		s.UploadDir = v
	}
	return s
}

// Get returns a setting by its override key.
func (s Service) Get(key string) (any, bool) {
	switch key {
	case "s3Bucket":
		return s.S3Bucket, true
	case "thumbWidth":
		return s.ThumbWidth, true
	case "maxFileSize":
		return s.MaxFileSize, true
	case "uploadDir":
		return s.UploadDir, true
	default:
		return nil, false
	}
}

// MediaOptions returns the per-record options derived from s.
func (s Service) MediaOptions() media.Options {
	return media.DefaultOptions().With(map[string]any{"thumbWidth": s.ThumbWidth})
}

// Validate checks that every setting is usable.
func (s Service) Validate() error {
	if s.S3Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required")
	}
	if s.ThumbWidth <= 0 {
		return fmt.Errorf("THUMB_WIDTH must be positive")
	}
	if s.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive")
	}
	if s.UploadDir == "" {
		return fmt.Errorf("UPLOAD_DIR is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
