package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// DatabaseConfig holds relational database connection settings.
// Driver selects between "postgres" and "sqlite"; the Host..SSLMode fields
// only apply to postgres and SQLitePath only to sqlite.
type DatabaseConfig struct {
	Driver             string `env:"DB_DRIVER" envDefault:"postgres"`
	Host               string `env:"DB_HOST"`
	Port               string `env:"DB_PORT" envDefault:"5432"`
	User               string `env:"DB_USER"`
	Password           string `env:"DB_PASSWORD"`
	Name               string `env:"DB_NAME"`
	SSLMode            string `env:"DB_SSLMODE" envDefault:"disable"`
	MaxOpenConns       int    `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns       int    `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetimeSec int    `env:"DB_CONN_MAX_LIFETIME_SEC" envDefault:"300"`
	SQLitePath         string `env:"DB_SQLITE_PATH" envDefault:"towerdocs.db"`
}

// S3Config holds settings for the S3-compatible backend (MinIO, AWS S3, Wasabi).
type S3Config struct {
	Endpoint      string        `env:"S3_ENDPOINT"`
	AccessKey     string        `env:"S3_ACCESS_KEY"`
	SecretKey     string        `env:"S3_SECRET_KEY"`
	Bucket        string        `env:"S3_BUCKET"`
	Region        string        `env:"S3_REGION" envDefault:"us-east-1"`
	UseSSL        bool          `env:"S3_USE_SSL" envDefault:"false"`
	PublicBaseURL string        `env:"S3_PUBLIC_BASE_URL"`
	PresignExpiry time.Duration `env:"S3_PRESIGN_EXPIRY" envDefault:"1h"`
}

// GCSConfig holds settings for the Google Cloud Storage backend.
type GCSConfig struct {
	Bucket          string `env:"GCS_BUCKET"`
	CDNDomain       string `env:"GCS_CDN_DOMAIN"`
	EmulatorHost    string `env:"GCS_EMULATOR_HOST"`
	CredentialsFile string `env:"GCS_CREDENTIALS_FILE"`
}

// LocalStorageConfig holds settings for the local filesystem backend.
type LocalStorageConfig struct {
	Root         string `env:"STORAGE_LOCAL_ROOT" envDefault:"uploads"`
	PublicPrefix string `env:"STORAGE_LOCAL_PUBLIC_PREFIX" envDefault:"/uploads"`
}

// StorageConfig selects the blob backend and the upload constraints.
type StorageConfig struct {
	Backend          string        `env:"STORAGE_BACKEND" envDefault:"local"`
	MaxUploadBytes   int64         `env:"STORAGE_MAX_UPLOAD_BYTES" envDefault:"52428800"`
	AllowedMIMETypes []string      `env:"STORAGE_ALLOWED_MIME_TYPES" envDefault:"application/pdf" envSeparator:","`
	Timeout          time.Duration `env:"STORAGE_TIMEOUT" envDefault:"30s"`
	Local            LocalStorageConfig
	S3               S3Config
	GCS              GCSConfig
}

// AdminConfig is the single admin credential set and token settings.
type AdminConfig struct {
	Username  string        `env:"ADMIN_USERNAME" envDefault:"admin"`
	Password  string        `env:"ADMIN_PASSWORD"`
	JWTSecret string        `env:"ADMIN_JWT_SECRET"`
	TokenTTL  time.Duration `env:"ADMIN_TOKEN_TTL" envDefault:"12h"`
}

// CatalogConfig holds catalog lifecycle policies.
type CatalogConfig struct {
	// CategoryDeletePolicy is "restrict" or "cascade".
	CategoryDeletePolicy string `env:"CATEGORY_DELETE_POLICY" envDefault:"restrict"`
}

// CacheConfig configures the optional redis catalog cache.
// An empty RedisAddr disables caching.
type CacheConfig struct {
	RedisAddr     string        `env:"CACHE_REDIS_ADDR"`
	RedisPassword string        `env:"CACHE_REDIS_PASSWORD"`
	RedisDB       int           `env:"CACHE_REDIS_DB" envDefault:"0"`
	TTL           time.Duration `env:"CACHE_TTL" envDefault:"5m"`
}

// TracingConfig mirrors the standard OTEL_* variables the exporter setup needs.
// Exporter endpoints and headers are read by the OTLP exporters themselves.
type TracingConfig struct {
	Disabled    bool   `env:"OTEL_SDK_DISABLED" envDefault:"false"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"towerdocs"`
	Protocol    string `env:"OTEL_EXPORTER_OTLP_PROTOCOL" envDefault:"grpc"`
	Endpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Sampler     string `env:"OTEL_TRACES_SAMPLER" envDefault:"parentbased_traceidratio"`
	SamplerArg  string `env:"OTEL_TRACES_SAMPLER_ARG" envDefault:"1.0"`
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables once at startup and passed
// explicitly; nothing reads the environment after Load returns.
type AppConfig struct {
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	AppHost  string `env:"APP_HOST" envDefault:"localhost:8080"`
	Port     string `env:"PORT" envDefault:"8080"`
	Timezone string `env:"APP_TIMEZONE" envDefault:"UTC"`
	LogMode  string `env:"LOG_MODE" envDefault:"production"`
	Database DatabaseConfig
	Storage  StorageConfig
	Admin    AdminConfig
	Catalog  CatalogConfig
	Cache    CacheConfig
	Tracing  TracingConfig
}

// Load reads configuration from environment variables and validates it.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c *AppConfig) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.Database.Driver))
	}

	switch strings.ToLower(c.Storage.Backend) {
	case "local", "s3", "cloud", "gcs":
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND must be local, s3, cloud or gcs, got %q", c.Storage.Backend))
	}
	if c.Storage.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("STORAGE_MAX_UPLOAD_BYTES must be positive"))
	}
	if len(c.Storage.AllowedMIMETypes) == 0 {
		errs = append(errs, errors.New("STORAGE_ALLOWED_MIME_TYPES must not be empty"))
	}
	if c.Storage.Timeout <= 0 {
		errs = append(errs, errors.New("STORAGE_TIMEOUT must be positive"))
	}

	if c.Admin.Password == "" {
		errs = append(errs, errors.New("ADMIN_PASSWORD is required"))
	}
	if c.Admin.JWTSecret == "" {
		errs = append(errs, errors.New("ADMIN_JWT_SECRET is required"))
	}

	switch c.Catalog.CategoryDeletePolicy {
	case "restrict", "cascade":
	default:
		errs = append(errs, fmt.Errorf("CATEGORY_DELETE_POLICY must be restrict or cascade, got %q", c.Catalog.CategoryDeletePolicy))
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("APP_TIMEZONE: %w", err))
	}

	return errors.Join(errs...)
}

// Location returns the configured timezone, falling back to UTC.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsProduction returns true when the app is running in production mode.
func (c *AppConfig) IsProduction() bool {
	return c.AppEnv == "production"
}
