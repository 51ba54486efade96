// Package config loads process configuration from ROLLCALL_* environment
// variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"rollcall/internal/blob"
	"rollcall/internal/persist"
)

// Environment variables:
//
//	ROLLCALL_HTTP_ADDR            listen address (default :8080)
//	ROLLCALL_STORAGE_DRIVER       memory|fs|s3|sqlite|postgres|redis (default sqlite)
//	ROLLCALL_SQLITE_PATH          sqlite file (default ./rollcall.db)
//	ROLLCALL_POSTGRES_DSN         required when driver=postgres
//	ROLLCALL_REDIS_URL            required when driver=redis
//	ROLLCALL_REDIS_PREFIX         key prefix (default rollcall:state:)
//	ROLLCALL_BLOB_FS_ROOT         directory when driver=fs (default ./rollcall-data)
//	ROLLCALL_BLOB_PREFIX          object key prefix for blob drivers (default state/)
//	ROLLCALL_BLOB_S3_BUCKET       required when driver=s3
//	ROLLCALL_BLOB_S3_REGION       default us-east-1
//	ROLLCALL_BLOB_S3_ENDPOINT     optional, for MinIO
//	ROLLCALL_BLOB_S3_PATH_STYLE   true|false
//	ROLLCALL_PERSIST_WHITELIST    comma-separated buckets (default all)
//	ROLLCALL_MIRROR_TIMEOUT       per-write timeout (default 10s)
//	ROLLCALL_RATE_LIMIT           API requests per second (default 20, 0 disables)
//	ROLLCALL_RATE_BURST           API burst (default 40)
//	ROLLCALL_TIMEZONE             location used for "today" (default UTC)
//	LOG_LEVEL                     debug|info|warn|error (default info)
//	LOG_FORMAT                    text|json (default text)
//	OTEL_EXPORTER_OTLP_ENDPOINT   enables OTLP/HTTP trace export
//	OTEL_EXPORTER_OTLP_INSECURE   use http:// for a bare host:port endpoint
type Config struct {
	HTTPAddr       string `validate:"required"`
	StorageDriver  string `validate:"oneof=memory fs s3 sqlite postgres redis"`
	SQLitePath     string
	PostgresDSN    string `validate:"required_if=StorageDriver postgres"`
	RedisURL       string `validate:"required_if=StorageDriver redis"`
	RedisPrefix    string
	BlobFSRoot     string
	BlobPrefix     string
	S3Bucket       string `validate:"required_if=StorageDriver s3"`
	S3Region       string
	S3Endpoint     string `validate:"omitempty,url"`
	S3PathStyle    bool
	Whitelist      persist.Whitelist
	MirrorTimeout  time.Duration `validate:"gt=0"`
	RateLimit      float64       `validate:"gte=0"`
	RateBurst      int           `validate:"gte=0"`
	Location       *time.Location
	LogLevel       string `validate:"oneof=debug info warn error"`
	LogFormat      string `validate:"oneof=text json"`
	OTLPEndpoint   string
	OTLPInsecure   bool
	ServiceVersion string
}

// Load reads the named .env files (default ".env", missing is fine) and then
// the process environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds and validates a Config from getenv.
func FromEnv(getenv func(string) string) (Config, error) {
	env := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}
	var errs []error
	cfg := Config{
		HTTPAddr:       env("ROLLCALL_HTTP_ADDR", ":8080"),
		StorageDriver:  strings.ToLower(env("ROLLCALL_STORAGE_DRIVER", string(persist.DriverSQLite))),
		SQLitePath:     env("ROLLCALL_SQLITE_PATH", "./rollcall.db"),
		PostgresDSN:    env("ROLLCALL_POSTGRES_DSN", ""),
		RedisURL:       env("ROLLCALL_REDIS_URL", ""),
		RedisPrefix:    env("ROLLCALL_REDIS_PREFIX", ""),
		BlobFSRoot:     env("ROLLCALL_BLOB_FS_ROOT", ""),
		BlobPrefix:     env("ROLLCALL_BLOB_PREFIX", ""),
		S3Bucket:       env("ROLLCALL_BLOB_S3_BUCKET", ""),
		S3Region:       env("ROLLCALL_BLOB_S3_REGION", ""),
		S3Endpoint:     env("ROLLCALL_BLOB_S3_ENDPOINT", ""),
		LogLevel:       strings.ToLower(env("LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(env("LOG_FORMAT", "text")),
		OTLPEndpoint:   env("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceVersion: env("ROLLCALL_VERSION", "dev"),
	}
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	var err error
	cfg.S3PathStyle, err = parseBool("ROLLCALL_BLOB_S3_PATH_STYLE", env("ROLLCALL_BLOB_S3_PATH_STYLE", "false"))
	collect(err)
	cfg.OTLPInsecure, err = parseBool("OTEL_EXPORTER_OTLP_INSECURE", env("OTEL_EXPORTER_OTLP_INSECURE", "false"))
	collect(err)
	cfg.Whitelist, err = persist.ParseWhitelist(env("ROLLCALL_PERSIST_WHITELIST", ""))
	collect(wrap("ROLLCALL_PERSIST_WHITELIST", err))
	cfg.MirrorTimeout, err = time.ParseDuration(env("ROLLCALL_MIRROR_TIMEOUT", "10s"))
	collect(wrap("ROLLCALL_MIRROR_TIMEOUT", err))
	cfg.RateLimit, err = strconv.ParseFloat(env("ROLLCALL_RATE_LIMIT", "20"), 64)
	collect(wrap("ROLLCALL_RATE_LIMIT", err))
	cfg.RateBurst, err = strconv.Atoi(env("ROLLCALL_RATE_BURST", "40"))
	collect(wrap("ROLLCALL_RATE_BURST", err))
	cfg.Location, err = time.LoadLocation(env("ROLLCALL_TIMEZONE", "UTC"))
	collect(wrap("ROLLCALL_TIMEZONE", err))
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Persist returns the persistence backend settings.
func (c Config) Persist() persist.Config {
	return persist.Config{
		Driver:      persist.Driver(c.StorageDriver),
		SQLitePath:  c.SQLitePath,
		PostgresDSN: c.PostgresDSN,
		RedisURL:    c.RedisURL,
		RedisPrefix: c.RedisPrefix,
		BlobPrefix:  c.BlobPrefix,
		FSRoot:      c.BlobFSRoot,
		S3: blob.S3Config{
			Bucket:    c.S3Bucket,
			Region:    c.S3Region,
			Endpoint:  c.S3Endpoint,
			PathStyle: c.S3PathStyle,
		},
	}
}

func parseBool(key, raw string) (bool, error) {
	v, err := strconv.ParseBool(raw)
	return v, wrap(key, err)
}

func wrap(key string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", key, err)
}
